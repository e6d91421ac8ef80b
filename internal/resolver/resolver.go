// Package resolver converts log-event and revision (diff) identifiers
// found in report templates into usernames, caching results for the
// lifetime of the process.
package resolver

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/reportmark/internal/mediawiki"
	"github.com/reportmark/internal/report"
)

const (
	// maxLogPages bounds the paginated log-event scan; ids not found
	// within this many pages stay unresolved for the run.
	maxLogPages = 10

	// maxDiffBatch is the protocol ceiling for a single revids query.
	maxDiffBatch = 500
)

// LogQuerier fetches pages of the account-creation log.
type LogQuerier interface {
	QueryLogEvents(ctx context.Context, cont string) ([]mediawiki.LogEvent, string, error)
}

// RevisionQuerier resolves revision ids to usernames.
type RevisionQuerier interface {
	QueryRevisionsByIDs(ctx context.Context, ids []string) ([]mediawiki.RevisionUser, error)
}

// Cache is an append-only id→username map. The first writer for an id
// wins; later writes are ignored.
type Cache struct {
	mu sync.Mutex
	m  map[string]string
}

func NewCache() *Cache {
	return &Cache{m: make(map[string]string)}
}

func (c *Cache) Get(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[id]
	return v, ok
}

func (c *Cache) PutIfAbsent(id, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.m[id]; !ok {
		c.m[id] = username
	}
}

// Resolver fills in the User field of records reported by log or diff
// id. Construct one per process and reuse it so the caches persist
// across runs.
type Resolver struct {
	logs LogQuerier
	revs RevisionQuerier

	logIDs  *Cache
	diffIDs *Cache
}

func New(logs LogQuerier, revs RevisionQuerier) *Resolver {
	return &Resolver{
		logs:    logs,
		revs:    revs,
		logIDs:  NewCache(),
		diffIDs: NewCache(),
	}
}

// Resolve runs both id lookups concurrently and then fills in the User
// field from the caches. Transport failures degrade to unresolved ids;
// they never fail the run.
func (r *Resolver) Resolve(ctx context.Context, records []*report.Record) {
	var logIDs, diffIDs []string
	for _, rec := range records {
		if rec.User != "" {
			continue
		}
		if rec.LogID != "" {
			if _, ok := r.logIDs.Get(rec.LogID); !ok {
				logIDs = append(logIDs, rec.LogID)
			}
		}
		if rec.DiffID != "" {
			if _, ok := r.diffIDs.Get(rec.DiffID); !ok {
				diffIDs = append(diffIDs, rec.DiffID)
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.resolveLogIDs(gctx, logIDs)
		return nil
	})
	g.Go(func() error {
		r.resolveDiffIDs(gctx, diffIDs)
		return nil
	})
	g.Wait()

	for _, rec := range records {
		if rec.User != "" {
			continue
		}
		if rec.LogID != "" {
			if user, ok := r.logIDs.Get(rec.LogID); ok {
				rec.User = user
			}
		}
		if rec.DiffID != "" && rec.User == "" {
			if user, ok := r.diffIDs.Get(rec.DiffID); ok {
				rec.User = user
			}
		}
	}
}

// resolveLogIDs walks the newest account-creation log events page by
// page, populating the cache, and stops early once every wanted id has
// been seen or the page cap is reached.
func (r *Resolver) resolveLogIDs(ctx context.Context, wanted []string) {
	if len(wanted) == 0 {
		return
	}

	remaining := make(map[string]bool, len(wanted))
	for _, id := range wanted {
		remaining[id] = true
	}

	cont := ""
	for page := 0; page < maxLogPages; page++ {
		events, next, err := r.logs.QueryLogEvents(ctx, cont)
		if err != nil {
			log.Warn().Err(err).Msg("log event query failed; ids stay unresolved")
			return
		}
		if len(events) == 0 {
			return
		}
		for _, ev := range events {
			r.logIDs.PutIfAbsent(ev.LogID, stripNamespace(ev.Title))
			delete(remaining, ev.LogID)
		}
		if len(remaining) == 0 || next == "" {
			return
		}
		cont = next
	}
	log.Debug().Int("unresolved", len(remaining)).Msg("log id scan hit page cap")
}

// resolveDiffIDs issues one batched revisions query for the first
// maxDiffBatch wanted ids.
func (r *Resolver) resolveDiffIDs(ctx context.Context, wanted []string) {
	if len(wanted) == 0 {
		return
	}
	if len(wanted) > maxDiffBatch {
		wanted = wanted[:maxDiffBatch]
	}

	users, err := r.revs.QueryRevisionsByIDs(ctx, wanted)
	if err != nil {
		log.Warn().Err(err).Msg("revision query failed; ids stay unresolved")
		return
	}
	for _, u := range users {
		r.diffIDs.PutIfAbsent(u.RevisionID, u.Username)
	}
}

// stripNamespace reduces a page title like "User:Example" to the bare
// username.
func stripNamespace(title string) string {
	if i := strings.Index(title, ":"); i >= 0 {
		return title[i+1:]
	}
	return title
}
