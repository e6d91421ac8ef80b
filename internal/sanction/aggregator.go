// Package sanction determines whether reported users and IPs have been
// blocked, globally locked, or globally blocked since being reported,
// and annotates their records with the sanction details.
package sanction

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/reportmark/internal/mediawiki"
	"github.com/reportmark/internal/report"
)

// blockChunkSize is the protocol ceiling for one bkusers query.
const blockChunkSize = 500

// Sanction category and flag labels appended to annotated templates.
const (
	labelIndefinite    = "indefinite"
	labelPartial       = "partial block "
	labelGloballyLock  = "globally locked"
	labelGlobalBlock   = "globally blocked "
	labelNoTalk        = " talk page restricted"
	labelNoEmail       = " email restricted"
	labelNoTalkNoEmail = " talk page and email restricted"
	labelHardBlock     = " hardblock"
)

// Querier is the sanction-lookup surface of the wiki API.
type Querier interface {
	QueryBlocksByUsers(ctx context.Context, users []string) ([]mediawiki.UserBlock, error)
	QueryBlockByIP(ctx context.Context, ip string) (*mediawiki.UserBlock, error)
	QueryGlobalLock(ctx context.Context, user string) (bool, error)
	QueryGlobalBlockByIP(ctx context.Context, ip string) (*mediawiki.GlobalBlock, error)
}

// Aggregator runs the sanction checks. dateOffset shifts sanction
// timestamps into the wiki's display timezone for the short (M/D)
// date label.
type Aggregator struct {
	api        Querier
	dateOffset time.Duration
	now        func() time.Time
}

func New(api Querier, dateOffset time.Duration) *Aggregator {
	return &Aggregator{api: api, dateOffset: dateOffset, now: time.Now}
}

// CheckLocal annotates records whose subject has a local block issued at
// or after the report timestamp. User lookups go out in chunks, IP
// lookups one per address; all batches run concurrently and write
// disjoint records.
func (a *Aggregator) CheckLocal(ctx context.Context, records []*report.Record) {
	users, ips := partition(records, func(r *report.Record) bool { return r.User != "" })

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(users); start += blockChunkSize {
		chunk := users[start:min(start+blockChunkSize, len(users))]
		g.Go(func() error {
			a.checkUserChunk(gctx, chunk, records)
			return nil
		})
	}
	for _, ip := range ips {
		ip := ip
		g.Go(func() error {
			a.checkIP(gctx, ip, records)
			return nil
		})
	}
	g.Wait()
}

// CheckGlobal annotates records with no local sanction: global locks for
// usernames, global blocks for IPs. Local sanctions take precedence, so
// locally sanctioned subjects are never queried.
func (a *Aggregator) CheckGlobal(ctx context.Context, records []*report.Record) {
	users, ips := partition(records, func(r *report.Record) bool {
		return r.User != "" && !r.Sanctioned()
	})

	// Locks have no timestamp of their own, so they are dated with the
	// run's execution date.
	lockedDate := a.dateLabel(a.now().UTC())

	g, gctx := errgroup.WithContext(ctx)
	for _, user := range users {
		user := user
		g.Go(func() error {
			a.checkLock(gctx, user, lockedDate, records)
			return nil
		})
	}
	for _, ip := range ips {
		ip := ip
		g.Go(func() error {
			a.checkGlobalIP(gctx, ip, records)
			return nil
		})
	}
	g.Wait()
}

func (a *Aggregator) checkUserChunk(ctx context.Context, users []string, records []*report.Record) {
	blocks, err := a.api.QueryBlocksByUsers(ctx, users)
	if err != nil {
		log.Warn().Err(err).Int("users", len(users)).Msg("block query failed; chunk treated as unblocked")
		return
	}
	for _, b := range blocks {
		for _, r := range records {
			if r.User != b.User {
				continue
			}
			if !newlyReported(r, b.Timestamp) {
				continue
			}
			r.Duration = a.durationLabel(b.Timestamp, b.Expiry)
			r.Date = a.dateLabel(b.Timestamp)
			if b.Partial {
				r.Domain = labelPartial
			}
			r.Flags = restrictionFlags(!b.AllowUserTalk, b.NoEmail)
		}
	}
}

func (a *Aggregator) checkIP(ctx context.Context, ip string, records []*report.Record) {
	b, err := a.api.QueryBlockByIP(ctx, ip)
	if err != nil {
		log.Warn().Err(err).Str("ip", ip).Msg("IP block query failed; treated as unblocked")
		return
	}
	if b == nil {
		return
	}

	// The blocked target may be a range covering the queried address.
	// Comparing the 3-character tails is the historical heuristic for
	// telling a range block from a plain block; see DESIGN.md.
	rangeBlock := b.User != ip && tail(b.User, 3) != tail(ip, 3)
	hardBlock := !b.AnonOnly

	for _, r := range records {
		if r.User != ip || !newlyReported(r, b.Timestamp) {
			continue
		}
		r.Duration = a.durationLabel(b.Timestamp, b.Expiry)
		if rangeBlock {
			r.Duration = fmt.Sprintf("range: %s %s", tail(b.User, 3), r.Duration)
		}
		r.Date = a.dateLabel(b.Timestamp)
		if b.Partial {
			r.Domain = labelPartial
		}
		r.Flags = restrictionFlags(!b.AllowUserTalk, b.NoEmail)
		if hardBlock {
			if r.Flags != "" {
				r.Flags = labelHardBlock + "," + r.Flags
			} else {
				r.Flags = labelHardBlock
			}
		}
	}
}

func (a *Aggregator) checkLock(ctx context.Context, user, lockedDate string, records []*report.Record) {
	locked, err := a.api.QueryGlobalLock(ctx, user)
	if err != nil {
		log.Warn().Err(err).Str("user", user).Msg("global lock query failed; treated as unlocked")
		return
	}
	if !locked {
		return
	}
	for _, r := range records {
		if r.User == user {
			r.Domain = labelGloballyLock
			r.Date = lockedDate
		}
	}
}

func (a *Aggregator) checkGlobalIP(ctx context.Context, ip string, records []*report.Record) {
	gb, err := a.api.QueryGlobalBlockByIP(ctx, ip)
	if err != nil {
		log.Warn().Err(err).Str("ip", ip).Msg("global block query failed; treated as unblocked")
		return
	}
	if gb == nil {
		return
	}
	for _, r := range records {
		if r.User != ip || !newlyReported(r, gb.Timestamp) {
			continue
		}
		r.Domain = labelGlobalBlock
		r.Duration = a.durationLabel(gb.Timestamp, gb.Expiry)
		r.Date = a.dateLabel(gb.Timestamp)
	}
}

// newlyReported is the ordering invariant of the whole system: a record
// qualifies only when the subject was sanctioned at or after the report.
func newlyReported(r *report.Record, sanctionTime time.Time) bool {
	return !r.ReportTimestamp.After(sanctionTime)
}

func (a *Aggregator) durationLabel(from time.Time, expiry string) string {
	if expiry == mediawiki.ExpiryInfinity {
		return labelIndefinite
	}
	until, err := time.Parse("2006-01-02T15:04:05Z", expiry)
	if err != nil {
		log.Warn().Str("expiry", expiry).Msg("unparseable expiry")
		return expiry
	}
	return formatDuration(until.Sub(from))
}

// dateLabel renders " (M/D)" in the wiki's display timezone.
func (a *Aggregator) dateLabel(ts time.Time) string {
	t := ts.Add(a.dateOffset)
	return fmt.Sprintf(" (%d/%d)", int(t.Month()), t.Day())
}

func restrictionFlags(noTalk, noEmail bool) string {
	switch {
	case noTalk && noEmail:
		return labelNoTalkNoEmail
	case noTalk:
		return labelNoTalk
	case noEmail:
		return labelNoEmail
	default:
		return ""
	}
}

// partition splits the matching records' distinct subjects into
// registered usernames and IP addresses.
func partition(records []*report.Record, include func(*report.Record) bool) (users, ips []string) {
	seen := map[string]bool{}
	for _, r := range records {
		if !include(r) || seen[r.User] {
			continue
		}
		seen[r.User] = true
		if report.IsIPAddress(r.User) {
			ips = append(ips, r.User)
		} else {
			users = append(users, r.User)
		}
	}
	return users, ips
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
