// Package engine sequences one markup run: parse the noticeboard page,
// resolve identifiers, check sanctions locally then globally, build the
// replacements and summary, and save the page.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/reportmark/internal/mediawiki"
	"github.com/reportmark/internal/report"
	"github.com/reportmark/internal/resolver"
	"github.com/reportmark/internal/retry"
	"github.com/reportmark/internal/sanction"
)

// No-op outcomes, distinct from failures.
var (
	ErrNoOpenReports   = errors.New("no open reports on the page")
	ErrNothingToUpdate = errors.New("no report needs an update")
)

// PageAPI is the page fetch/edit surface of the wiki transport.
type PageAPI interface {
	GetLatestRevision(ctx context.Context, title string) (*mediawiki.Revision, error)
	EditPage(ctx context.Context, req mediawiki.EditRequest) error
}

// Options configures a markup engine.
type Options struct {
	Page        string
	Token       string
	CheckGlobal bool
	// EditSpacing is the minimum interval kept between this edit and
	// the previous one, so consecutive runs don't race each other.
	EditSpacing time.Duration
	Retry       retry.Config
}

// Result describes a completed run that saved an edit.
type Result struct {
	EditedAt   time.Time
	Sanctioned int
	Normalized int
	Summary    string
}

// Engine runs the report-resolution pipeline. Construct one per process
// so the resolver caches persist across runs.
type Engine struct {
	pages     PageAPI
	resolver  *resolver.Resolver
	sanctions *sanction.Aggregator
	opts      Options
}

func New(pages PageAPI, res *resolver.Resolver, agg *sanction.Aggregator, opts Options) *Engine {
	return &Engine{pages: pages, resolver: res, sanctions: agg, opts: opts}
}

// Run executes one pass over the page. lastEdit is the timestamp of the
// previous successful edit (zero when unknown) and is used to space out
// consecutive edits. Returns ErrNoOpenReports or ErrNothingToUpdate for
// the explicit no-op outcomes.
func (e *Engine) Run(ctx context.Context, lastEdit time.Time) (*Result, error) {
	runLog := log.With().Str("run", uuid.NewString()[:8]).Str("page", e.opts.Page).Logger()

	rev, err := e.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}

	records := report.Parse(rev.Content)
	if len(records) == 0 {
		return nil, ErrNoOpenReports
	}
	runLog.Info().Int("reports", len(records)).Msg("parsed open reports")

	// Identifier resolution must finish before any sanction lookup;
	// the local phase must finish before the global one.
	e.resolver.Resolve(ctx, records)
	e.sanctions.CheckLocal(ctx, records)
	if e.opts.CheckGlobal {
		e.sanctions.CheckGlobal(ctx, records)
	}

	sanctioned, changed := report.BuildReplacements(records)
	if !changed {
		return nil, ErrNothingToUpdate
	}

	summary := report.MaintenanceSummary
	if sanctioned {
		summary = report.BuildSummary(records)
	}

	if err := e.spaceOut(ctx, lastEdit, runLog); err != nil {
		return nil, err
	}

	// Re-fetch immediately before writing so concurrent edits by other
	// actors aren't clobbered; without a fresh base there is no edit.
	latest, err := e.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("aborting edit, re-fetch failed: %w", err)
	}

	content := latest.Content
	sanctionCount, normalizedCount := 0, 0
	for _, r := range records {
		if r.NewText == "" {
			continue
		}
		// The report may have been removed or closed between fetches;
		// count only replacements that actually land.
		if !strings.Contains(content, r.OriginalText) {
			continue
		}
		content = strings.ReplaceAll(content, r.OriginalText, r.NewText)
		if r.Sanctioned() {
			sanctionCount++
		} else {
			normalizedCount++
		}
	}

	var rejected *mediawiki.EditError
	err = retry.Do(ctx, e.opts.Retry, "edit", func() error {
		err := e.pages.EditPage(ctx, mediawiki.EditRequest{
			Title:         e.opts.Page,
			Text:          content,
			Summary:       summary,
			Minor:         true,
			Bot:           !sanctioned,
			BaseTimestamp: latest.BaseTimestamp,
			CurTimestamp:  latest.CurTimestamp,
			Token:         e.opts.Token,
		})
		if errors.As(err, &rejected) {
			// Explicit rejection; retrying won't help.
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("edit failed: %w", err)
	}
	if rejected != nil {
		return nil, rejected
	}

	runLog.Info().Int("sanctioned", sanctionCount).Int("normalized", normalizedCount).
		Str("summary", summary).Msg("page updated")
	return &Result{
		EditedAt:   time.Now().UTC().Truncate(time.Second),
		Sanctioned: sanctionCount,
		Normalized: normalizedCount,
		Summary:    summary,
	}, nil
}

func (e *Engine) fetch(ctx context.Context) (*mediawiki.Revision, error) {
	var rev *mediawiki.Revision
	err := retry.Do(ctx, e.opts.Retry, "fetch", func() error {
		var err error
		rev, err = e.pages.GetLatestRevision(ctx, e.opts.Page)
		if errors.Is(err, mediawiki.ErrPageMissing) {
			rev = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if rev == nil {
		return nil, mediawiki.ErrPageMissing
	}
	return rev, nil
}

// spaceOut waits until at least EditSpacing has passed since lastEdit.
func (e *Engine) spaceOut(ctx context.Context, lastEdit time.Time, runLog zerolog.Logger) error {
	if lastEdit.IsZero() || e.opts.EditSpacing <= 0 {
		return nil
	}
	wait := e.opts.EditSpacing - time.Since(lastEdit)
	if wait <= 0 {
		return nil
	}
	runLog.Debug().Dur("wait", wait).Msg("spacing out from previous edit")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}
