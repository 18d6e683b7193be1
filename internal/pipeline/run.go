// Package pipeline drives one full scrape-filter-dedupe-notify run.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/job-alert/internal/keywords"
	"github.com/jonathan/job-alert/internal/notify"
	"github.com/jonathan/job-alert/internal/retry"
	"github.com/jonathan/job-alert/internal/scrape"
	"github.com/jonathan/job-alert/internal/types"
)

// StateStore is the durable state the pipeline depends on. Any error from it
// is fatal for the run: the pipeline never guesses dedupe state, and never
// sends a notification it cannot confirm is new.
type StateStore interface {
	FilterUnnotified(ctx context.Context, candidates []types.Posting) ([]types.Posting, error)
	MarkNotified(ctx context.Context, postings []types.Posting, notifiedAt time.Time) error
	RecordSiteOutcome(ctx context.Context, source string, succeeded bool, at time.Time) (int, error)
	LogRun(ctx context.Context, runAt time.Time, newCount, failedSiteCount int) error
}

// Notifier delivers one structured run summary. Delivery failure is logged by
// the pipeline, never retried.
type Notifier interface {
	Notify(ctx context.Context, summary notify.Summary) error
}

// Config holds the pipeline's own knobs; everything site-specific lives in
// the scrapers.
type Config struct {
	RetryAttempts  int
	RetryDelay     time.Duration
	AlertThreshold int
	TZ             string
}

// Pipeline orchestrates one run across all configured sites.
type Pipeline struct {
	cfg      Config
	scrapers []scrape.Scraper
	store    StateStore
	notifier Notifier
	filter   *keywords.Filter
	log      *slog.Logger

	now func() time.Time
}

// New assembles a Pipeline.
func New(cfg Config, scrapers []scrape.Scraper, store StateStore, notifier Notifier, filter *keywords.Filter, log *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		scrapers: scrapers,
		store:    store,
		notifier: notifier,
		filter:   filter,
		log:      log,
		now:      time.Now,
	}
}

// Run executes one full pipeline run: scrape every site (with retry, in
// parallel, isolated from each other), keep keyword-relevant postings, drop
// everything already notified, update per-site failure streaks, and send one
// aggregated notification iff there are new postings. Postings are committed
// to the notified-set only when a notification is about to go out.
func (p *Pipeline) Run(ctx context.Context) (*types.PipelineResult, error) {
	runAt := p.now().UTC()

	results := p.scrapeAll(ctx)

	var collected []types.Posting
	successSites, failedSites := 0, 0
	for _, r := range results {
		if r.OK() {
			successSites++
			collected = append(collected, r.Postings...)
		} else {
			failedSites++
			p.log.Warn("site scrape failed", "source", r.Source, "error", r.Err)
		}
	}

	var matched []types.Posting
	for _, post := range collected {
		if p.filter.Relevant(post.Title, post.ContentSnippet) {
			matched = append(matched, post)
		}
	}
	matched = types.DedupePostings(matched)

	newPostings, err := p.store.FilterUnnotified(ctx, matched)
	if err != nil {
		return nil, err
	}

	var alerts, transient []types.SiteError
	for _, r := range results {
		streak, err := p.store.RecordSiteOutcome(ctx, r.Source, r.OK(), runAt)
		if err != nil {
			return nil, err
		}
		if r.OK() {
			continue
		}
		siteErr := types.SiteError{Source: r.Source, Message: r.Err.Error(), Streak: streak}
		if streak >= p.cfg.AlertThreshold {
			alerts = append(alerts, siteErr)
		} else {
			transient = append(transient, siteErr)
		}
	}

	result := &types.PipelineResult{
		TotalCollected: len(collected),
		KeywordMatched: len(matched),
		NewPostings:    newPostings,
		SuccessSites:   successSites,
		FailedSites:    failedSites,
		Alerts:         alerts,
		Transient:      transient,
	}

	// Delivery policy: only new content triggers a message. Site failures
	// alone never do, whatever the streak; the heartbeat path covers
	// prolonged silence separately.
	if len(newPostings) > 0 {
		// Commit point. Once these keys are in the notified-set they are
		// never included in a payload again, even if delivery fails below.
		if err := p.store.MarkNotified(ctx, newPostings, runAt); err != nil {
			return nil, err
		}

		summary := notify.Summary{
			RunAt:          runAt,
			TZ:             p.cfg.TZ,
			NewPostings:    newPostings,
			KeywordMatched: len(matched),
			SuccessSites:   successSites,
			FailedSites:    failedSites,
			Alerts:         alerts,
			Transient:      transient,
			AlertThreshold: p.cfg.AlertThreshold,
		}
		if err := p.notifier.Notify(ctx, summary); err != nil {
			p.log.Error("notification delivery failed", "error", err)
		} else {
			result.Sent = true
		}
	}

	if err := p.store.LogRun(ctx, runAt, len(newPostings), failedSites); err != nil {
		p.log.Warn("failed to append run log", "error", err)
	}

	p.log.Info("run complete",
		"collected", result.TotalCollected,
		"matched", result.KeywordMatched,
		"new", len(result.NewPostings),
		"failed_sites", failedSites,
		"sent", result.Sent,
	)
	return result, nil
}

// scrapeAll runs every site's scraper concurrently, each wrapped in the retry
// budget. Failures are captured as data; one site can never abort another.
func (p *Pipeline) scrapeAll(ctx context.Context) []types.SiteResult {
	results := make([]types.SiteResult, len(p.scrapers))
	g, gctx := errgroup.WithContext(ctx)
	for i, scraper := range p.scrapers {
		g.Go(func() error {
			postings, err := retry.Do(gctx, p.cfg.RetryAttempts, p.cfg.RetryDelay, scraper.Scrape)
			if err != nil {
				results[i] = types.SiteResult{Source: scraper.Source(), Err: err}
			} else {
				results[i] = types.SiteResult{Source: scraper.Source(), Postings: postings}
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
