// Package scan drives the repeated scan-extract-dedup-notify cycle over the
// configured search queries.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"marketwatch/browse"
	"marketwatch/filter"
	"marketwatch/pkg/offer"
)

// Source renders search pages.
type Source interface {
	Render(ctx context.Context, pageURL string) (*browse.Document, error)
}

// Extractor turns one rendered document into raw candidates.
type Extractor interface {
	Extract(doc *browse.Document) []offer.RawCandidate
}

// Registrar is the dedup store: insert-if-absent keyed by offer id.
type Registrar interface {
	TryRegister(ctx context.Context, rec offer.Record) (created bool, err error)
}

// Notifier pushes a message for a newly registered offer. Best-effort.
type Notifier interface {
	Notify(ctx context.Context, rec offer.Record)
}

// Controller orchestrates scan cycles and owns the polling loop.
type Controller struct {
	source     Source
	extractor  Extractor
	store      Registrar
	notifier   Notifier
	queries    []offer.SearchQuery
	searchBase string
	filterOpts filter.Options
	interval   time.Duration
	logger     *slog.Logger
}

// Config holds controller dependencies and tuning.
type Config struct {
	Source     Source
	Extractor  Extractor
	Store      Registrar
	Notifier   Notifier
	Queries    []offer.SearchQuery
	SearchBase string
	FilterOpts filter.Options
	Interval   time.Duration
	Logger     *slog.Logger
}

// New creates a scan controller.
func New(cfg *Config) *Controller {
	return &Controller{
		source:     cfg.Source,
		extractor:  cfg.Extractor,
		store:      cfg.Store,
		notifier:   cfg.Notifier,
		queries:    cfg.Queries,
		searchBase: cfg.SearchBase,
		filterOpts: cfg.FilterOpts,
		interval:   cfg.Interval,
		logger:     cfg.Logger,
	}
}

// Run loops forever at the configured interval. Cancellation is honored only
// between cycles: the current cycle finishes, then the loop stops.
func (c *Controller) Run(ctx context.Context) {
	c.logger.Info("Scan loop started",
		"queries", len(c.queries),
		"interval", c.interval.String())

	for {
		c.runCycleGuarded(ctx)

		select {
		case <-ctx.Done():
			c.logger.Info("Scan loop stopped", "reason", ctx.Err())
			return
		case <-time.After(c.interval):
		}
	}
}

// runCycleGuarded keeps an unexpected panic inside one cycle from killing
// the loop; the next cycle runs on schedule.
func (c *Controller) runCycleGuarded(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Scan cycle panicked", "panic", r)
		}
	}()
	c.RunCycle(ctx)
}

// RunCycle processes every configured query once, in order. A failing query
// is logged and skipped; it never aborts the rest of the cycle.
func (c *Controller) RunCycle(ctx context.Context) {
	start := time.Now()
	var totals cycleStats

	for _, q := range c.queries {
		stats, err := c.scanQuery(ctx, q)
		if err != nil {
			c.logger.Warn("Query scan failed, continuing with next query",
				"query", q.Query,
				"error", err)
			continue
		}
		totals.add(stats)
	}

	c.logger.Info("Scan cycle complete",
		"duration_ms", time.Since(start).Milliseconds(),
		"extracted", totals.extracted,
		"rejected", totals.rejected,
		"duplicates", totals.duplicates,
		"new", totals.created)
}

type cycleStats struct {
	extracted  int
	rejected   int
	duplicates int
	created    int
}

func (s *cycleStats) add(o cycleStats) {
	s.extracted += o.extracted
	s.rejected += o.rejected
	s.duplicates += o.duplicates
	s.created += o.created
}

// scanQuery runs one query through the full pipeline: navigate, extract,
// normalize/filter, dedup, notify.
func (c *Controller) scanQuery(ctx context.Context, q offer.SearchQuery) (cycleStats, error) {
	var stats cycleStats

	searchURL, err := SearchURL(c.searchBase, q)
	if err != nil {
		return stats, fmt.Errorf("build search url: %w", err)
	}

	c.logger.Info("Scanning query",
		"query", q.Query,
		"min_price", q.MinPrice,
		"max_price", q.MaxPrice)

	doc, err := c.source.Render(ctx, searchURL)
	if err != nil {
		return stats, fmt.Errorf("render %s: %w", searchURL, err)
	}

	candidates := c.extractor.Extract(doc)
	stats.extracted = len(candidates)

	for _, cand := range candidates {
		res := filter.Normalize(cand, q, c.filterOpts)
		if !res.Accepted {
			stats.rejected++
			c.logger.Debug("Candidate rejected",
				"offer_id", cand.ExternalID,
				"title", cand.Title,
				"reason", res.Reason,
				"keyword", res.Keyword)
			continue
		}

		rec := offer.Record{
			ID:           cand.ExternalID,
			Title:        cand.Title,
			PriceText:    cand.PriceText,
			PriceNumeric: res.PriceNumeric,
			Link:         cand.Link,
			Confidence:   cand.Confidence,
			FirstSeenAt:  time.Now().UTC(),
		}

		created, err := c.store.TryRegister(ctx, rec)
		if err != nil {
			c.logger.Warn("Offer registration failed",
				"offer_id", rec.ID,
				"error", err)
			continue
		}
		if !created {
			stats.duplicates++
			continue
		}

		stats.created++
		c.logger.Info("New offer detected",
			"offer_id", rec.ID,
			"title", rec.Title,
			"price", rec.PriceText,
			"confidence", rec.Confidence)

		// Notification is a side effect of a successful registration, not a
		// precondition: the record stays regardless of delivery outcome.
		c.notifier.Notify(ctx, rec)
	}

	return stats, nil
}

// SearchURL builds the marketplace search URL for a query.
func SearchURL(base string, q offer.SearchQuery) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("query", q.Query)
	if q.MinPrice != nil {
		params.Set("minPrice", strconv.Itoa(*q.MinPrice))
	}
	if q.MaxPrice != nil {
		params.Set("maxPrice", strconv.Itoa(*q.MaxPrice))
	}
	params.Set("exact", "false")

	u.RawQuery = params.Encode()
	return u.String(), nil
}
