package samplepool

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// coordinator drives refresh passes: categories fan out concurrently
// under a bound, sources within a category run strictly one after
// another so origins see a polite request stream.
type coordinator struct {
	pipe        *pipeline
	catalog     *Catalog
	concurrency int
	deadline    time.Duration
	logger      *log.Logger

	mu     sync.Mutex
	active map[string]bool
}

func newCoordinator(pipe *pipeline, catalog *Catalog, concurrency int, deadline time.Duration, logger *log.Logger) *coordinator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &coordinator{
		pipe:        pipe,
		catalog:     catalog,
		concurrency: concurrency,
		deadline:    deadline,
		logger:      logger,
		active:      make(map[string]bool),
	}
}

// claim marks a category as being refreshed. A second refresh of the
// same category is skipped instead of queued behind the first.
func (c *coordinator) claim(category string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active[category] {
		return false
	}
	c.active[category] = true
	return true
}

func (c *coordinator) release(category string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, category)
}

// RefreshAll refreshes every catalog category and returns the report
// together with the decoded samples per category. Failures never stop
// other categories.
func (c *coordinator) RefreshAll(ctx context.Context) (RefreshReport, map[string][]*Sample) {
	report := RefreshReport{
		ID:         uuid.NewString(),
		StartedAt:  time.Now(),
		Categories: make(map[string]CategoryReport),
	}
	pools := make(map[string][]*Sample)

	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, category := range c.catalog.Categories() {
		wg.Add(1)
		go func(cat string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			cr, samples := c.RefreshCategory(ctx, cat)
			mu.Lock()
			report.Categories[cat] = cr
			if samples != nil {
				pools[cat] = samples
			}
			mu.Unlock()
		}(category)
	}
	wg.Wait()

	report.Elapsed = time.Since(report.StartedAt)
	return report, pools
}

// RefreshCategory refreshes one category under its own deadline. The
// returned samples are nil when the category was already being
// refreshed elsewhere, non-nil (possibly empty) otherwise.
func (c *coordinator) RefreshCategory(parent context.Context, category string) (CategoryReport, []*Sample) {
	cr := CategoryReport{Category: category}
	if !c.claim(category) {
		c.logger.Debug("category refresh already running, skipping", "category", category)
		cr.Skipped = true
		return cr, nil
	}
	defer c.release(category)

	ctx, cancel := context.WithTimeout(parent, c.deadline)
	defer cancel()

	descriptors := c.catalog.CacheableDescriptors(category)
	samples := make([]*Sample, 0, len(descriptors))
	for _, desc := range descriptors {
		sample, fromCache, err := c.pipe.Fetch(ctx, desc)
		if err != nil {
			cr.Failed++
			cr.Errors = append(cr.Errors, err.Error())
			c.logger.Warn("source failed", "category", category, "url", desc.URL, "error", err)
			if ctx.Err() != nil {
				c.logger.Warn("category deadline reached", "category", category,
					"completed", len(samples), "of", len(descriptors))
				break
			}
			continue
		}
		if fromCache {
			cr.Cached++
		} else {
			cr.Fetched++
		}
		samples = append(samples, sample)
	}
	return cr, samples
}
