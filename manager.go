package samplepool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/driftwhale/samplepool/internal/cache"
	"github.com/driftwhale/samplepool/internal/queue"
)

// Config assembles a Manager. Decoder is the only required field,
// everything else has a production default.
type Config struct {
	Settings Settings
	// Catalog of known sources, DefaultCatalog when nil
	Catalog *Catalog
	// Selector maps continuous values to categories, DefaultSelector
	// when nil
	Selector *Selector
	// Fetcher performs HTTP transfers, HTTPFetcher when nil
	Fetcher Fetcher
	// Decoder turns downloaded bytes into PCM, required
	Decoder Decoder
	// Relays to fall back through, DefaultRelays when nil
	Relays []Relay
	Logger *log.Logger
	// FS backs the cache, the OS filesystem when nil
	FS afero.Fs
}

// Manager owns the sample subsystem: the persistent cache, the
// per-category pools, and the background refresh worker. Construction
// performs no network traffic, downloads start only on an explicit
// trigger or an on-demand pool miss.
type Manager struct {
	settings Settings
	logger   *log.Logger
	index    *cache.Index
	catalog  *Catalog
	selector *Selector
	pools    *samplePools
	pipe     *pipeline
	coord    *coordinator
	jobs     *queue.Queue
	evictor  *cache.SizeEvictor

	ctx    context.Context
	cancel context.CancelFunc

	lifeMu sync.Mutex
	wg     sync.WaitGroup
	closed atomic.Bool

	refreshing atomic.Int32

	hydrateMu sync.Mutex
	hydrated  map[string]bool
}

// New builds a Manager. The only fatal condition is a cache directory
// that cannot be created, everything else degrades with a warning.
func New(cfg Config) (*Manager, error) {
	if cfg.Decoder == nil {
		return nil, ErrDecoderRequired
	}

	settings := cfg.Settings.withDefaults()
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithPrefix("samples")

	fs := cfg.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}

	if settings.LegacyCacheDir != "" {
		cache.Migrate(fs, settings.LegacyCacheDir, settings.CacheDir, logger)
	}

	index, err := cache.NewWithFS(fs, settings.CacheDir, logger)
	if err != nil {
		return nil, err
	}

	catalog := cfg.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	selector := cfg.Selector
	if selector == nil {
		selector = DefaultSelector()
	}
	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = NewHTTPFetcher(settings.HTTPTimeout, settings.UserAgent)
	}
	relays := cfg.Relays
	if relays == nil {
		relays = DefaultRelays()
	}

	pipe := &pipeline{
		index:      index,
		fetcher:    fetcher,
		decoder:    cfg.Decoder,
		validator:  settings.validator(),
		policy:     settings.retryPolicy(),
		relays:     newRelayChain(relays, logger),
		limiters:   newHostLimiters(settings.RequestPause, settings.SlowHostPause, settings.SlowHosts),
		relayPause: settings.RelayPause,
		logger:     logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		settings: settings,
		logger:   logger,
		index:    index,
		catalog:  catalog,
		selector: selector,
		pools:    newSamplePools(),
		pipe:     pipe,
		coord:    newCoordinator(pipe, catalog, settings.Concurrency, settings.CategoryDeadline, logger),
		jobs:     queue.New(settings.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		hydrated: make(map[string]bool),
	}
	if settings.MaxCacheBytes > 0 {
		m.evictor = &cache.SizeEvictor{MaxBytes: settings.MaxCacheBytes, Logger: logger}
	}

	m.wg.Add(1)
	go m.dispatch()

	if settings.RefreshCadence > 0 {
		m.wg.Add(1)
		go m.schedule(settings.RefreshCadence)
	}

	if settings.WatchCache {
		if _, ok := fs.(*afero.OsFs); ok {
			w, werr := newCacheWatcher(settings.CacheDir, m.invalidatePools, logger)
			if werr != nil {
				logger.Warn("cache watcher unavailable", "error", werr)
			} else {
				m.wg.Add(1)
				go func() {
					defer m.wg.Done()
					w.run(m.ctx)
				}()
			}
		} else {
			logger.Debug("cache watching needs the OS filesystem, skipping")
		}
	}

	logger.Info("sample manager ready",
		"cache_dir", settings.CacheDir,
		"cached_assets", index.Len(),
		"categories", len(catalog.Categories()))
	return m, nil
}

// GetSample returns a random decoded sample from a category. When the
// pool is empty it returns false immediately, optionally queueing a
// background download so a later call can succeed.
func (m *Manager) GetSample(category string) (*Sample, bool) {
	if m.closed.Load() {
		return nil, false
	}
	m.hydrate(category)
	sample, ok := m.pools.Pick(category)
	if !ok && m.settings.FetchOnDemand && m.catalog.Has(category) {
		m.enqueue(category, false)
	}
	return sample, ok
}

// GetSampleForValue maps a continuous value onto a category and picks
// from its pool.
func (m *Manager) GetSampleForValue(value float64) (*Sample, bool) {
	return m.GetSample(m.selector.CategoryFor(value))
}

// TriggerRefresh starts a full refresh of every category and returns a
// channel that yields the report when the pass finishes. The channel
// is closed without a report when the manager is already closed.
func (m *Manager) TriggerRefresh() <-chan RefreshReport {
	ch := make(chan RefreshReport, 1)
	started := m.startTask(func() {
		defer close(ch)
		ch <- m.refreshAll(m.ctx)
	})
	if !started {
		close(ch)
	}
	return ch
}

// RequestCategory queues a refresh of one category. Requesting a
// category that is already pending is not an error.
func (m *Manager) RequestCategory(category string) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	if !m.catalog.Has(category) {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	if err := m.jobs.Enqueue(queue.NewJob(category, true)); err != nil {
		if errors.Is(err, queue.ErrAlreadyQueued) {
			return nil
		}
		if errors.Is(err, queue.ErrQueueClosed) {
			return ErrManagerClosed
		}
		return err
	}
	return nil
}

// Stats returns a snapshot of the cache and the in-memory pools.
func (m *Manager) Stats() Stats {
	cs := m.index.Stats()
	return Stats{
		TotalCached:       cs.TotalFiles,
		TotalBytes:        cs.TotalBytes,
		PerCategory:       cs.PerCategory,
		PoolSizes:         m.pools.Counts(),
		RefreshInProgress: m.refreshing.Load() > 0,
	}
}

// Close stops background work, waits for it, and saves the manifest.
// Close is idempotent.
func (m *Manager) Close() error {
	m.lifeMu.Lock()
	if m.closed.Load() {
		m.lifeMu.Unlock()
		return nil
	}
	m.closed.Store(true)
	m.lifeMu.Unlock()

	m.cancel()
	m.jobs.Close()
	m.wg.Wait()

	if err := m.index.Close(); err != nil {
		m.logger.Error("cache manifest save failed on close", "error", err)
		return err
	}
	m.logger.Info("sample manager closed")
	return nil
}

// startTask runs fn on the manager's wait group unless the manager is
// closed. The mutex keeps the Add from racing a concurrent Close.
func (m *Manager) startTask(fn func()) bool {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.closed.Load() {
		return false
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
	return true
}

// dispatch consumes refresh jobs until the queue closes.
func (m *Manager) dispatch() {
	defer m.wg.Done()
	for {
		job, err := m.jobs.Dequeue()
		if err != nil {
			return
		}
		if m.ctx.Err() != nil {
			return
		}
		if job.Category == "" {
			m.refreshAll(m.ctx)
			continue
		}
		cr := m.refreshOne(m.ctx, job.Category)
		m.logger.Info("category refresh complete",
			"category", job.Category, "fetched", cr.Fetched,
			"cached", cr.Cached, "failed", cr.Failed, "manual", job.Manual)
	}
}

// schedule queues a full refresh on a fixed cadence.
func (m *Manager) schedule(cadence time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.enqueue("", false)
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) enqueue(category string, manual bool) {
	err := m.jobs.Enqueue(queue.NewJob(category, manual))
	switch {
	case err == nil:
	case errors.Is(err, queue.ErrAlreadyQueued):
		m.logger.Debug("refresh already queued", "category", category)
	case errors.Is(err, queue.ErrQueueClosed):
	default:
		m.logger.Warn("refresh queue full, dropping request", "category", category)
	}
}

func (m *Manager) refreshAll(ctx context.Context) RefreshReport {
	m.refreshing.Add(1)
	defer m.refreshing.Add(-1)

	report, pools := m.coord.RefreshAll(ctx)
	for cat, samples := range pools {
		m.pools.Replace(cat, samples)
		m.markHydrated(cat)
	}
	m.evict()
	m.logger.Info("refresh complete",
		"id", report.ID,
		"fetched", report.TotalFetched(),
		"failed", report.TotalFailed(),
		"elapsed", report.Elapsed)
	return report
}

func (m *Manager) refreshOne(ctx context.Context, category string) CategoryReport {
	m.refreshing.Add(1)
	defer m.refreshing.Add(-1)

	cr, samples := m.coord.RefreshCategory(ctx, category)
	if samples != nil {
		m.pools.Replace(category, samples)
		m.markHydrated(category)
	}
	m.evict()
	return cr
}

// hydrate decodes a category's cached assets into its pool the first
// time the category is asked for. Refreshes mark categories hydrated
// themselves, so this is only paid on the cold path.
func (m *Manager) hydrate(category string) {
	m.hydrateMu.Lock()
	defer m.hydrateMu.Unlock()
	if m.hydrated[category] {
		return
	}
	m.hydrated[category] = true

	var samples []*Sample
	for _, entry := range m.index.Entries() {
		if entry.Category != category {
			continue
		}
		data, err := m.index.ReadAsset(entry)
		if err != nil {
			continue
		}
		audio, err := m.pipe.decoder.Decode(m.ctx, data)
		if err != nil {
			m.logger.Warn("cached asset no longer decodes, dropping",
				"source_key", entry.SourceKey, "error", err)
			_ = m.index.Remove(entry.SourceKey)
			continue
		}
		samples = append(samples, &Sample{
			SourceKey: entry.SourceKey,
			Category:  entry.Category,
			Path:      m.pipe.assetPath(entry),
			Audio:     audio,
			Size:      int64(len(data)),
			CachedAt:  entry.CachedAt,
		})
	}
	if len(samples) > 0 {
		m.pools.Replace(category, samples)
		m.logger.Debug("pool hydrated from cache",
			"category", category, "samples", len(samples))
	}
}

func (m *Manager) markHydrated(category string) {
	m.hydrateMu.Lock()
	m.hydrated[category] = true
	m.hydrateMu.Unlock()
}

// invalidatePools reacts to cache directory changes made behind our
// back, dropping pools so the next pick rehydrates from disk.
func (m *Manager) invalidatePools() {
	m.logger.Debug("cache directory changed on disk, pools will rehydrate")
	m.hydrateMu.Lock()
	m.hydrated = make(map[string]bool)
	m.hydrateMu.Unlock()
	m.pools.Clear()
}

func (m *Manager) evict() {
	if m.evictor == nil {
		return
	}
	m.evictor.Evict(m.index)
}
