package samplepool

import (
	"time"

	"github.com/caarlos0/env/v11"
	homedir "github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// Settings holds every tunable of the sample pool subsystem. The zero
// value is not usable on its own, start from DefaultSettings or let
// Manager fill the gaps.
type Settings struct {
	// CacheDir is where downloaded assets and the manifest live
	CacheDir string `env:"SAMPLES_CACHE_DIR"`
	// LegacyCacheDir, when set and present on disk, is migrated into
	// CacheDir before the index loads
	LegacyCacheDir string `env:"SAMPLES_LEGACY_CACHE_DIR"`
	// MaxCacheBytes bounds the cache on disk, zero means unbounded
	MaxCacheBytes int64 `env:"SAMPLES_MAX_CACHE_BYTES"`

	// Concurrency bounds how many categories refresh at once
	Concurrency int `env:"SAMPLES_CONCURRENCY"`
	// CategoryDeadline bounds one category's refresh pass
	CategoryDeadline time.Duration `env:"SAMPLES_CATEGORY_DEADLINE"`
	// RequestPause is the minimum gap between requests to one host,
	// negative disables pacing
	RequestPause time.Duration `env:"SAMPLES_REQUEST_PAUSE"`
	// SlowHostPause replaces RequestPause for hosts known to rate
	// limit, negative disables it
	SlowHostPause time.Duration `env:"SAMPLES_SLOW_HOST_PAUSE"`
	// SlowHosts lists additional hosts that get the slow pause
	SlowHosts []string `env:"SAMPLES_SLOW_HOSTS" envSeparator:","`
	// RelayPause is the fixed wait when switching to the next relay,
	// negative disables it
	RelayPause time.Duration `env:"SAMPLES_RELAY_PAUSE"`
	// RefreshCadence schedules periodic refreshes, zero disables them
	RefreshCadence time.Duration `env:"SAMPLES_REFRESH_CADENCE"`
	// FetchOnDemand queues a background download when a pool comes up
	// empty, enabled by DefaultSettings
	FetchOnDemand bool `env:"SAMPLES_FETCH_ON_DEMAND"`
	// WatchCache reloads pools when the cache directory changes on disk
	WatchCache bool `env:"SAMPLES_WATCH_CACHE"`

	// HTTPTimeout bounds a single transfer
	HTTPTimeout time.Duration `env:"SAMPLES_HTTP_TIMEOUT"`
	// UserAgent identifies us to origins
	UserAgent string `env:"SAMPLES_USER_AGENT"`

	// MaxAttempts is the retry budget per URL
	MaxAttempts int `env:"SAMPLES_MAX_ATTEMPTS"`
	// RetryBaseDelay seeds the backoff curve
	RetryBaseDelay time.Duration `env:"SAMPLES_RETRY_BASE_DELAY"`
	// RetryMaxDelay caps the backoff curve
	RetryMaxDelay time.Duration `env:"SAMPLES_RETRY_MAX_DELAY"`
	// RetryJitter bounds the random pad added to every delay, negative
	// disables jitter
	RetryJitter time.Duration `env:"SAMPLES_RETRY_JITTER"`

	// MinPayloadBytes is the smallest plausible audio download
	MinPayloadBytes int `env:"SAMPLES_MIN_PAYLOAD_BYTES"`
	// QueueSize bounds the pending refresh job queue
	QueueSize int `env:"SAMPLES_QUEUE_SIZE"`
}

// DefaultSettings returns production defaults. The cache lands in the
// user cache directory when one can be resolved.
func DefaultSettings() Settings {
	s := Settings{
		CacheDir:         "samplepool-cache",
		Concurrency:      4,
		CategoryDeadline: 60 * time.Second,
		RequestPause:     250 * time.Millisecond,
		SlowHostPause:    time.Second,
		RelayPause:       300 * time.Millisecond,
		FetchOnDemand:    true,
		HTTPTimeout:      30 * time.Second,
		UserAgent:        "samplepool/1.0",
		MaxAttempts:      6,
		RetryBaseDelay:   time.Second,
		RetryMaxDelay:    30 * time.Second,
		RetryJitter:      500 * time.Millisecond,
		MinPayloadBytes:  1024,
		QueueSize:        32,
	}
	scope := gap.NewScope(gap.User, "samplepool")
	if dir, err := scope.CacheDir(); err == nil && dir != "" {
		s.CacheDir = dir
	}
	return s
}

// SettingsFromEnv overlays SAMPLES_* environment variables on the
// defaults.
func SettingsFromEnv() (Settings, error) {
	s := DefaultSettings()
	if err := env.Parse(&s); err != nil {
		return s, err
	}
	return s.expanded(), nil
}

// SetViperDefaults registers every setting under the "samples" key
// space so hosts embedding this subsystem get documented defaults in
// their config files.
func SetViperDefaults(v *viper.Viper) {
	d := DefaultSettings()
	v.SetDefault("samples.cache.dir", d.CacheDir)
	v.SetDefault("samples.cache.legacy_dir", d.LegacyCacheDir)
	v.SetDefault("samples.cache.max_bytes", d.MaxCacheBytes)
	v.SetDefault("samples.download.concurrency", d.Concurrency)
	v.SetDefault("samples.download.category_deadline", d.CategoryDeadline)
	v.SetDefault("samples.download.request_pause", d.RequestPause)
	v.SetDefault("samples.download.slow_host_pause", d.SlowHostPause)
	v.SetDefault("samples.download.slow_hosts", d.SlowHosts)
	v.SetDefault("samples.download.relay_pause", d.RelayPause)
	v.SetDefault("samples.download.refresh_cadence", d.RefreshCadence)
	v.SetDefault("samples.download.fetch_on_demand", d.FetchOnDemand)
	v.SetDefault("samples.cache.watch", d.WatchCache)
	v.SetDefault("samples.http.timeout", d.HTTPTimeout)
	v.SetDefault("samples.http.user_agent", d.UserAgent)
	v.SetDefault("samples.retry.max_attempts", d.MaxAttempts)
	v.SetDefault("samples.retry.base_delay", d.RetryBaseDelay)
	v.SetDefault("samples.retry.max_delay", d.RetryMaxDelay)
	v.SetDefault("samples.retry.jitter", d.RetryJitter)
	v.SetDefault("samples.validate.min_payload_bytes", d.MinPayloadBytes)
	v.SetDefault("samples.queue_size", d.QueueSize)
}

// SettingsFromViper reads the "samples" key space from an already
// loaded viper instance, falling back to defaults for unset keys.
func SettingsFromViper(v *viper.Viper) Settings {
	s := DefaultSettings()
	if v == nil {
		return s
	}
	if v.IsSet("samples.cache.dir") {
		s.CacheDir = v.GetString("samples.cache.dir")
	}
	if v.IsSet("samples.cache.legacy_dir") {
		s.LegacyCacheDir = v.GetString("samples.cache.legacy_dir")
	}
	if v.IsSet("samples.cache.max_bytes") {
		s.MaxCacheBytes = v.GetInt64("samples.cache.max_bytes")
	}
	if v.IsSet("samples.download.concurrency") {
		s.Concurrency = v.GetInt("samples.download.concurrency")
	}
	if v.IsSet("samples.download.category_deadline") {
		s.CategoryDeadline = v.GetDuration("samples.download.category_deadline")
	}
	if v.IsSet("samples.download.request_pause") {
		s.RequestPause = v.GetDuration("samples.download.request_pause")
	}
	if v.IsSet("samples.download.slow_host_pause") {
		s.SlowHostPause = v.GetDuration("samples.download.slow_host_pause")
	}
	if v.IsSet("samples.download.slow_hosts") {
		s.SlowHosts = v.GetStringSlice("samples.download.slow_hosts")
	}
	if v.IsSet("samples.download.relay_pause") {
		s.RelayPause = v.GetDuration("samples.download.relay_pause")
	}
	if v.IsSet("samples.download.refresh_cadence") {
		s.RefreshCadence = v.GetDuration("samples.download.refresh_cadence")
	}
	if v.IsSet("samples.download.fetch_on_demand") {
		s.FetchOnDemand = v.GetBool("samples.download.fetch_on_demand")
	}
	if v.IsSet("samples.cache.watch") {
		s.WatchCache = v.GetBool("samples.cache.watch")
	}
	if v.IsSet("samples.http.timeout") {
		s.HTTPTimeout = v.GetDuration("samples.http.timeout")
	}
	if v.IsSet("samples.http.user_agent") {
		s.UserAgent = v.GetString("samples.http.user_agent")
	}
	if v.IsSet("samples.retry.max_attempts") {
		s.MaxAttempts = v.GetInt("samples.retry.max_attempts")
	}
	if v.IsSet("samples.retry.base_delay") {
		s.RetryBaseDelay = v.GetDuration("samples.retry.base_delay")
	}
	if v.IsSet("samples.retry.max_delay") {
		s.RetryMaxDelay = v.GetDuration("samples.retry.max_delay")
	}
	if v.IsSet("samples.retry.jitter") {
		s.RetryJitter = v.GetDuration("samples.retry.jitter")
	}
	if v.IsSet("samples.validate.min_payload_bytes") {
		s.MinPayloadBytes = v.GetInt("samples.validate.min_payload_bytes")
	}
	if v.IsSet("samples.queue_size") {
		s.QueueSize = v.GetInt("samples.queue_size")
	}
	return s.expanded()
}

// expanded resolves ~ prefixes in the cache paths.
func (s Settings) expanded() Settings {
	if dir, err := homedir.Expand(s.CacheDir); err == nil {
		s.CacheDir = dir
	}
	if s.LegacyCacheDir != "" {
		if dir, err := homedir.Expand(s.LegacyCacheDir); err == nil {
			s.LegacyCacheDir = dir
		}
	}
	return s
}

// withDefaults fills zero-valued fields so a sparse Settings literal
// still behaves. Booleans are left alone, false is a meaningful value.
func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.CacheDir == "" {
		s.CacheDir = d.CacheDir
	}
	if s.Concurrency <= 0 {
		s.Concurrency = d.Concurrency
	}
	if s.CategoryDeadline <= 0 {
		s.CategoryDeadline = d.CategoryDeadline
	}
	if s.RequestPause == 0 {
		s.RequestPause = d.RequestPause
	}
	if s.SlowHostPause == 0 {
		s.SlowHostPause = d.SlowHostPause
	}
	if s.RelayPause == 0 {
		s.RelayPause = d.RelayPause
	}
	if s.HTTPTimeout <= 0 {
		s.HTTPTimeout = d.HTTPTimeout
	}
	if s.UserAgent == "" {
		s.UserAgent = d.UserAgent
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = d.MaxAttempts
	}
	if s.RetryBaseDelay <= 0 {
		s.RetryBaseDelay = d.RetryBaseDelay
	}
	if s.RetryMaxDelay <= 0 {
		s.RetryMaxDelay = d.RetryMaxDelay
	}
	if s.RetryJitter == 0 {
		s.RetryJitter = d.RetryJitter
	}
	if s.MinPayloadBytes <= 0 {
		s.MinPayloadBytes = d.MinPayloadBytes
	}
	if s.QueueSize <= 0 {
		s.QueueSize = d.QueueSize
	}
	return s.expanded()
}

// retryPolicy derives the retry policy from the settings.
func (s Settings) retryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: s.MaxAttempts,
		BaseDelay:   s.RetryBaseDelay,
		MaxDelay:    s.RetryMaxDelay,
		JitterMax:   s.RetryJitter,
	}
}

// validator derives payload screening thresholds from the settings.
func (s Settings) validator() Validator {
	v := DefaultValidator()
	v.MinBytes = s.MinPayloadBytes
	return v
}
