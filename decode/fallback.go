// Package decode wires audio decoders into the sample pool. The
// concrete decoders live in subpackages, this package adds the
// fallback composition used in production.
package decode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/driftwhale/samplepool"
)

// FallbackDecoder tries a primary decoder and switches to a backup
// after too many consecutive failures. While degraded it re-probes the
// primary at an interval, a probe success switches back.
type FallbackDecoder struct {
	primary samplepool.Decoder
	backup  samplepool.Decoder
	logger  *log.Logger

	// maxFailures is how many consecutive primary failures trigger the
	// switch
	maxFailures int
	probeEvery  time.Duration

	mu        sync.Mutex
	failures  int
	degraded  bool
	lastProbe time.Time
}

var _ samplepool.Decoder = (*FallbackDecoder)(nil)

// NewFallback composes two decoders. After three consecutive primary
// failures, calls go to the backup until a probe succeeds.
func NewFallback(primary, backup samplepool.Decoder, logger *log.Logger) *FallbackDecoder {
	if logger == nil {
		logger = log.Default()
	}
	return &FallbackDecoder{
		primary:     primary,
		backup:      backup,
		logger:      logger,
		maxFailures: 3,
		probeEvery:  time.Minute,
	}
}

// Name implements the Decoder interface
func (f *FallbackDecoder) Name() string {
	return fmt.Sprintf("%s+%s", f.primary.Name(), f.backup.Name())
}

// Decode implements the Decoder interface
func (f *FallbackDecoder) Decode(ctx context.Context, data []byte) (*samplepool.Audio, error) {
	f.mu.Lock()
	degraded := f.degraded
	probe := false
	if degraded && time.Since(f.lastProbe) >= f.probeEvery {
		probe = true
		f.lastProbe = time.Now()
	}
	f.mu.Unlock()

	if degraded {
		if probe {
			audio, err := f.primary.Decode(ctx, data)
			if err == nil {
				f.recover()
				return audio, nil
			}
		}
		return f.backup.Decode(ctx, data)
	}

	audio, err := f.primary.Decode(ctx, data)
	if err == nil {
		f.reset()
		return audio, nil
	}
	if ctx.Err() != nil {
		// A canceled context says nothing about decoder health.
		return nil, err
	}

	f.recordFailure(err)
	return f.backup.Decode(ctx, data)
}

func (f *FallbackDecoder) recordFailure(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures++
	if !f.degraded && f.failures >= f.maxFailures {
		f.degraded = true
		// We just watched the primary fail, no point probing right away.
		f.lastProbe = time.Now()
		f.logger.Warn("primary decoder degraded, switching to backup",
			"primary", f.primary.Name(), "backup", f.backup.Name(),
			"consecutive_failures", f.failures, "error", err)
	}
}

func (f *FallbackDecoder) reset() {
	f.mu.Lock()
	f.failures = 0
	f.mu.Unlock()
}

func (f *FallbackDecoder) recover() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.degraded {
		f.logger.Info("primary decoder recovered", "primary", f.primary.Name())
	}
	f.degraded = false
	f.failures = 0
}

// Degraded reports whether calls are currently served by the backup.
func (f *FallbackDecoder) Degraded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.degraded
}
