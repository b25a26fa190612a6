// Package mock provides a controllable decoder for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/driftwhale/samplepool"
)

// Decoder is a test double that passes payload bytes straight through
// as PCM. Failures and latency are injectable.
type Decoder struct {
	mu        sync.Mutex
	failErr   error
	delay     time.Duration
	callCount int
}

var _ samplepool.Decoder = (*Decoder)(nil)

// New returns a mock decoder that succeeds instantly.
func New() *Decoder {
	return &Decoder{}
}

// Name implements the Decoder interface
func (d *Decoder) Name() string {
	return "mock"
}

// Decode implements the Decoder interface
func (d *Decoder) Decode(ctx context.Context, data []byte) (*samplepool.Audio, error) {
	d.mu.Lock()
	d.callCount++
	failErr := d.failErr
	delay := d.delay
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failErr != nil {
		return nil, failErr
	}

	pcm := make([]byte, len(data))
	copy(pcm, data)
	frames := len(pcm) / 2
	return &samplepool.Audio{
		PCM:        pcm,
		SampleRate: 44100,
		Channels:   1,
		Duration:   time.Duration(frames) * time.Second / 44100,
	}, nil
}

// SetFailure makes subsequent Decode calls return err.
func (d *Decoder) SetFailure(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failErr = err
}

// ClearFailure restores successful decoding.
func (d *Decoder) ClearFailure() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failErr = nil
}

// SetDelay makes Decode block for the given duration.
func (d *Decoder) SetDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delay = delay
}

// GetCallCount returns how many times Decode has been called.
func (d *Decoder) GetCallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.callCount
}

// Reset restores the decoder to its initial state.
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failErr = nil
	d.delay = 0
	d.callCount = 0
}
