package samplepool

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/driftwhale/samplepool/internal/cache"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

// audioBytes returns n bytes that look nothing like markup.
func audioBytes(n int) []byte {
	b := make([]byte, n)
	copy(b, "RIFF")
	for i := 4; i < n; i++ {
		b[i] = byte(i*7 + 13)
	}
	return b
}

// fakeFetcher records every request and answers through a pluggable
// handler. The default handler returns a plausible audio payload.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   []string
	handler func(ctx context.Context, req FetchRequest) (*FetchResponse, error)
}

func newFakeFetcher(handler func(ctx context.Context, req FetchRequest) (*FetchResponse, error)) *fakeFetcher {
	return &fakeFetcher{handler: handler}
}

func (f *fakeFetcher) Fetch(ctx context.Context, req FetchRequest) (*FetchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.URL)
	handler := f.handler
	f.mu.Unlock()
	if handler == nil {
		return &FetchResponse{StatusCode: 200, Body: audioBytes(64)}, nil
	}
	return handler(ctx, req)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) callsTo(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.calls {
		if strings.Contains(u, substr) {
			n++
		}
	}
	return n
}

func (f *fakeFetcher) exactCalls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.calls {
		if u == url {
			n++
		}
	}
	return n
}

// stubDecoder passes payload bytes through as PCM, with injectable
// failures and latency.
type stubDecoder struct {
	mu    sync.Mutex
	fail  error
	delay time.Duration
	calls int
}

func (d *stubDecoder) Name() string { return "stub" }

func (d *stubDecoder) Decode(ctx context.Context, data []byte) (*Audio, error) {
	d.mu.Lock()
	d.calls++
	fail := d.fail
	delay := d.delay
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		return nil, fail
	}
	pcm := make([]byte, len(data))
	copy(pcm, data)
	return &Audio{
		PCM:        pcm,
		SampleRate: 44100,
		Channels:   1,
		Duration:   time.Duration(len(pcm)/2) * time.Second / 44100,
	}, nil
}

func (d *stubDecoder) setFailure(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
}

func (d *stubDecoder) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func testRelays() []Relay {
	return []Relay{
		{Name: "relay-a", Prefix: "https://relay-a.test/fetch?url="},
		{Name: "relay-b", Prefix: "https://relay-b.test/fetch?url="},
	}
}

func testRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
		JitterMax:   0,
	}
}

func newTestIndex(t *testing.T) *cache.Index {
	t.Helper()
	idx, err := cache.NewWithFS(afero.NewMemMapFs(), "/cache", testLogger())
	if err != nil {
		t.Fatalf("create index: %v", err)
	}
	return idx
}

func newTestPipeline(t *testing.T, fetcher Fetcher) (*pipeline, *cache.Index) {
	t.Helper()
	idx := newTestIndex(t)
	p := &pipeline{
		index:     idx,
		fetcher:   fetcher,
		decoder:   &stubDecoder{},
		validator: Validator{MinBytes: 8, SniffWindow: 512},
		policy:    testRetryPolicy(),
		relays:    newRelayChain(testRelays(), testLogger()),
		limiters:  newHostLimiters(-1, -1, nil),
		logger:    testLogger(),
	}
	return p, idx
}

// testSettings disables pacing and shrinks retry delays so tests run
// fast.
func testSettings(dir string) Settings {
	return Settings{
		CacheDir:         dir,
		Concurrency:      2,
		CategoryDeadline: 5 * time.Second,
		RequestPause:     -1,
		SlowHostPause:    -1,
		RelayPause:       -1,
		HTTPTimeout:      5 * time.Second,
		MaxAttempts:      2,
		RetryBaseDelay:   time.Millisecond,
		RetryMaxDelay:    4 * time.Millisecond,
		RetryJitter:      -1,
		MinPayloadBytes:  8,
		QueueSize:        8,
	}
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// sourceURL builds a catalog URL for tests.
func sourceURL(host, name string) string {
	return fmt.Sprintf("https://%s/samples/%s.mp3", host, name)
}
