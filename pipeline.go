package samplepool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/driftwhale/samplepool/internal/cache"
)

// Hosts that throttle aggressively get the longer request pause even
// when the caller does not list them.
var defaultSlowHosts = []string{
	"archive.org",
	"freesound.org",
	"cdn.freesound.org",
}

// hostLimiters paces outbound requests so sequential downloads from
// one host keep a minimum gap between them.
type hostLimiters struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	pause     time.Duration
	slowPause time.Duration
	slow      []string
}

func newHostLimiters(pause, slowPause time.Duration, extraSlow []string) *hostLimiters {
	slow := make([]string, 0, len(defaultSlowHosts)+len(extraSlow))
	slow = append(slow, defaultSlowHosts...)
	slow = append(slow, extraSlow...)
	return &hostLimiters{
		limiters:  make(map[string]*rate.Limiter),
		pause:     pause,
		slowPause: slowPause,
		slow:      slow,
	}
}

func (h *hostLimiters) isSlow(host string) bool {
	for _, s := range h.slow {
		if host == s || strings.HasSuffix(host, "."+s) {
			return true
		}
	}
	return false
}

// wait blocks until the host's next request slot, or until the context
// ends.
func (h *hostLimiters) wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	h.mu.Lock()
	lim, ok := h.limiters[host]
	if !ok {
		pause := h.pause
		if h.isSlow(host) {
			pause = h.slowPause
		}
		if pause <= 0 {
			lim = rate.NewLimiter(rate.Inf, 1)
		} else {
			lim = rate.NewLimiter(rate.Every(pause), 1)
		}
		h.limiters[host] = lim
	}
	h.mu.Unlock()
	return lim.Wait(ctx)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}

// classifyResponse turns a transfer result into a classified failure,
// or nil when the transfer succeeded. Rate limiting and server-side
// trouble stay retryable, other HTTP failures do not.
func classifyResponse(target, via string, resp *FetchResponse, err error) *FetchError {
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return fe
		}
		outcome := OutcomeTransient
		if errors.Is(err, context.Canceled) {
			outcome = OutcomeTerminal
		}
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return fetchFailure(outcome, target, via, status, err)
	}
	if resp == nil {
		return fetchFailure(OutcomeTransient, target, via, 0, errors.New("no response"))
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fetchFailure(OutcomeRateLimited, target, via, resp.StatusCode, nil)
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusRequestTimeout:
		return fetchFailure(OutcomeTransient, target, via, resp.StatusCode, nil)
	default:
		return fetchFailure(OutcomeTerminal, target, via, resp.StatusCode, nil)
	}
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// transferChannel is one way to reach a source, either the origin
// itself or a relay in front of it.
type transferChannel struct {
	name  string
	relay *Relay
}

func (ch transferChannel) requestURL(target string) string {
	if ch.relay == nil {
		return target
	}
	return ch.relay.BuildURL(target)
}

// pipeline moves one source descriptor through the full retrieval
// flow: cache lookup, direct fetch, relay fallback, validation,
// decode, and persistence.
type pipeline struct {
	index      *cache.Index
	fetcher    Fetcher
	decoder    Decoder
	validator  Validator
	policy     RetryPolicy
	relays     *relayChain
	limiters   *hostLimiters
	relayPause time.Duration
	logger     *log.Logger
}

// Fetch returns the decoded sample for a descriptor. The second result
// is true when the sample came straight from the cache without any
// network traffic.
func (p *pipeline) Fetch(ctx context.Context, desc SourceDescriptor) (*Sample, bool, error) {
	key := cache.Key(desc.URL)

	if sample, ok := p.fromCache(ctx, key, desc); ok {
		return sample, true, nil
	}

	body, err := p.download(ctx, desc)
	if err != nil {
		return nil, false, err
	}

	audio, err := p.decoder.Decode(ctx, body)
	if err != nil {
		return nil, false, fetchFailure(OutcomeTerminal, desc.URL, "", 0,
			fmt.Errorf("decode with %s: %w", p.decoder.Name(), err))
	}

	sample := &Sample{
		SourceKey: key,
		Category:  desc.Category,
		Audio:     audio,
		Size:      int64(len(body)),
		CachedAt:  time.Now(),
	}
	entry, err := p.index.StoreAsset(key, desc.Category, body, cache.ExtForURL(desc.URL))
	if err != nil {
		// The sample still works from memory, it just will not survive
		// a restart.
		p.logger.Error("asset persist failed, serving from memory only",
			"url", desc.URL, "error", err)
		return sample, false, nil
	}
	sample.Path = p.assetPath(entry)
	sample.CachedAt = entry.CachedAt
	return sample, false, nil
}

// fromCache serves a descriptor from disk when possible. A cached
// asset that no longer decodes is dropped so the next refresh can
// replace it.
func (p *pipeline) fromCache(ctx context.Context, key string, desc SourceDescriptor) (*Sample, bool) {
	entry, ok := p.index.Lookup(key)
	if !ok {
		return nil, false
	}
	data, err := p.index.ReadAsset(entry)
	if err != nil {
		return nil, false
	}
	audio, err := p.decoder.Decode(ctx, data)
	if err != nil {
		p.logger.Warn("cached asset no longer decodes, dropping",
			"source_key", key, "error", err)
		_ = p.index.Remove(key)
		return nil, false
	}
	return &Sample{
		SourceKey: key,
		Category:  desc.Category,
		Path:      p.assetPath(entry),
		Audio:     audio,
		Size:      int64(len(data)),
		CachedAt:  entry.CachedAt,
	}, true
}

func (p *pipeline) assetPath(entry cache.Entry) string {
	return filepath.Join(p.index.Root(), filepath.FromSlash(entry.LocalPath))
}

// download fetches raw bytes for a descriptor, walking the transfer
// channels in order: the origin first for direct-tier sources, then
// each relay. A validation rejection moves on to the next channel
// rather than retrying the same bytes.
func (p *pipeline) download(ctx context.Context, desc SourceDescriptor) ([]byte, error) {
	var lastErr error
	for i, ch := range p.channels(desc) {
		if i > 0 {
			// Switching relays gets a fixed pause, not a full backoff.
			if err := sleepCtx(ctx, p.relayPause); err != nil {
				return nil, err
			}
		}
		body, err := p.downloadVia(ctx, ch, desc.URL)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if verr := p.validator.Validate(body); verr != nil {
			p.logger.Warn("payload rejected",
				"url", desc.URL, "via", ch.name, "bytes", len(body), "reason", verr)
			lastErr = fetchFailure(OutcomeTerminal, desc.URL, ch.name, 0, verr)
			continue
		}
		return body, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no transfer channels for source")
	}
	return nil, fmt.Errorf("%w: %w", ErrSourceExhausted, lastErr)
}

func (p *pipeline) channels(desc SourceDescriptor) []transferChannel {
	out := make([]transferChannel, 0, len(p.relays.relays)+1)
	if desc.Tier == TierDirect {
		out = append(out, transferChannel{name: "direct"})
	}
	for i := range p.relays.relays {
		out = append(out, transferChannel{
			name:  p.relays.relays[i].Name,
			relay: &p.relays.relays[i],
		})
	}
	return out
}

// downloadVia runs the retry loop for one channel. Each channel gets
// its own attempt budget.
func (p *pipeline) downloadVia(ctx context.Context, ch transferChannel, target string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if err := p.limiters.wait(ctx, ch.requestURL(target)); err != nil {
			return nil, err
		}

		resp, err := p.fetchOnce(ctx, ch, target)
		cerr := classifyResponse(target, ch.name, resp, err)
		if cerr == nil {
			return resp.Body, nil
		}
		if errors.Is(cerr, ErrRelayUnavailable) {
			p.logger.Debug("relay skipped, breaker open", "relay", ch.name, "url", target)
			return nil, cerr
		}

		delay, retry := p.policy.NextDelay(attempt, cerr.Outcome)
		if !retry {
			if cerr.Outcome.Retryable() {
				p.logger.Warn("retry budget exhausted",
					"url", target, "via", ch.name, "attempts", attempt+1)
			}
			return nil, cerr
		}
		p.logger.Debug("retrying transfer",
			"url", target, "via", ch.name, "attempt", attempt,
			"outcome", cerr.Outcome, "delay", delay)
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (p *pipeline) fetchOnce(ctx context.Context, ch transferChannel, target string) (*FetchResponse, error) {
	if ch.relay == nil {
		return p.fetcher.Fetch(ctx, FetchRequest{URL: target})
	}
	return p.relays.fetch(ctx, p.fetcher, *ch.relay, target)
}
