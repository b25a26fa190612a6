package samplepool

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
)

// Relay is a pass-through service that fetches an origin URL on our
// behalf. Some return the payload verbatim, some wrap it in a JSON
// envelope.
type Relay struct {
	Name string
	// Prefix is the relay endpoint the encoded target URL is appended to
	Prefix string
	// Envelope marks relays that wrap the payload in JSON
	Envelope bool
}

// BuildURL returns the relay request URL for a target.
func (r Relay) BuildURL(target string) string {
	return r.Prefix + url.QueryEscape(target)
}

// DefaultRelays returns the relay chain in preference order. Raw
// relays come first, the JSON-envelope fallback last since it inflates
// binary payloads with base64.
func DefaultRelays() []Relay {
	return []Relay{
		{Name: "allorigins-raw", Prefix: "https://api.allorigins.win/raw?url="},
		{Name: "corsproxy", Prefix: "https://corsproxy.io/?url="},
		{Name: "codetabs", Prefix: "https://api.codetabs.com/v1/proxy?quest="},
		{Name: "allorigins-json", Prefix: "https://api.allorigins.win/get?url=", Envelope: true},
	}
}

// relayEnvelope is the allorigins /get response shape. Only the
// contents field matters to us.
type relayEnvelope struct {
	Contents string `json:"contents"`
}

// decodeEnvelope unwraps a JSON-envelope relay response. Binary
// payloads arrive as base64 data URIs, text payloads as plain strings.
func decodeEnvelope(body []byte) ([]byte, error) {
	var env relayEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parse relay envelope: %w", err)
	}
	if env.Contents == "" {
		return nil, errors.New("relay envelope has no contents")
	}
	if strings.HasPrefix(env.Contents, "data:") {
		_, encoded, found := strings.Cut(env.Contents, ";base64,")
		if !found {
			return nil, errors.New("relay envelope data URI is not base64")
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode relay envelope payload: %w", err)
		}
		return decoded, nil
	}
	return []byte(env.Contents), nil
}

// relayChain runs transfers through relays in fixed preference order,
// with a circuit breaker per relay so a melted-down service is skipped
// instead of hammered.
type relayChain struct {
	relays   []Relay
	breakers map[string]*gobreaker.CircuitBreaker[*FetchResponse]
}

func newRelayChain(relays []Relay, logger *log.Logger) *relayChain {
	rc := &relayChain{
		relays:   relays,
		breakers: make(map[string]*gobreaker.CircuitBreaker[*FetchResponse], len(relays)),
	}
	for _, r := range relays {
		name := r.Name
		rc.breakers[name] = gobreaker.NewCircuitBreaker[*FetchResponse](gobreaker.Settings{
			Name:        "relay-" + name,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(_ string, from, to gobreaker.State) {
				logger.Warn("relay breaker state changed",
					"relay", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return rc
}

// fetch performs one transfer through the named relay. The breaker
// observes transport errors, rate limiting, and server-side failures.
// Envelope payloads come back already unwrapped.
func (rc *relayChain) fetch(ctx context.Context, fetcher Fetcher, relay Relay, target string) (*FetchResponse, error) {
	cb := rc.breakers[relay.Name]
	resp, err := cb.Execute(func() (*FetchResponse, error) {
		r, ferr := fetcher.Fetch(ctx, FetchRequest{URL: relay.BuildURL(target)})
		if cerr := classifyResponse(target, relay.Name, r, ferr); cerr != nil {
			return r, cerr
		}
		if relay.Envelope {
			payload, derr := decodeEnvelope(r.Body)
			if derr != nil {
				return r, fetchFailure(OutcomeTerminal, target, relay.Name, r.StatusCode, derr)
			}
			unwrapped := *r
			unwrapped.Body = payload
			return &unwrapped, nil
		}
		return r, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fetchFailure(OutcomeTerminal, target, relay.Name, 0, ErrRelayUnavailable)
	}
	return resp, err
}
