package samplepool

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
)

func TestRelayBuildURL(t *testing.T) {
	r := Relay{Name: "test", Prefix: "https://relay.example/raw?url="}
	got := r.BuildURL("https://origin.example/song.mp3?v=1")
	want := "https://relay.example/raw?url=https%3A%2F%2Forigin.example%2Fsong.mp3%3Fv%3D1"
	if got != want {
		t.Errorf("BuildURL = %s, want %s", got, want)
	}
}

func TestDefaultRelaysOrder(t *testing.T) {
	relays := DefaultRelays()
	if len(relays) < 2 {
		t.Fatalf("got %d relays, want several", len(relays))
	}
	if relays[0].Envelope {
		t.Error("the first relay should deliver raw bytes")
	}
	last := relays[len(relays)-1]
	if !last.Envelope {
		t.Error("the JSON-envelope relay should come last")
	}
	seen := make(map[string]bool)
	for _, r := range relays {
		if seen[r.Name] {
			t.Errorf("duplicate relay name %q", r.Name)
		}
		seen[r.Name] = true
	}
}

func TestDecodeEnvelopeBase64(t *testing.T) {
	payload := audioBytes(256)
	encoded := base64.StdEncoding.EncodeToString(payload)
	body := []byte(fmt.Sprintf(`{"contents":"data:audio/mpeg;base64,%s","status":{"http_code":200}}`, encoded))

	got, err := decodeEnvelope(body)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("unwrapped payload does not match the original")
	}
}

func TestDecodeEnvelopePlainText(t *testing.T) {
	body := []byte(`{"contents":"plain text payload"}`)
	got, err := decodeEnvelope(body)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if string(got) != "plain text payload" {
		t.Errorf("got %q", got)
	}
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	cases := map[string][]byte{
		"not json":       []byte("<html>gateway error</html>"),
		"empty contents": []byte(`{"contents":""}`),
		"bad data uri":   []byte(`{"contents":"data:audio/mpeg,raw-not-base64"}`),
		"bad base64":     []byte(`{"contents":"data:audio/mpeg;base64,!!!not-base64!!!"}`),
	}
	for name, body := range cases {
		if _, err := decodeEnvelope(body); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestRelayChainUnwrapsEnvelope(t *testing.T) {
	payload := audioBytes(128)
	encoded := base64.StdEncoding.EncodeToString(payload)
	fetcher := newFakeFetcher(func(ctx context.Context, req FetchRequest) (*FetchResponse, error) {
		body := fmt.Sprintf(`{"contents":"data:audio/mpeg;base64,%s"}`, encoded)
		return &FetchResponse{StatusCode: 200, Body: []byte(body)}, nil
	})

	relay := Relay{Name: "wrapped", Prefix: "https://relay.example/get?url=", Envelope: true}
	chain := newRelayChain([]Relay{relay}, testLogger())

	resp, err := chain.fetch(context.Background(), fetcher, relay, "https://origin.example/a.mp3")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if !bytes.Equal(resp.Body, payload) {
		t.Error("envelope was not unwrapped")
	}
}

func TestRelayChainBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	fetcher := newFakeFetcher(func(ctx context.Context, req FetchRequest) (*FetchResponse, error) {
		return &FetchResponse{StatusCode: 502, Body: []byte("bad gateway")}, nil
	})

	relay := Relay{Name: "flaky", Prefix: "https://relay.example/raw?url="}
	chain := newRelayChain([]Relay{relay}, testLogger())
	target := "https://origin.example/a.mp3"

	for i := 0; i < 3; i++ {
		if _, err := chain.fetch(context.Background(), fetcher, relay, target); err == nil {
			t.Fatalf("call %d: expected a failure", i)
		}
	}
	if got := fetcher.callCount(); got != 3 {
		t.Fatalf("breaker tripped early or late: %d transfers", got)
	}

	_, err := chain.fetch(context.Background(), fetcher, relay, target)
	if !errors.Is(err, ErrRelayUnavailable) {
		t.Fatalf("err = %v, want ErrRelayUnavailable", err)
	}
	if got := fetcher.callCount(); got != 3 {
		t.Errorf("open breaker still let a transfer through: %d", got)
	}
}

func TestRelayChainClassifiesStatus(t *testing.T) {
	fetcher := newFakeFetcher(func(ctx context.Context, req FetchRequest) (*FetchResponse, error) {
		return &FetchResponse{StatusCode: 429, Body: []byte("slow down")}, nil
	})

	relay := Relay{Name: "limited", Prefix: "https://relay.example/raw?url="}
	chain := newRelayChain([]Relay{relay}, testLogger())

	_, err := chain.fetch(context.Background(), fetcher, relay, "https://origin.example/a.mp3")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want a FetchError", err)
	}
	if fe.Outcome != OutcomeRateLimited {
		t.Errorf("outcome = %v, want rate-limited", fe.Outcome)
	}
	if fe.Status != 429 {
		t.Errorf("status = %d, want 429", fe.Status)
	}
}
