package samplepool

import (
	"context"
	"net/http"
)

// FetchRequest describes one HTTP transfer to perform.
type FetchRequest struct {
	// Method defaults to GET when empty
	Method string
	URL    string
	Header http.Header
}

// FetchResponse carries the result of a completed transfer. Any
// transport-level compression has already been undone.
type FetchResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetcher performs HTTP transfers. Implementations must be safe for
// concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (*FetchResponse, error)
}

// Decoder turns encoded audio bytes into PCM. Implementations must be
// safe for concurrent use.
type Decoder interface {
	// Name identifies the decoder in logs and reports
	Name() string
	// Decode converts encoded bytes into playable audio
	Decode(ctx context.Context, data []byte) (*Audio, error)
}
