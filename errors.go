package samplepool

import (
	"errors"
	"fmt"
)

// Common sample pool errors
var (
	// ErrDecoderRequired indicates no audio decoder was supplied
	ErrDecoderRequired = errors.New("audio decoder is required")

	// ErrManagerClosed indicates an operation on a closed manager
	ErrManagerClosed = errors.New("sample manager is closed")

	// ErrUnknownCategory indicates a category absent from the catalog
	ErrUnknownCategory = errors.New("unknown sample category")

	// ErrSourceExhausted indicates every transfer channel for a source failed
	ErrSourceExhausted = errors.New("all transfer channels exhausted for source")

	// ErrPayloadTooSmall indicates a downloaded payload below the size floor
	ErrPayloadTooSmall = errors.New("payload smaller than minimum plausible size")

	// ErrPayloadMarkup indicates a downloaded payload that is an HTML or
	// XML document rather than audio bytes
	ErrPayloadMarkup = errors.New("payload looks like markup, not audio")

	// ErrRelayUnavailable indicates a relay skipped due to an open breaker
	ErrRelayUnavailable = errors.New("relay circuit open")
)

// FetchError describes a failed transfer attempt with enough
// classification for the retry policy to act on it.
type FetchError struct {
	Outcome Outcome
	URL     string
	Via     string
	Status  int
	Err     error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s", e.URL)
	if e.Via != "" {
		msg += fmt.Sprintf(" via %s", e.Via)
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	msg += fmt.Sprintf(" (%s)", e.Outcome)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the retry policy may schedule another
// attempt for this failure.
func (e *FetchError) Retryable() bool {
	return e.Outcome.Retryable()
}

// fetchFailure wraps a transfer failure with its classification.
func fetchFailure(outcome Outcome, url, via string, status int, err error) *FetchError {
	return &FetchError{Outcome: outcome, URL: url, Via: via, Status: status, Err: err}
}
