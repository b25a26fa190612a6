package samplepool

import (
	"bytes"
	"fmt"
)

// Markers that identify an HTML or XML document. Relay services and
// misconfigured origins like to return error pages with a 200 status,
// so status codes alone cannot be trusted.
var markupMarkers = [][]byte{
	[]byte("<!doctype"),
	[]byte("<html"),
	[]byte("<head"),
	[]byte("<body"),
	[]byte("<?xml"),
	[]byte("<error"),
}

// Validator screens downloaded payloads before they reach a decoder.
// It rejects bodies too small to be real audio and bodies that are
// markup documents in disguise.
type Validator struct {
	// MinBytes is the smallest plausible audio payload
	MinBytes int
	// SniffWindow is how many leading bytes are scanned for markup
	SniffWindow int
}

// DefaultValidator returns the screening thresholds used by the
// retrieval pipeline.
func DefaultValidator() Validator {
	return Validator{
		MinBytes:    1024,
		SniffWindow: 512,
	}
}

// Validate returns nil for a plausible audio payload. Markup detection
// runs first so an HTML error page is reported as markup even when it
// is also undersized.
func (v Validator) Validate(data []byte) error {
	window := data
	if v.SniffWindow > 0 && len(window) > v.SniffWindow {
		window = window[:v.SniffWindow]
	}
	lowered := bytes.ToLower(window)
	for _, marker := range markupMarkers {
		if bytes.Contains(lowered, marker) {
			return fmt.Errorf("%w: %q found in leading %d bytes", ErrPayloadMarkup, marker, len(window))
		}
	}

	if len(data) < v.MinBytes {
		return fmt.Errorf("%w: got %d bytes, need at least %d", ErrPayloadTooSmall, len(data), v.MinBytes)
	}
	return nil
}
