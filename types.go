package samplepool

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Audio holds decoded PCM ready for a playback layer.
type Audio struct {
	// PCM is interleaved signed 16-bit little-endian samples
	PCM []byte
	// SampleRate in Hz
	SampleRate int
	// Channels is the interleaved channel count
	Channels int
	// Duration of the decoded audio
	Duration time.Duration
}

// Sample is a decoded audio asset served from a category pool.
type Sample struct {
	// SourceKey is the stable identity derived from the originating URL
	SourceKey string
	// Category the sample belongs to
	Category string
	// Path is the absolute location of the cached bytes, empty when the
	// sample could not be persisted and lives in memory only
	Path string
	// Audio is the decoded payload
	Audio *Audio
	// Size of the encoded bytes
	Size int64
	// CachedAt is when the bytes were stored
	CachedAt time.Time
}

// CategoryReport summarizes one category's portion of a refresh.
type CategoryReport struct {
	Category string
	// Fetched counts assets newly downloaded over the network
	Fetched int
	// Cached counts assets served from the existing cache
	Cached int
	// Failed counts sources that produced no usable asset
	Failed int
	// Skipped is true when another refresh already owned the category
	Skipped bool
	Errors  []string
}

// RefreshReport summarizes a whole refresh pass.
type RefreshReport struct {
	ID         string
	StartedAt  time.Time
	Elapsed    time.Duration
	Categories map[string]CategoryReport
}

// TotalFetched returns the number of assets downloaded across all categories.
func (r RefreshReport) TotalFetched() int {
	n := 0
	for _, cr := range r.Categories {
		n += cr.Fetched
	}
	return n
}

// TotalFailed returns the number of failed sources across all categories.
func (r RefreshReport) TotalFailed() int {
	n := 0
	for _, cr := range r.Categories {
		n += cr.Failed
	}
	return n
}

// Stats is a point-in-time snapshot of the pool subsystem.
type Stats struct {
	// TotalCached is the number of assets in the persistent cache
	TotalCached int
	// TotalBytes is the encoded size of all cached assets
	TotalBytes int64
	// PerCategory maps category name to cached asset count
	PerCategory map[string]int
	// PoolSizes maps category name to decoded samples held in memory
	PoolSizes map[string]int
	// RefreshInProgress is true while any refresh pass is running
	RefreshInProgress bool
}

// String renders the snapshot for logs and debug output.
func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d cached (%s)", s.TotalCached, humanize.Bytes(uint64(s.TotalBytes)))
	if len(s.PerCategory) > 0 {
		cats := make([]string, 0, len(s.PerCategory))
		for cat := range s.PerCategory {
			cats = append(cats, cat)
		}
		sort.Strings(cats)
		parts := make([]string, 0, len(cats))
		for _, cat := range cats {
			parts = append(parts, fmt.Sprintf("%s=%d", cat, s.PerCategory[cat]))
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(parts, " "))
	}
	if s.RefreshInProgress {
		b.WriteString(" refreshing")
	}
	return b.String()
}
