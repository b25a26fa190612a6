package cache

import (
	"errors"
	"time"
)

// Common errors for cache operations
var (
	// ErrAssetMissing is returned when an indexed asset file is gone from disk
	ErrAssetMissing = errors.New("cached asset file missing")

	// ErrManifestPersist is returned when the manifest cannot be written
	ErrManifestPersist = errors.New("manifest persist failed")
)

const (
	// ManifestName is the manifest file name inside the cache root.
	ManifestName = "cache-index.json"

	// ManifestVersion is the current manifest schema version.
	ManifestVersion = 1
)

// Entry describes one cached asset. LocalPath is relative to the cache
// root so the manifest stays valid when the root moves.
type Entry struct {
	SourceKey string
	LocalPath string
	Category  string
	CachedAt  time.Time
	Size      int64
}

// Manifest is the durable form of the index.
type Manifest struct {
	Version     int               `json:"version"`
	LastUpdated time.Time         `json:"lastUpdated"`
	URLToFile   map[string]string `json:"urlToFile"`
	TotalFiles  int               `json:"totalFiles"`
}

// Stats summarizes the current index contents.
type Stats struct {
	TotalFiles  int
	TotalBytes  int64
	PerCategory map[string]int
}
