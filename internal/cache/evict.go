package cache

import (
	"sort"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// Evictor decides which cached assets to drop after a refresh. The
// index stays append-only unless a strategy is wired in; strategies
// remove entries through the index so manifest and disk never diverge.
type Evictor interface {
	Evict(idx *Index) (removed int, freed int64)
}

// SizeEvictor enforces a byte budget by dropping the oldest entries
// first until the cache fits. A zero or negative budget disables it.
type SizeEvictor struct {
	MaxBytes int64
	Logger   *log.Logger
}

var _ Evictor = (*SizeEvictor)(nil)

// Evict removes oldest-first until the total size is back under budget.
func (ev *SizeEvictor) Evict(idx *Index) (int, int64) {
	if ev.MaxBytes <= 0 {
		return 0, 0
	}
	total := idx.TotalSize()
	if total <= ev.MaxBytes {
		return 0, 0
	}

	logger := ev.Logger
	if logger == nil {
		logger = log.Default()
	}

	entries := idx.Entries()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CachedAt.Before(entries[j].CachedAt)
	})

	var removed int
	var freed int64
	for _, e := range entries {
		if total-freed <= ev.MaxBytes {
			break
		}
		if err := idx.Remove(e.SourceKey); err != nil {
			logger.Warn("eviction removal failed", "source_key", e.SourceKey, "error", err)
			continue
		}
		removed++
		freed += e.Size
	}

	logger.Info("cache size budget enforced",
		"removed", removed,
		"freed", humanize.Bytes(uint64(freed)),
		"budget", humanize.Bytes(uint64(ev.MaxBytes)))
	return removed, freed
}
