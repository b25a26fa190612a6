package samplepool

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/driftwhale/samplepool/internal/cache"
)

// watchDebounce batches a burst of file events into one pool reload.
const watchDebounce = 500 * time.Millisecond

// cacheWatcher reloads pools when something outside this process edits
// the cache directory, for example a user deleting stale assets by
// hand.
type cacheWatcher struct {
	fsw      *fsnotify.Watcher
	root     string
	onChange func()
	logger   *log.Logger
}

func newCacheWatcher(root string, onChange func(), logger *log.Logger) (*cacheWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, err
	}
	// Watch existing category directories too, fsnotify does not
	// recurse on its own.
	if entries, err := os.ReadDir(root); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				if err := fsw.Add(filepath.Join(root, e.Name())); err != nil {
					logger.Debug("cannot watch category directory", "dir", e.Name(), "error", err)
				}
			}
		}
	}
	return &cacheWatcher{fsw: fsw, root: root, onChange: onChange, logger: logger}, nil
}

// ignored filters out our own writes: the manifest, its temp files,
// and asset temp files would otherwise cause reload storms.
func (w *cacheWatcher) ignored(name string) bool {
	base := filepath.Base(name)
	return base == cache.ManifestName || strings.HasSuffix(base, ".tmp")
}

// run processes events until the context ends.
func (w *cacheWatcher) run(ctx context.Context) {
	defer w.fsw.Close()

	debounce := time.NewTimer(watchDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()
	pending := false

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.ignored(ev.Name) {
				continue
			}
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.fsw.Add(ev.Name); err != nil {
						w.logger.Debug("cannot watch new directory", "dir", ev.Name, "error", err)
					}
				}
			}
			pending = true
			debounce.Reset(watchDebounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("cache watcher error", "error", err)
		case <-debounce.C:
			if pending {
				pending = false
				w.onChange()
			}
		case <-ctx.Done():
			return
		}
	}
}
