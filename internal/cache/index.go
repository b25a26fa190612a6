package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/spf13/afero"
)

// Index is the durable source-key to local-file mapping. It owns the
// manifest file exclusively: every mutation persists write-through, so a
// crash costs at most one re-download. Writes are serialized through a
// single mutex; reads run concurrently.
type Index struct {
	fs     afero.Fs
	root   string
	logger *log.Logger

	mu      sync.RWMutex
	entries map[string]Entry
}

// New creates an index rooted at root on the OS filesystem. Creating the
// cache root is the only operation allowed to fail construction.
func New(root string, logger *log.Logger) (*Index, error) {
	return NewWithFS(afero.NewOsFs(), root, logger)
}

// NewWithFS creates an index on the given filesystem. The manifest is
// loaded immediately; a missing or corrupt manifest degrades to an empty
// index and is never fatal.
func NewWithFS(fs afero.Fs, root string, logger *log.Logger) (*Index, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}
	idx := &Index{
		fs:      fs,
		root:    root,
		logger:  logger,
		entries: make(map[string]Entry),
	}
	idx.load()
	return idx, nil
}

// Root returns the cache root directory.
func (idx *Index) Root() string {
	return idx.root
}

// Lookup returns the entry for sourceKey. An entry whose file has
// vanished from disk is stale: it is removed here, on first touch, and
// reported as a miss.
func (idx *Index) Lookup(sourceKey string) (Entry, bool) {
	idx.mu.RLock()
	e, ok := idx.entries[sourceKey]
	idx.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}

	exists, err := afero.Exists(idx.fs, idx.abs(e.LocalPath))
	if err == nil && exists {
		return e, true
	}

	idx.mu.Lock()
	if cur, still := idx.entries[sourceKey]; still && cur.LocalPath == e.LocalPath {
		delete(idx.entries, sourceKey)
		if perr := idx.persistLocked(); perr != nil {
			idx.logger.Error("manifest persist failed", "error", perr)
		}
	}
	idx.mu.Unlock()

	idx.logger.Warn("stale cache entry removed", "source_key", sourceKey, "path", e.LocalPath)
	return Entry{}, false
}

// Put records an entry and persists the manifest. Writing the same
// source key twice overwrites the entry and is safe to retry.
func (idx *Index) Put(e Entry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.entries[e.SourceKey] = e
	if err := idx.persistLocked(); err != nil {
		return fmt.Errorf("%w: %w", ErrManifestPersist, err)
	}
	return nil
}

// Remove drops an entry, deletes its file best-effort, and persists.
func (idx *Index) Remove(sourceKey string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	e, ok := idx.entries[sourceKey]
	if !ok {
		return nil
	}
	if err := idx.fs.Remove(idx.abs(e.LocalPath)); err != nil && !os.IsNotExist(err) {
		idx.logger.Warn("asset file removal failed", "path", e.LocalPath, "error", err)
	}
	delete(idx.entries, sourceKey)
	if err := idx.persistLocked(); err != nil {
		return fmt.Errorf("%w: %w", ErrManifestPersist, err)
	}
	return nil
}

// StoreAsset writes the asset bytes atomically under the category
// directory, records the entry, and persists the manifest. A failed
// asset write returns an error; a failed manifest persist after a clean
// asset write is logged and absorbed, since the in-memory entry still
// serves this session and a restart only re-downloads.
func (idx *Index) StoreAsset(sourceKey, category string, data []byte, ext string) (Entry, error) {
	rel := assetRelPath(category, sourceKey, ext)
	abs := idx.abs(rel)

	if err := idx.fs.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return Entry{}, fmt.Errorf("create category dir: %w", err)
	}
	if err := idx.writeFileAtomic(abs, data); err != nil {
		return Entry{}, fmt.Errorf("write asset: %w", err)
	}

	e := Entry{
		SourceKey: sourceKey,
		LocalPath: rel,
		Category:  category,
		CachedAt:  time.Now(),
		Size:      int64(len(data)),
	}

	idx.mu.Lock()
	idx.entries[sourceKey] = e
	err := idx.persistLocked()
	idx.mu.Unlock()
	if err != nil {
		idx.logger.Error("manifest persist failed after asset write",
			"source_key", sourceKey, "error", err)
	}
	return e, nil
}

// ReadAsset returns the cached bytes for an entry. A vanished file is
// treated like a stale lookup: the entry is dropped and ErrAssetMissing
// returned.
func (idx *Index) ReadAsset(e Entry) ([]byte, error) {
	data, err := afero.ReadFile(idx.fs, idx.abs(e.LocalPath))
	if err != nil {
		if os.IsNotExist(err) {
			idx.mu.Lock()
			delete(idx.entries, e.SourceKey)
			if perr := idx.persistLocked(); perr != nil {
				idx.logger.Error("manifest persist failed", "error", perr)
			}
			idx.mu.Unlock()
			return nil, ErrAssetMissing
		}
		return nil, fmt.Errorf("read asset: %w", err)
	}
	return data, nil
}

// Entries returns a snapshot of all entries, ordered by source key.
func (idx *Index) Entries() []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]Entry, 0, len(idx.entries))
	for _, e := range idx.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceKey < out[j].SourceKey })
	return out
}

// Len returns the number of indexed entries.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.entries)
}

// TotalSize returns the summed size of all indexed assets in bytes.
func (idx *Index) TotalSize() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var total int64
	for _, e := range idx.entries {
		total += e.Size
	}
	return total
}

// Stats summarizes the index for diagnostics.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	s := Stats{
		TotalFiles:  len(idx.entries),
		PerCategory: make(map[string]int),
	}
	for _, e := range idx.entries {
		s.TotalBytes += e.Size
		s.PerCategory[e.Category]++
	}
	return s
}

// Close persists the manifest one final time.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	return idx.persistLocked()
}

func (idx *Index) abs(rel string) string {
	return filepath.Join(idx.root, rel)
}

// load reads the manifest. It never fails hard: missing means cold
// start, corrupt means cold start with a warning. Entries for files
// already gone from disk are kept and removed lazily on first lookup.
func (idx *Index) load() {
	manifestPath := filepath.Join(idx.root, ManifestName)
	data, err := afero.ReadFile(idx.fs, manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			idx.logger.Debug("no cache manifest, starting cold", "path", manifestPath)
			return
		}
		idx.logger.Warn("cache manifest unreadable, starting empty",
			"path", manifestPath, "error", err)
		return
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		idx.logger.Warn("cache manifest corrupt, starting empty",
			"path", manifestPath, "error", err)
		return
	}

	for key, rel := range m.URLToFile {
		e := Entry{
			SourceKey: key,
			LocalPath: rel,
			Category:  categoryOf(rel),
		}
		if fi, serr := idx.fs.Stat(idx.abs(rel)); serr == nil {
			e.Size = fi.Size()
			e.CachedAt = fi.ModTime()
		}
		idx.entries[key] = e
	}
	idx.logger.Debug("cache manifest loaded",
		"entries", len(idx.entries), "version", m.Version)
}

// persistLocked writes the manifest atomically. Callers must hold mu.
func (idx *Index) persistLocked() error {
	m := Manifest{
		Version:     ManifestVersion,
		LastUpdated: time.Now().UTC(),
		URLToFile:   make(map[string]string, len(idx.entries)),
		TotalFiles:  len(idx.entries),
	}
	for key, e := range idx.entries {
		m.URLToFile[key] = e.LocalPath
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return idx.writeFileAtomic(filepath.Join(idx.root, ManifestName), data)
}

// writeFileAtomic writes to a temp file first, then renames into place.
func (idx *Index) writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"

	f, err := idx.fs.Create(tmp)
	if err != nil {
		return err
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil {
		idx.fs.Remove(tmp)
		return werr
	}
	if cerr != nil {
		idx.fs.Remove(tmp)
		return cerr
	}
	return idx.fs.Rename(tmp, path)
}
