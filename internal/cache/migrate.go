package cache

import (
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
)

// MigrationReport records the outcome of one legacy-cache relocation.
type MigrationReport struct {
	NoOp        bool
	FilesCopied int
	DirsCreated int
	Failures    int
	OldRemoved  bool
	Elapsed     time.Duration
}

// Migrate relocates a prior cache layout at oldRoot into newRoot,
// preserving relative paths. It runs before the index is loaded. A
// missing oldRoot is the common case after the first run and returns a
// no-op report. The old root is deleted only after every copy
// succeeded; on partial failure it is left in place for manual
// recovery, the failure is logged, and startup continues with whatever
// was migrated. Running twice is safe: the second run finds no oldRoot.
func Migrate(fs afero.Fs, oldRoot, newRoot string, logger *log.Logger) MigrationReport {
	if logger == nil {
		logger = log.Default()
	}
	start := time.Now()

	if oldRoot == "" || oldRoot == newRoot {
		return MigrationReport{NoOp: true}
	}
	exists, err := afero.DirExists(fs, oldRoot)
	if err != nil || !exists {
		return MigrationReport{NoOp: true}
	}

	var report MigrationReport
	if err := fs.MkdirAll(newRoot, 0o755); err != nil {
		logger.Error("cache migration target unavailable",
			"path", newRoot, "error", err)
		report.Failures++
		report.Elapsed = time.Since(start)
		return report
	}

	walkErr := afero.Walk(fs, oldRoot, func(p string, info os.FileInfo, werr error) error {
		if werr != nil {
			report.Failures++
			logger.Error("legacy cache walk failed", "path", p, "error", werr)
			return nil
		}
		rel, rerr := filepath.Rel(oldRoot, p)
		if rerr != nil || rel == "." {
			return nil
		}
		dest := filepath.Join(newRoot, rel)

		if info.IsDir() {
			if merr := fs.MkdirAll(dest, 0o755); merr != nil {
				report.Failures++
				logger.Error("legacy cache dir create failed", "path", dest, "error", merr)
				return filepath.SkipDir
			}
			report.DirsCreated++
			return nil
		}

		data, derr := afero.ReadFile(fs, p)
		if derr != nil {
			report.Failures++
			logger.Error("legacy cache read failed", "path", p, "error", derr)
			return nil
		}
		if werr := afero.WriteFile(fs, dest, data, 0o644); werr != nil {
			report.Failures++
			logger.Error("legacy cache copy failed", "path", dest, "error", werr)
			return nil
		}
		report.FilesCopied++
		return nil
	})
	if walkErr != nil {
		report.Failures++
		logger.Error("legacy cache walk aborted", "error", walkErr)
	}

	if report.Failures == 0 {
		if rmErr := fs.RemoveAll(oldRoot); rmErr != nil {
			logger.Error("legacy cache cleanup failed", "path", oldRoot, "error", rmErr)
		} else {
			report.OldRemoved = true
		}
		logger.Info("legacy cache migrated",
			"files", report.FilesCopied, "from", oldRoot, "to", newRoot)
	} else {
		logger.Error("legacy cache left in place after partial migration",
			"failures", report.Failures, "copied", report.FilesCopied, "path", oldRoot)
	}

	report.Elapsed = time.Since(start)
	return report
}
