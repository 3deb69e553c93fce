package workspace

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ntpidump/internal/logging"
)

// CleanStale removes run directories under stagingDir older than maxAge.
// Removal failures are logged, not fatal: a later run retries.
func CleanStale(stagingDir string, maxAge time.Duration, logger *slog.Logger) []string {
	log := logging.WithComponent(logger, "workspace")

	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return nil
	}
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("listing staging directory failed", logging.Error(err))
		}
		return nil
	}

	cutoff := time.Now().Add(-maxAge)
	var removed []string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "run-") {
			continue
		}
		path := filepath.Join(stagingDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			log.Warn("failed to remove stale run directory",
				logging.String("path", path), logging.Error(err))
			continue
		}
		removed = append(removed, path)
		log.Info("removed stale run directory",
			logging.String("path", path),
			logging.Duration("age", time.Since(info.ModTime())))
	}
	return removed
}
