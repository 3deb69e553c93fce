package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"ntpidump/internal/logging"
	"ntpidump/internal/pipeline"
)

// Workspace is one run's staging directory. It holds the materialized
// region artifacts and is removed on cleanup unless retention is asked
// for. A file lock scopes the directory to a single process.
type Workspace struct {
	// Root is the run directory.
	Root  string
	runID string
	keep  bool

	lock   *flock.Flock
	logger *slog.Logger
}

// Create builds and locks a fresh run directory under stagingDir.
func Create(stagingDir, runID string, keep bool, logger *slog.Logger) (*Workspace, error) {
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, pipeline.Wrap(pipeline.ErrIO, "workspace", "prepare staging", stagingDir, err)
	}

	root := filepath.Join(stagingDir, "run-"+runID)
	if err := os.Mkdir(root, 0o755); err != nil {
		return nil, pipeline.Wrap(pipeline.ErrIO, "workspace", "create run directory", root, err)
	}

	lock := flock.New(filepath.Join(root, ".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		os.RemoveAll(root)
		return nil, pipeline.Wrap(pipeline.ErrIO, "workspace", "acquire lock", root, err)
	}
	if !ok {
		os.RemoveAll(root)
		return nil, pipeline.Wrap(pipeline.ErrIO, "workspace", "acquire lock",
			fmt.Sprintf("%s is held by another process", root), nil)
	}

	return &Workspace{
		Root:   root,
		runID:  runID,
		keep:   keep,
		lock:   lock,
		logger: logging.WithComponent(logger, "workspace"),
	}, nil
}

// Path joins elements under the run directory.
func (w *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.Root}, elem...)...)
}

// RunID returns the identifier the workspace was created for.
func (w *Workspace) RunID() string {
	return w.runID
}

// Cleanup releases the lock and removes the run directory. With retention
// enabled the directory stays for inspection and only the lock is
// released.
func (w *Workspace) Cleanup() error {
	if w.lock != nil {
		if err := w.lock.Unlock(); err != nil {
			w.logger.Warn("releasing workspace lock failed", logging.Error(err))
		}
		w.lock = nil
	}
	if w.keep {
		w.logger.Info("keeping workspace for inspection", logging.String("path", w.Root))
		return nil
	}
	if err := os.RemoveAll(w.Root); err != nil {
		return pipeline.Wrap(pipeline.ErrIO, "workspace", "remove run directory", w.Root, err)
	}
	return nil
}
