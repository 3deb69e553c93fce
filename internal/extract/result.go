package extract

import (
	"errors"
	"fmt"
	"time"

	"ntpidump/internal/pipeline"
)

// FileResult records the outcome of one packed file.
type FileResult struct {
	// Path is the table-relative output path.
	Path string
	// Bytes is the decompressed byte count written.
	Bytes int64
	// Segments is how many segments the file was split into; 1 means the
	// streaming path.
	Segments int
	// Duration covers decode, write, and verification.
	Duration time.Duration
	// Err is nil on success.
	Err error
}

// Failed reports whether the file was not fully extracted.
func (r FileResult) Failed() bool {
	return r.Err != nil
}

// Kind classifies the failure for reports and the run journal.
func (r FileResult) Kind() pipeline.Kind {
	return pipeline.KindOf(r.Err)
}

// Result aggregates one extraction run. Files appear in table order
// regardless of completion order.
type Result struct {
	Files    []FileResult
	Duration time.Duration
}

// Extracted counts files that completed.
func (r *Result) Extracted() int {
	count := 0
	for _, f := range r.Files {
		if !f.Failed() {
			count++
		}
	}
	return count
}

// Failures returns the results of files that did not complete.
func (r *Result) Failures() []FileResult {
	var failed []FileResult
	for _, f := range r.Files {
		if f.Failed() {
			failed = append(failed, f)
		}
	}
	return failed
}

// Bytes sums the decompressed output of completed files.
func (r *Result) Bytes() int64 {
	var total int64
	for _, f := range r.Files {
		if !f.Failed() {
			total += f.Bytes
		}
	}
	return total
}

// Err folds per-file failures into one run-level error, nil when every
// file extracted.
func (r *Result) Err() error {
	failures := r.Failures()
	if len(failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(failures)+1)
	errs = append(errs, fmt.Errorf("%d of %d files failed", len(failures), len(r.Files)))
	for _, f := range failures {
		errs = append(errs, fmt.Errorf("%s: %w", f.Path, f.Err))
	}
	return errors.Join(errs...)
}
