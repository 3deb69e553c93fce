package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"ntpidump/internal/fileindex"
	"ntpidump/internal/logging"
	"ntpidump/internal/packfile"
	"ntpidump/internal/pipeline"
)

// defaultLargeFileThreshold splits files at 500 MiB of decompressed size.
const defaultLargeFileThreshold = 500 << 20

// Options tunes one extraction run.
type Options struct {
	// Workers bounds concurrent decompression. Values below 1 mean 1.
	Workers int
	// LargeFileThreshold is the decompressed size at or above which a file
	// is split into parallel segments. Zero selects the default.
	LargeFileThreshold int64
	// VerifyChecksums enables digest verification for entries that carry
	// one in the table.
	VerifyChecksums bool
	// Progress, when set, receives decompressed byte deltas as blocks
	// complete. It must be safe for concurrent use.
	Progress func(delta int64)
}

func (o Options) normalized() Options {
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.LargeFileThreshold <= 0 {
		o.LargeFileThreshold = defaultLargeFileThreshold
	}
	return o
}

// Extractor decodes packed files out of one packed region.
type Extractor struct {
	source io.ReaderAt
	keys   *packfile.KeyMap
	opts   Options
	logger *slog.Logger
}

// New builds an extractor over the packed region. The same extractor can
// run once; it holds no per-run state beyond its inputs.
func New(source io.ReaderAt, keys *packfile.KeyMap, logger *slog.Logger, opts Options) *Extractor {
	return &Extractor{
		source: source,
		keys:   keys,
		opts:   opts.normalized(),
		logger: logging.WithComponent(logger, "extract"),
	}
}

// Run extracts every table entry under destDir. Failures stay scoped to
// their file; the returned result carries one entry per attempted file,
// in table order. Run itself errors only on cancellation or when the
// destination cannot be prepared.
func (e *Extractor) Run(ctx context.Context, descriptors []fileindex.Descriptor, destDir string) (*Result, error) {
	start := time.Now()
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, pipeline.Wrap(pipeline.ErrIO, "extract", "prepare destination", destDir, err)
	}

	order := make(map[string]int, len(descriptors))
	var small, large []fileindex.Descriptor
	for i, desc := range descriptors {
		order[desc.Path] = i
		if desc.OriginalLength >= e.opts.LargeFileThreshold {
			large = append(large, desc)
		} else {
			small = append(small, desc)
		}
	}
	logger := logging.WithContext(ctx, e.logger)
	logger.Info("starting extraction",
		logging.Int("files", len(descriptors)),
		logging.Int("large_files", len(large)),
		logging.Int("workers", e.opts.Workers))

	result := &Result{}
	result.Files = append(result.Files, e.runSmall(ctx, small, destDir)...)

	// Large files run one at a time so their segments get the whole pool.
	for _, desc := range large {
		if ctx.Err() != nil {
			break
		}
		result.Files = append(result.Files, e.extractLarge(ctx, desc, destDir))
	}

	sort.Slice(result.Files, func(i, j int) bool {
		return order[result.Files[i].Path] < order[result.Files[j].Path]
	})
	result.Duration = time.Since(start)

	logger.Info("extraction finished",
		logging.Int("extracted", result.Extracted()),
		logging.Int("failed", len(result.Failures())),
		logging.Duration("elapsed", result.Duration))
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// runSmall fans whole files across the worker pool.
func (e *Extractor) runSmall(ctx context.Context, descriptors []fileindex.Descriptor, destDir string) []FileResult {
	if len(descriptors) == 0 {
		return nil
	}

	jobs := make(chan fileindex.Descriptor)
	out := make(chan FileResult, len(descriptors))

	var wg sync.WaitGroup
	for i := 0; i < e.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for desc := range jobs {
				out <- e.extractStreaming(ctx, desc, destDir)
			}
		}()
	}

feed:
	for _, desc := range descriptors {
		select {
		case jobs <- desc:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(out)

	results := make([]FileResult, 0, len(descriptors))
	for r := range out {
		results = append(results, r)
	}
	return results
}

// extractStreaming decodes one file block by block through a single
// writer, hashing as it goes. Memory stays bounded by one block.
func (e *Extractor) extractStreaming(ctx context.Context, desc fileindex.Descriptor, destDir string) FileResult {
	start := time.Now()
	logger := logging.WithContext(logging.WithFile(ctx, desc.Path), e.logger)
	res := FileResult{Path: desc.Path, Segments: 1}

	res.Err = e.withPartial(desc, destDir, func(f *os.File) error {
		hasher := newDigest(desc, e.opts)
		offset := desc.Offset
		index := desc.KeyIndex
		var written int64
		for offset < desc.End() {
			if err := ctx.Err(); err != nil {
				return err
			}
			block, next, err := packfile.DecodeBlock(e.source, offset, desc.End(), e.keys.KeyAt(index))
			if err != nil {
				return err
			}
			if _, err := f.Write(block); err != nil {
				return pipeline.Wrap(pipeline.ErrIO, "extract", "write output", desc.Path, err)
			}
			hasher.Write(block)
			written += int64(len(block))
			e.reportProgress(int64(len(block)))
			offset = next
			index++
		}
		if written != desc.OriginalLength {
			return pipeline.Wrap(pipeline.ErrIntegrity, "extract", "size check",
				fmt.Sprintf("%s: wrote %d bytes, table declares %d", desc.Path, written, desc.OriginalLength), nil)
		}
		return hasher.Verify(desc)
	})

	res.Bytes = desc.OriginalLength
	res.Duration = time.Since(start)
	logResult(logger, res)
	return res
}

// withPartial runs fill against a .partial file and promotes it to the
// final path only on success. Every failure path, cancellation included,
// removes the partial so an interrupted run never looks complete.
func (e *Extractor) withPartial(desc fileindex.Descriptor, destDir string, fill func(*os.File) error) error {
	finalPath := filepath.Join(destDir, filepath.FromSlash(desc.Path))
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return pipeline.Wrap(pipeline.ErrIO, "extract", "prepare directory", desc.Path, err)
	}

	partial := finalPath + ".partial"
	f, err := os.Create(partial)
	if err != nil {
		return pipeline.Wrap(pipeline.ErrIO, "extract", "create output", desc.Path, err)
	}

	if err := fill(f); err != nil {
		f.Close()
		if removeErr := os.Remove(partial); removeErr != nil {
			e.logger.Warn("leaving partial file behind",
				logging.String(logging.FieldFile, desc.Path), logging.Error(removeErr))
		}
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(partial)
		return pipeline.Wrap(pipeline.ErrIO, "extract", "close output", desc.Path, err)
	}
	if err := os.Rename(partial, finalPath); err != nil {
		os.Remove(partial)
		return pipeline.Wrap(pipeline.ErrIO, "extract", "finalize output", desc.Path, err)
	}
	return nil
}

func (e *Extractor) reportProgress(delta int64) {
	if e.opts.Progress != nil {
		e.opts.Progress(delta)
	}
}

// logResult reports one file's outcome through a logger already carrying
// the run, stage, and file fields.
func logResult(logger *slog.Logger, res FileResult) {
	if res.Failed() {
		logger.Error("file failed",
			logging.String("kind", string(res.Kind())),
			logging.Error(res.Err))
		return
	}
	logger.Info("file extracted",
		logging.Int64("bytes", res.Bytes),
		logging.Int("segments", res.Segments),
		logging.Duration("elapsed", res.Duration))
}
