package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"ntpidump/internal/fileindex"
	"ntpidump/internal/logging"
	"ntpidump/internal/packfile"
	"ntpidump/internal/pipeline"
)

// extractLarge splits one file's block chain into segments and decodes
// them across the worker pool. Each segment writes into a disjoint range
// of the preallocated output, so the reassembled bytes are identical to a
// single-worker pass.
func (e *Extractor) extractLarge(ctx context.Context, desc fileindex.Descriptor, destDir string) FileResult {
	start := time.Now()
	logger := logging.WithContext(logging.WithFile(ctx, desc.Path), e.logger)
	res := FileResult{Path: desc.Path}

	refs, err := packfile.ScanBlocks(e.source, desc.Offset, desc.End())
	if err != nil {
		res.Err = err
		res.Duration = time.Since(start)
		logResult(logger, res)
		return res
	}
	if total := packfile.TotalDecompressed(refs); total != desc.OriginalLength {
		res.Err = pipeline.Wrap(pipeline.ErrIntegrity, "extract", "size check",
			fmt.Sprintf("%s: blocks declare %d bytes, table declares %d", desc.Path, total, desc.OriginalLength), nil)
		res.Duration = time.Since(start)
		logResult(logger, res)
		return res
	}

	// A single block cannot be split further, and a chain carrying a
	// codec that cannot decode from a block boundary must run
	// sequentially; stream those instead.
	if len(refs) == 1 || e.opts.Workers == 1 || !packfile.SeekableChain(refs) {
		return e.extractStreaming(ctx, desc, destDir)
	}

	segments := packfile.PlanSegments(refs, desc.End(), e.opts.Workers)
	res.Segments = len(segments)
	logger.Debug("segmenting large file",
		logging.Int("blocks", len(refs)),
		logging.Int("segments", len(segments)))

	res.Err = e.withPartial(desc, destDir, func(f *os.File) error {
		if err := f.Truncate(desc.OriginalLength); err != nil {
			return pipeline.Wrap(pipeline.ErrIO, "extract", "preallocate output", desc.Path, err)
		}
		if err := e.decodeSegments(ctx, f, desc, segments); err != nil {
			return err
		}
		return e.verifyAssembled(f, desc)
	})

	res.Bytes = desc.OriginalLength
	res.Duration = time.Since(start)
	logResult(logger, res)
	return res
}

// decodeSegments runs the segment plan concurrently. The first failure
// cancels the rest; the whole file fails as one unit.
func (e *Extractor) decodeSegments(ctx context.Context, f *os.File, desc fileindex.Descriptor, segments []packfile.Segment) error {
	segCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error

	for _, seg := range segments {
		wg.Add(1)
		go func(seg packfile.Segment) {
			defer wg.Done()
			if err := e.decodeSegment(segCtx, f, desc, seg); err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
			}
		}(seg)
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// decodeSegment decodes one segment's blocks in order, writing each at
// its output offset.
func (e *Extractor) decodeSegment(ctx context.Context, f *os.File, desc fileindex.Descriptor, seg packfile.Segment) error {
	offset := seg.Start
	index := desc.KeyIndex + seg.StartBlock
	outOffset := seg.OutputOffset

	for offset < seg.End {
		if err := ctx.Err(); err != nil {
			return err
		}
		block, next, err := packfile.DecodeBlock(e.source, offset, seg.End, e.keys.KeyAt(index))
		if err != nil {
			return err
		}
		if _, err := f.WriteAt(block, outOffset); err != nil {
			return pipeline.Wrap(pipeline.ErrIO, "extract", "write segment", desc.Path, err)
		}
		outOffset += int64(len(block))
		e.reportProgress(int64(len(block)))
		offset = next
		index++
	}
	if outOffset != seg.OutputOffset+seg.OutputSize {
		return pipeline.Wrap(pipeline.ErrIntegrity, "extract", "segment size",
			fmt.Sprintf("%s: segment wrote %d bytes, plan declares %d",
				desc.Path, outOffset-seg.OutputOffset, seg.OutputSize), nil)
	}
	return nil
}

// verifyAssembled re-reads the assembled file to check its digest. The
// segments hashed out of order, so the digest has to come from a second
// sequential pass.
func (e *Extractor) verifyAssembled(f *os.File, desc fileindex.Descriptor) error {
	hasher := newDigest(desc, e.opts)
	if hasher.hash == nil {
		return nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return pipeline.Wrap(pipeline.ErrIO, "extract", "verify output", desc.Path, err)
	}
	if _, err := io.Copy(hasher, f); err != nil {
		return pipeline.Wrap(pipeline.ErrIO, "extract", "verify output", desc.Path, err)
	}
	return hasher.Verify(desc)
}
