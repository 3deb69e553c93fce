package extract_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"ntpidump/internal/extract"
	"ntpidump/internal/fileindex"
	"ntpidump/internal/logging"
	"ntpidump/internal/packfile"
	"ntpidump/internal/pipeline"
	"ntpidump/internal/testsupport"
)

func pattern(size int, seed byte) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)*7 + seed
	}
	return data
}

func newExtractor(t *testing.T, packed []byte, keyPool []byte, opts extract.Options) *extract.Extractor {
	t.Helper()
	keys, err := packfile.NewKeyMap(keyPool)
	if err != nil {
		t.Fatal(err)
	}
	return extract.New(bytes.NewReader(packed), keys, logging.NewNop(), opts)
}

func assertNoPartials(t *testing.T, dir string) {
	t.Helper()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".partial") {
			t.Errorf("partial file left behind: %s", path)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRunExtractsAll(t *testing.T) {
	keyPool := testsupport.KeyPool(4)
	files := []testsupport.PackedFile{
		{Name: "boot/image.bin", Content: pattern(5000, 1), BlockSize: 1024, KeyIndex: 0},
		{Name: "modem.mbn", Content: pattern(300, 2), KeyIndex: 2},
		{Name: "empty.cfg", Content: nil, KeyIndex: 1},
	}
	packed, descriptors := testsupport.BuildPacked(t, keyPool, files...)

	dest := t.TempDir()
	ex := newExtractor(t, packed, keyPool, extract.Options{Workers: 4, VerifyChecksums: true})
	result, err := ex.Run(context.Background(), descriptors, dest)
	if err != nil {
		t.Fatal(err)
	}
	if result.Extracted() != len(files) {
		t.Fatalf("extracted %d files, want %d", result.Extracted(), len(files))
	}
	if result.Err() != nil {
		t.Fatalf("aggregate error: %v", result.Err())
	}

	// Results follow table order regardless of completion order.
	for i, fr := range result.Files {
		if fr.Path != files[i].Name {
			t.Fatalf("result %d is %q, want %q", i, fr.Path, files[i].Name)
		}
	}

	for _, file := range files {
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(file.Name)))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, file.Content) {
			t.Fatalf("%s: content mismatch", file.Name)
		}
	}
	assertNoPartials(t, dest)
}

func TestWorkerCountInvariance(t *testing.T) {
	keyPool := testsupport.KeyPool(3)
	files := []testsupport.PackedFile{
		{Name: "a.bin", Content: pattern(9000, 3), BlockSize: 700, KeyIndex: 0},
		{Name: "b.bin", Content: pattern(4000, 4), BlockSize: 900, KeyIndex: 1},
		{Name: "c.bin", Content: pattern(123, 5), KeyIndex: 2},
	}
	packed, descriptors := testsupport.BuildPacked(t, keyPool, files...)

	run := func(workers int) map[string][]byte {
		dest := t.TempDir()
		ex := newExtractor(t, packed, keyPool, extract.Options{
			Workers: workers, LargeFileThreshold: 2000, VerifyChecksums: true,
		})
		result, err := ex.Run(context.Background(), descriptors, dest)
		if err != nil || result.Err() != nil {
			t.Fatalf("workers=%d: %v / %v", workers, err, result.Err())
		}
		out := make(map[string][]byte)
		for _, file := range files {
			data, err := os.ReadFile(filepath.Join(dest, file.Name))
			if err != nil {
				t.Fatal(err)
			}
			out[file.Name] = data
		}
		return out
	}

	serial := run(1)
	parallel := run(8)
	for name, want := range serial {
		if !bytes.Equal(parallel[name], want) {
			t.Fatalf("%s: output differs between worker counts", name)
		}
	}
}

func TestLargeFileSegmented(t *testing.T) {
	keyPool := testsupport.KeyPool(2)
	content := pattern(20000, 6)
	packed, descriptors := testsupport.BuildPacked(t, keyPool,
		testsupport.PackedFile{Name: "huge.img", Content: content, BlockSize: 1500, KeyIndex: 1})

	dest := t.TempDir()
	ex := newExtractor(t, packed, keyPool, extract.Options{
		Workers: 4, LargeFileThreshold: 1024, VerifyChecksums: true,
	})
	result, err := ex.Run(context.Background(), descriptors, dest)
	if err != nil || result.Err() != nil {
		t.Fatalf("run: %v / %v", err, result.Err())
	}
	if result.Files[0].Segments < 2 {
		t.Fatalf("expected a segmented run, got %d segments", result.Files[0].Segments)
	}

	got, err := os.ReadFile(filepath.Join(dest, "huge.img"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("segmented output differs from source content")
	}
}

func TestLargeSingleBlockStreams(t *testing.T) {
	keyPool := testsupport.KeyPool(1)
	packed, descriptors := testsupport.BuildPacked(t, keyPool,
		testsupport.PackedFile{Name: "one.img", Content: pattern(4096, 7)})

	dest := t.TempDir()
	ex := newExtractor(t, packed, keyPool, extract.Options{
		Workers: 4, LargeFileThreshold: 100, VerifyChecksums: true,
	})
	result, err := ex.Run(context.Background(), descriptors, dest)
	if err != nil || result.Err() != nil {
		t.Fatalf("run: %v / %v", err, result.Err())
	}
	if result.Files[0].Segments != 1 {
		t.Fatalf("single-block file must stream, got %d segments", result.Files[0].Segments)
	}
}

func TestFailSoftPerFile(t *testing.T) {
	keyPool := testsupport.KeyPool(4)
	files := []testsupport.PackedFile{
		{Name: "good.bin", Content: pattern(2000, 8), BlockSize: 512, KeyIndex: 0},
		{Name: "bad.bin", Content: pattern(2000, 9), BlockSize: 512, KeyIndex: 1},
	}
	packed, descriptors := testsupport.BuildPacked(t, keyPool, files...)

	// Corrupt the first ciphertext block of bad.bin's payload so the
	// decrypted magic garbles.
	packed[descriptors[1].Offset+112+4] ^= 0xff

	dest := t.TempDir()
	ex := newExtractor(t, packed, keyPool, extract.Options{Workers: 2, VerifyChecksums: true})
	result, err := ex.Run(context.Background(), descriptors, dest)
	if err != nil {
		t.Fatal(err)
	}
	if result.Extracted() != 1 {
		t.Fatalf("extracted %d files, want 1", result.Extracted())
	}

	failures := result.Failures()
	if len(failures) != 1 || failures[0].Path != "bad.bin" {
		t.Fatalf("unexpected failures: %+v", failures)
	}
	if failures[0].Kind() != pipeline.KindCodec {
		t.Fatalf("failure kind = %s, want codec", failures[0].Kind())
	}
	if result.Err() == nil {
		t.Fatal("aggregate error must be non-nil when a file fails")
	}

	if _, err := os.Stat(filepath.Join(dest, "good.bin")); err != nil {
		t.Fatalf("good file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "bad.bin")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatal("failed file must not appear in the destination")
	}
	assertNoPartials(t, dest)
}

func TestHugeDeclaredPayloadFailsOneFile(t *testing.T) {
	keyPool := testsupport.KeyPool(4)
	files := []testsupport.PackedFile{
		{Name: "good.bin", Content: pattern(2000, 20), BlockSize: 512, KeyIndex: 0},
		{Name: "bomb.bin", Content: pattern(2000, 21), BlockSize: 512, KeyIndex: 1},
	}
	packed, descriptors := testsupport.BuildPacked(t, keyPool, files...)

	// Declare a payload size with the top bit set in bomb.bin's first
	// block header.
	binary.LittleEndian.PutUint64(packed[descriptors[1].Offset+32:], 1<<63)

	dest := t.TempDir()
	ex := newExtractor(t, packed, keyPool, extract.Options{Workers: 2, VerifyChecksums: true})
	result, err := ex.Run(context.Background(), descriptors, dest)
	if err != nil {
		t.Fatal(err)
	}
	if result.Extracted() != 1 {
		t.Fatalf("extracted %d files, want 1", result.Extracted())
	}
	failures := result.Failures()
	if len(failures) != 1 || failures[0].Path != "bomb.bin" {
		t.Fatalf("unexpected failures: %+v", failures)
	}
	if failures[0].Kind() != pipeline.KindFormat {
		t.Fatalf("failure kind = %s, want format", failures[0].Kind())
	}
	if _, err := os.Stat(filepath.Join(dest, "good.bin")); err != nil {
		t.Fatalf("good file missing: %v", err)
	}
	assertNoPartials(t, dest)
}

func TestNonSeekableCodecStreams(t *testing.T) {
	keyPool := testsupport.KeyPool(2)
	content := pattern(6000, 18)
	packed, descriptors := testsupport.BuildPacked(t, keyPool,
		testsupport.PackedFile{Name: "opaque.img", Content: content, BlockSize: 1000})

	// Rewrite the advertised codec tag of every block to one the planner
	// cannot split on. The payloads still decode; only the outer header
	// changes.
	refs, err := packfile.ScanBlocks(bytes.NewReader(packed), descriptors[0].Offset, descriptors[0].End())
	if err != nil {
		t.Fatal(err)
	}
	for _, ref := range refs {
		binary.LittleEndian.PutUint32(packed[ref.Offset+12:], 99)
	}

	dest := t.TempDir()
	ex := newExtractor(t, packed, keyPool, extract.Options{
		Workers: 4, LargeFileThreshold: 1024, VerifyChecksums: true,
	})
	result, err := ex.Run(context.Background(), descriptors, dest)
	if err != nil || result.Err() != nil {
		t.Fatalf("run: %v / %v", err, result.Err())
	}
	if result.Files[0].Segments != 1 {
		t.Fatalf("non-splittable chain must stream, got %d segments", result.Files[0].Segments)
	}
	got, err := os.ReadFile(filepath.Join(dest, "opaque.img"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("streamed output differs from source content")
	}
}

func TestChecksumMismatch(t *testing.T) {
	keyPool := testsupport.KeyPool(2)
	packed, descriptors := testsupport.BuildPacked(t, keyPool,
		testsupport.PackedFile{Name: "tampered.bin", Content: pattern(800, 10)})
	descriptors[0].SHA256 = strings.Repeat("00", 32)

	dest := t.TempDir()
	ex := newExtractor(t, packed, keyPool, extract.Options{Workers: 1, VerifyChecksums: true})
	result, err := ex.Run(context.Background(), descriptors, dest)
	if err != nil {
		t.Fatal(err)
	}
	failures := result.Failures()
	if len(failures) != 1 || failures[0].Kind() != pipeline.KindIntegrity {
		t.Fatalf("expected one integrity failure, got %+v", failures)
	}
	assertNoPartials(t, dest)
}

func TestChecksumSkippedWhenDisabled(t *testing.T) {
	keyPool := testsupport.KeyPool(2)
	packed, descriptors := testsupport.BuildPacked(t, keyPool,
		testsupport.PackedFile{Name: "unverified.bin", Content: pattern(800, 11)})
	descriptors[0].SHA256 = strings.Repeat("00", 32)

	ex := newExtractor(t, packed, keyPool, extract.Options{Workers: 1})
	result, err := ex.Run(context.Background(), descriptors, t.TempDir())
	if err != nil || result.Err() != nil {
		t.Fatalf("run: %v / %v", err, result.Err())
	}
}

func TestDeclaredSizeMismatch(t *testing.T) {
	keyPool := testsupport.KeyPool(2)
	packed, descriptors := testsupport.BuildPacked(t, keyPool,
		testsupport.PackedFile{Name: "short.bin", Content: pattern(800, 12)})
	descriptors[0].OriginalLength += 5

	ex := newExtractor(t, packed, keyPool, extract.Options{Workers: 1, VerifyChecksums: true})
	result, err := ex.Run(context.Background(), descriptors, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	failures := result.Failures()
	if len(failures) != 1 || failures[0].Kind() != pipeline.KindIntegrity {
		t.Fatalf("expected one integrity failure, got %+v", failures)
	}
}

func TestCancellation(t *testing.T) {
	keyPool := testsupport.KeyPool(2)
	files := []testsupport.PackedFile{
		{Name: "x.bin", Content: pattern(5000, 13), BlockSize: 500},
		{Name: "y.bin", Content: pattern(5000, 14), BlockSize: 500},
	}
	packed, descriptors := testsupport.BuildPacked(t, keyPool, files...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest := t.TempDir()
	ex := newExtractor(t, packed, keyPool, extract.Options{Workers: 2})
	_, err := ex.Run(ctx, descriptors, dest)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	assertNoPartials(t, dest)
}

func TestProgressReporting(t *testing.T) {
	keyPool := testsupport.KeyPool(2)
	files := []testsupport.PackedFile{
		{Name: "p.bin", Content: pattern(3000, 15), BlockSize: 512},
		{Name: "q.bin", Content: pattern(1000, 16)},
	}
	packed, descriptors := testsupport.BuildPacked(t, keyPool, files...)

	var reported atomic.Int64
	ex := newExtractor(t, packed, keyPool, extract.Options{
		Workers:  3,
		Progress: func(delta int64) { reported.Add(delta) },
	})
	result, err := ex.Run(context.Background(), descriptors, t.TempDir())
	if err != nil || result.Err() != nil {
		t.Fatalf("run: %v / %v", err, result.Err())
	}
	if reported.Load() != fileindex.TotalOriginal(descriptors) {
		t.Fatalf("progress reported %d bytes, want %d", reported.Load(), fileindex.TotalOriginal(descriptors))
	}
}

func TestLogsCarryRunContext(t *testing.T) {
	keyPool := testsupport.KeyPool(2)
	packed, descriptors := testsupport.BuildPacked(t, keyPool,
		testsupport.PackedFile{Name: "ctx.bin", Content: pattern(600, 17)})

	keys, err := packfile.NewKeyMap(keyPool)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ex := extract.New(bytes.NewReader(packed), keys, logger, extract.Options{Workers: 1})

	ctx := logging.WithRunID(context.Background(), "run-42")
	ctx = logging.WithStage(ctx, "extract")
	if _, err := ex.Run(ctx, descriptors, t.TempDir()); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{"run_id=run-42", "stage=extract", "file=ctx.bin"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in logs:\n%s", want, out)
		}
	}
}
