package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newBufferLogger(level string) (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(level))
	return slog.New(newConsoleHandler(buf, levelVar)), buf
}

func TestConsoleHandlerComponentPrefix(t *testing.T) {
	logger, buf := newBufferLogger("info")
	WithComponent(logger, "extractor").Info("file extracted", String("file", "boot.img"))

	line := buf.String()
	if !strings.Contains(line, "INFO extractor: file extracted") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "file=boot.img") {
		t.Fatalf("missing attribute: %q", line)
	}
}

func TestConsoleHandlerQuotesValues(t *testing.T) {
	logger, buf := newBufferLogger("info")
	logger.Info("note", String("path", "dir with space/file"))

	if !strings.Contains(buf.String(), `path="dir with space/file"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestConsoleHandlerLevelFilter(t *testing.T) {
	logger, buf := newBufferLogger("warn")
	logger.Info("hidden")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	logger, buf := newBufferLogger("info")

	ctx := WithRunID(context.Background(), "run-1")
	ctx = WithStage(ctx, "extract")
	ctx = WithFile(ctx, "system.img")

	WithContext(ctx, logger).Info("progress")

	line := buf.String()
	for _, want := range []string{"run_id=run-1", "stage=extract", "file=system.img"} {
		if !strings.Contains(line, want) {
			t.Errorf("missing %q in %q", want, line)
		}
	}
}

func TestNewUnsupportedFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNopLoggerSilent(t *testing.T) {
	logger := NewNop()
	// Must not panic and must report disabled at every level.
	logger.Error("discarded")
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger should be disabled")
	}
}
