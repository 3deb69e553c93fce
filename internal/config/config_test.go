package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("config file should not exist")
	}
	if cfg.Extraction.Workers < 1 {
		t.Fatalf("workers default invalid: %d", cfg.Extraction.Workers)
	}
	if cfg.Extraction.LargeFileMiB != defaultLargeFileMiB {
		t.Fatalf("large_file_mib = %d, want %d", cfg.Extraction.LargeFileMiB, defaultLargeFileMiB)
	}
	if !cfg.Extraction.VerifyChecksums {
		t.Fatal("checksum verification should default on")
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
staging_dir = "` + dir + `/stage"
log_dir = "` + dir + `/logs"

[extraction]
workers = 3
large_file_mib = 64

[logging]
format = "JSON"
level = "Debug"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved=%q exists=%v", resolved, exists)
	}
	if cfg.Extraction.Workers != 3 {
		t.Fatalf("workers = %d, want 3", cfg.Extraction.Workers)
	}
	if cfg.LargeFileThreshold() != 64*1024*1024 {
		t.Fatalf("threshold = %d", cfg.LargeFileThreshold())
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging not normalized: %+v", cfg.Logging)
	}
	if cfg.Journal.Path != filepath.Join(cfg.Paths.LogDir, defaultJournalFile) {
		t.Fatalf("journal path = %q", cfg.Journal.Path)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "yaml"
	cfg.Extraction.Workers = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(err.Error(), "logging.format") {
		t.Fatalf("missing format problem: %v", err)
	}
	if !strings.Contains(err.Error(), "extraction.workers") {
		t.Fatalf("missing workers problem: %v", err)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatal(err)
	}
	if _, _, exists, err := Load(path); err != nil || !exists {
		t.Fatalf("sample config should load: exists=%v err=%v", exists, err)
	}
}

func TestExpandPathTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ExpandPath("~/x")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, "x") {
		t.Fatalf("got %q", got)
	}
}
