package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; old journals must be deleted.
const schemaVersion = 1

// ErrSchemaMismatch indicates the journal database was created by a
// different build.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Store persists extraction runs in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the run journal at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("prepare journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the journal database location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		return nil
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: journal has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

// Run is one journal entry.
type Run struct {
	RunID            string
	ContainerPath    string
	ContainerVersion string
	OutputDir        string
	Workers          int
	Status           string
	StartedAt        time.Time
	FinishedAt       time.Time
	FilesTotal       int
	FilesExtracted   int
	FilesFailed      int
	BytesWritten     int64
}

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// FileRecord is one file outcome within a run.
type FileRecord struct {
	Path      string
	Bytes     int64
	Segments  int
	Duration  time.Duration
	ErrorKind string
	ErrorText string
}

// StartRun records a run in progress.
func (s *Store) StartRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, container_path, container_version, output_dir, workers, status, started_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.ContainerPath, run.ContainerVersion, run.OutputDir,
		run.Workers, StatusRunning, run.StartedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun closes out a run with its aggregate counters and per-file
// outcomes.
func (s *Store) FinishRun(ctx context.Context, run Run, files []FileRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finish tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, files_total = ?, files_extracted = ?,
                files_failed = ?, bytes_written = ? WHERE run_id = ?`,
		run.Status, run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.FilesTotal, run.FilesExtracted, run.FilesFailed, run.BytesWritten, run.RunID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("finish run: run %s not found", run.RunID)
	}

	for _, f := range files {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO run_files (run_id, path, bytes, segments, duration_ms, error_kind, error)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, f.Path, f.Bytes, f.Segments, f.Duration.Milliseconds(),
			nullableString(f.ErrorKind), nullableString(f.ErrorText))
		if err != nil {
			return fmt.Errorf("insert run file %s: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finish tx: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, container_path, container_version, output_dir, workers, status,
                started_at, COALESCE(finished_at, ''), files_total, files_extracted,
                files_failed, bytes_written
         FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var started, finished string
		if err := rows.Scan(&run.RunID, &run.ContainerPath, &run.ContainerVersion,
			&run.OutputDir, &run.Workers, &run.Status, &started, &finished,
			&run.FilesTotal, &run.FilesExtracted, &run.FilesFailed, &run.BytesWritten); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished != "" {
			run.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RunFiles returns the per-file outcomes of one run in insertion order.
func (s *Store) RunFiles(ctx context.Context, runID string) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, bytes, segments, duration_ms, COALESCE(error_kind, ''), COALESCE(error, '')
         FROM run_files WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list run files: %w", err)
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		var f FileRecord
		var durationMS int64
		if err := rows.Scan(&f.Path, &f.Bytes, &f.Segments, &durationMS, &f.ErrorKind, &f.ErrorText); err != nil {
			return nil, fmt.Errorf("scan run file: %w", err)
		}
		f.Duration = time.Duration(durationMS) * time.Millisecond
		files = append(files, f)
	}
	return files, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
