// Package journal persists extraction runs in a SQLite database: one row
// per run plus per-file outcomes, so past extractions stay inspectable
// after their logs rotate away.
package journal
