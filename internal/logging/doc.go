// Package logging assembles the structured slog loggers used across the
// extractor.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code can tag log
// lines with the run ID, stage name, and packed-file path automatically. A
// no-op logger is provided for tests and wiring code that cannot fail.
//
// Core packages accept a *slog.Logger and never print to stdout themselves;
// presentation belongs to the CLI.
package logging
