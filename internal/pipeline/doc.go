// Package pipeline defines the error taxonomy shared by both extraction
// stages.
//
// Errors are classified with sentinel markers (format, I/O, codec,
// integrity) so callers can decide between aborting a stage and isolating a
// single packed file. Wrap builds the canonical message chain; Kind recovers
// the classification for reporting and for the run journal.
//
// Stage code should always tag failures through this package rather than
// returning bare errors, so the CLI and journal can render consistent
// failure kinds.
package pipeline
