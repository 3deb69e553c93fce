// Package workspace manages per-run staging directories: creation under
// an exclusive file lock, free-space preflight, cleanup on completion,
// and removal of stale directories left by crashed runs.
package workspace
