// Package config loads, normalizes, and validates ntpidump configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob
// the CLI and the extraction pipeline need: staging/output directories,
// worker counts, the large-file threshold, and logging settings.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
