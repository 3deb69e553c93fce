package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the normalized configuration for values the pipeline
// cannot work with. Collected problems are reported together.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		problems = append(problems, "paths.staging_dir must not be empty")
	}
	if c.Extraction.Workers < 1 {
		problems = append(problems, "extraction.workers must be at least 1")
	}
	if c.Extraction.LargeFileMiB < 1 {
		problems = append(problems, "extraction.large_file_mib must be at least 1")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not supported (console, json)", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is not supported (debug, info, warn, error)", c.Logging.Level))
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration: " + strings.Join(problems, "; "))
}
