package config

import "runtime"

const (
	defaultStagingDir     = "~/.local/share/ntpidump/staging"
	defaultLogDir         = "~/.local/share/ntpidump/logs"
	defaultLargeFileMiB   = 500
	defaultMinFreePercent = 5
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultJournalEnabled = true
	defaultJournalFile    = "runs.db"
	maxAutoWorkers        = 8
)

// Default returns a Config populated with repository defaults. Workers
// defaults to the CPU count, capped so a big machine does not thrash disk.
func Default() Config {
	workers := runtime.NumCPU()
	if workers > maxAutoWorkers {
		workers = maxAutoWorkers
	}
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Extraction: Extraction{
			Workers:           workers,
			LargeFileMiB:      defaultLargeFileMiB,
			VerifyChecksums:   true,
			MinFreeSpaceRatio: defaultMinFreePercent,
		},
		Journal: Journal{
			Enabled: defaultJournalEnabled,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
