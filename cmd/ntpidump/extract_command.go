package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"ntpidump/internal/config"
	"ntpidump/internal/extract"
	"ntpidump/internal/fileindex"
	"ntpidump/internal/fileutil"
	"ntpidump/internal/journal"
	"ntpidump/internal/logging"
	"ntpidump/internal/ntpi"
	"ntpidump/internal/packfile"
	"ntpidump/internal/pipeline"
	"ntpidump/internal/workspace"
)

const staleWorkspaceAge = 48 * time.Hour

func newExtractCommand(cmdCtx *commandContext) *cobra.Command {
	var (
		outputFlag   string
		workersFlag  int
		thresholdMiB int
		keepTempFlag bool
		noVerifyFlag bool
		noJournal    bool
	)

	cmd := &cobra.Command{
		Use:   "extract <container>",
		Short: "Extract every file from a firmware container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			if workersFlag > 0 {
				cfg.Extraction.Workers = workersFlag
			}
			if thresholdMiB > 0 {
				cfg.Extraction.LargeFileMiB = thresholdMiB
			}
			if keepTempFlag {
				cfg.Extraction.KeepTemp = true
			}
			if noVerifyFlag {
				cfg.Extraction.VerifyChecksums = false
			}
			if noJournal {
				cfg.Journal.Enabled = false
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runExtract(ctx, cmdCtx, cfg, args[0], outputFlag)
		},
	}

	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output directory (default: <container>_extracted)")
	cmd.Flags().IntVarP(&workersFlag, "workers", "w", 0, "Worker pool size (default: from config)")
	cmd.Flags().IntVar(&thresholdMiB, "threshold-mib", 0, "Large-file segmentation threshold in MiB")
	cmd.Flags().BoolVar(&keepTempFlag, "keep-temp", false, "Keep the staging directory for inspection")
	cmd.Flags().BoolVar(&noVerifyFlag, "no-verify", false, "Skip checksum verification")
	cmd.Flags().BoolVar(&noJournal, "no-journal", false, "Skip recording the run in the journal")

	return cmd
}

func runExtract(ctx context.Context, cmdCtx *commandContext, cfg *config.Config, containerPath, outputFlag string) error {
	containerPath, err := config.ExpandPath(containerPath)
	if err != nil {
		return err
	}
	outputDir, err := resolveOutputDir(cfg, containerPath, outputFlag)
	if err != nil {
		return err
	}

	base, err := cmdCtx.newLogger(cfg)
	if err != nil {
		return err
	}
	runID := uuid.NewString()[:8]
	ctx = logging.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, base)

	workspace.CleanStale(cfg.Paths.StagingDir, staleWorkspaceAge, logger)

	container, err := os.Open(containerPath)
	if err != nil {
		return pipeline.Wrap(pipeline.ErrIO, "parse", "open container", containerPath, err)
	}
	defer container.Close()
	info, err := container.Stat()
	if err != nil {
		return pipeline.Wrap(pipeline.ErrIO, "parse", "stat container", containerPath, err)
	}

	header, regions, err := ntpi.WalkRegions(container, info.Size())
	if err != nil {
		return err
	}
	logger.Info("container parsed",
		logging.String("version", header.Version()),
		logging.Int("regions", len(regions)))

	ws, err := workspace.Create(cfg.Paths.StagingDir, runID, cfg.Extraction.KeepTemp, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cleanupErr := ws.Cleanup(); cleanupErr != nil {
			logger.Warn("workspace cleanup failed", logging.Error(cleanupErr))
		}
	}()

	artifacts, err := ntpi.Materialize(regions, container, ws.Root, logger)
	if err != nil {
		return err
	}
	for _, required := range []ntpi.RegionType{ntpi.RegionKeyMap, ntpi.RegionFileIndex, ntpi.RegionPacked} {
		if artifacts.Path(required) == "" {
			return pipeline.Wrap(pipeline.ErrFormat, "parse", "region chain",
				fmt.Sprintf("container carries no %s region", required.Name()), nil)
		}
	}

	keys, descriptors, err := loadTable(artifacts)
	if err != nil {
		return err
	}

	totalBytes := fileindex.TotalOriginal(descriptors)
	margin := totalBytes / 100 * int64(cfg.Extraction.MinFreeSpaceRatio)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return pipeline.Wrap(pipeline.ErrIO, "extract", "prepare destination", outputDir, err)
	}
	if err := workspace.CheckFreeSpace(outputDir, totalBytes+margin); err != nil {
		return err
	}

	var store *journal.Store
	if cfg.Journal.Enabled {
		store, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		err = store.StartRun(ctx, journal.Run{
			RunID:            runID,
			ContainerPath:    containerPath,
			ContainerVersion: header.Version(),
			OutputDir:        outputDir,
			Workers:          cfg.Extraction.Workers,
			StartedAt:        time.Now(),
		})
		if err != nil {
			return err
		}
	}

	packed, err := os.Open(artifacts.Path(ntpi.RegionPacked))
	if err != nil {
		return pipeline.Wrap(pipeline.ErrIO, "extract", "open packed artifact", "", err)
	}
	defer packed.Close()

	opts := extract.Options{
		Workers:            cfg.Extraction.Workers,
		LargeFileThreshold: cfg.LargeFileThreshold(),
		VerifyChecksums:    cfg.Extraction.VerifyChecksums,
	}
	var bar *progressbar.ProgressBar
	if isatty.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.DefaultBytes(totalBytes, "extracting")
		opts.Progress = func(delta int64) { _ = bar.Add64(delta) }
	}

	// The extractor derives run, stage, and file fields from the context,
	// so it gets the bare logger rather than the pre-stamped one.
	extractCtx := logging.WithStage(ctx, "extract")
	result, runErr := extract.New(packed, keys, base, opts).Run(extractCtx, descriptors, outputDir)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}

	if result != nil {
		moveManifests(artifacts, outputDir, logger)
		if store != nil {
			recordRun(ctx, store, runID, result, runErr, logger)
		}
		printSummary(result, outputDir)
	}
	if runErr != nil {
		return runErr
	}
	return result.Err()
}

// resolveOutputDir picks flag over config over a directory derived from
// the container name.
func resolveOutputDir(cfg *config.Config, containerPath, outputFlag string) (string, error) {
	if strings.TrimSpace(outputFlag) != "" {
		return config.ExpandPath(outputFlag)
	}
	if strings.TrimSpace(cfg.Paths.OutputDir) != "" {
		return cfg.Paths.OutputDir, nil
	}
	base := strings.TrimSuffix(filepath.Base(containerPath), filepath.Ext(containerPath))
	return filepath.Join(filepath.Dir(containerPath), base+"_extracted"), nil
}

// loadTable reads the key map and file table out of the materialized
// artifacts.
func loadTable(artifacts ntpi.Artifacts) (*packfile.KeyMap, []fileindex.Descriptor, error) {
	keyData, err := os.ReadFile(artifacts.Path(ntpi.RegionKeyMap))
	if err != nil {
		return nil, nil, pipeline.Wrap(pipeline.ErrIO, "parse", "read key map artifact", "", err)
	}
	keys, err := packfile.NewKeyMap(keyData)
	if err != nil {
		return nil, nil, err
	}

	index, err := os.Open(artifacts.Path(ntpi.RegionFileIndex))
	if err != nil {
		return nil, nil, pipeline.Wrap(pipeline.ErrIO, "parse", "read file index artifact", "", err)
	}
	defer index.Close()
	descriptors, err := fileindex.Decode(index, artifacts.PackedSize)
	if err != nil {
		return nil, nil, err
	}
	return keys, descriptors, nil
}

// moveManifests promotes the decrypted manifests into the output so the
// extraction is self-describing. The key map stays in staging; it is key
// material, not firmware.
func moveManifests(artifacts ntpi.Artifacts, outputDir string, logger *slog.Logger) {
	for _, typ := range []ntpi.RegionType{ntpi.RegionMetadata, ntpi.RegionPatch, ntpi.RegionRawProgram} {
		src := artifacts.Path(typ)
		if src == "" {
			continue
		}
		if err := fileutil.MoveFile(src, filepath.Join(outputDir, typ.ArtifactName())); err != nil {
			logger.Warn("moving manifest failed",
				logging.String(logging.FieldRegion, typ.Name()), logging.Error(err))
		}
	}
}

func recordRun(ctx context.Context, store *journal.Store, runID string, result *extract.Result, runErr error, logger *slog.Logger) {
	status := journal.StatusCompleted
	switch {
	case runErr != nil:
		status = journal.StatusCanceled
	case result.Err() != nil:
		status = journal.StatusFailed
	}

	files := make([]journal.FileRecord, 0, len(result.Files))
	for _, f := range result.Files {
		record := journal.FileRecord{
			Path:     f.Path,
			Bytes:    f.Bytes,
			Segments: f.Segments,
			Duration: f.Duration,
		}
		if f.Failed() {
			record.Bytes = 0
			record.ErrorKind = string(f.Kind())
			record.ErrorText = f.Err.Error()
		}
		files = append(files, record)
	}

	err := store.FinishRun(context.WithoutCancel(ctx), journal.Run{
		RunID:          runID,
		Status:         status,
		FinishedAt:     time.Now(),
		FilesTotal:     len(result.Files),
		FilesExtracted: result.Extracted(),
		FilesFailed:    len(result.Failures()),
		BytesWritten:   result.Bytes(),
	}, files)
	if err != nil {
		logger.Warn("recording run in journal failed", logging.Error(err))
	}
}

func printSummary(result *extract.Result, outputDir string) {
	fmt.Printf("Extracted %d of %d files (%s) to %s in %s\n",
		result.Extracted(), len(result.Files), formatBytes(result.Bytes()),
		outputDir, result.Duration.Round(time.Millisecond))

	failures := result.Failures()
	if len(failures) == 0 {
		return
	}
	rows := make([][]string, 0, len(failures))
	for _, f := range failures {
		rows = append(rows, []string{f.Path, string(f.Kind()), f.Err.Error()})
	}
	fmt.Println(renderTable([]string{"File", "Kind", "Error"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft}))
}
