package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ntpidump/internal/journal"
)

func newRunsCommand(cmdCtx *commandContext) *cobra.Command {
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show past extraction runs from the journal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := journal.Open(cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				return showRunFiles(cmd, store, args[0])
			}
			return listRuns(cmd, store, limitFlag)
		},
	}
	cmd.Flags().IntVarP(&limitFlag, "limit", "n", 20, "Number of runs to show")
	return cmd
}

func listRuns(cmd *cobra.Command, store *journal.Store, limit int) error {
	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.RunID,
			run.StartedAt.Local().Format(time.DateTime),
			run.Status,
			run.ContainerVersion,
			fmt.Sprintf("%d/%d", run.FilesExtracted, run.FilesTotal),
			formatBytes(run.BytesWritten),
			run.OutputDir,
		})
	}
	fmt.Println(renderTable(
		[]string{"Run", "Started", "Status", "Version", "Files", "Bytes", "Output"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}))
	return nil
}

func showRunFiles(cmd *cobra.Command, store *journal.Store, runID string) error {
	files, err := store.RunFiles(cmd.Context(), runID)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Printf("No files recorded for run %s.\n", runID)
		return nil
	}

	rows := make([][]string, 0, len(files))
	for _, f := range files {
		status := "ok"
		if f.ErrorKind != "" {
			status = f.ErrorKind + ": " + f.ErrorText
		}
		rows = append(rows, []string{
			f.Path,
			formatBytes(f.Bytes),
			fmt.Sprintf("%d", f.Segments),
			f.Duration.Round(time.Millisecond).String(),
			status,
		})
	}
	fmt.Println(renderTable([]string{"File", "Bytes", "Segments", "Duration", "Status"}, rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft}))
	return nil
}
