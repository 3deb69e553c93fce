package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ntpidump/internal/config"
	"ntpidump/internal/fileindex"
	"ntpidump/internal/ntpi"
	"ntpidump/internal/pipeline"
)

func newInspectCommand(cmdCtx *commandContext) *cobra.Command {
	var listFiles bool

	cmd := &cobra.Command{
		Use:   "inspect <container>",
		Short: "Show a container's regions and file table without extracting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := cmdCtx.ensureConfig(); err != nil {
				return err
			}
			return runInspect(args[0], listFiles)
		},
	}
	cmd.Flags().BoolVarP(&listFiles, "files", "f", false, "List every table entry")
	return cmd
}

func runInspect(containerPath string, listFiles bool) error {
	containerPath, err := config.ExpandPath(containerPath)
	if err != nil {
		return err
	}
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

	fmt.Printf("Container: %s\nVersion:   %s\nSize:      %s\n\n",
		containerPath, header.Version(), formatBytes(info.Size()))

	regionRows := make([][]string, 0, len(regions))
	for _, region := range regions {
		regionRows = append(regionRows, []string{
			region.Header.Type.Name(),
			formatBytes(int64(region.Header.Size)),
			fmt.Sprintf("%d", region.Offset),
		})
	}
	fmt.Println(renderTable([]string{"Region", "Size", "Offset"}, regionRows,
		[]columnAlignment{alignLeft, alignRight, alignRight}))

	var indexPayload []byte
	var packedSize int64
	for _, region := range regions {
		switch region.Header.Type {
		case ntpi.RegionFileIndex:
			indexPayload = region.Payload
		case ntpi.RegionPacked:
			packedSize = int64(region.Header.Size)
		}
	}
	if indexPayload == nil {
		return nil
	}
	descriptors, err := fileindex.Decode(bytes.NewReader(indexPayload), packedSize)
	if err != nil {
		return err
	}

	fmt.Printf("\nPacked files: %d, %s decompressed\n",
		len(descriptors), formatBytes(fileindex.TotalOriginal(descriptors)))

	if !listFiles {
		return nil
	}
	fileRows := make([][]string, 0, len(descriptors))
	for _, d := range descriptors {
		fileRows = append(fileRows, []string{
			d.Path,
			formatBytes(d.OriginalLength),
			formatBytes(d.Length),
			fmt.Sprintf("%d", d.KeyIndex),
		})
	}
	fmt.Println(renderTable([]string{"File", "Size", "Packed", "Key"}, fileRows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight}))
	return nil
}

func newVersionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List container versions this build carries keys for",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, version := range ntpi.SupportedVersions() {
				fmt.Println(version)
			}
			return nil
		},
	}
}
