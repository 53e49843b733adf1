package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/rangefetch/internal/output"
	"github.com/tanq16/rangefetch/internal/utils"
)

func newGetCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "get [URL...] [--output OUTPUT_PATH]",
		Short: "Download one or more files via HTTP/HTTPS or S3",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if outputPath != "" && len(args) > 1 {
				if info, err := os.Stat(outputPath); err != nil || !info.IsDir() {
					output.PrintError("--output must be a directory when downloading several URLs")
					os.Exit(1)
				}
			}
			entries := make([]utils.DownloadEntry, 0, len(args))
			for _, link := range args {
				entries = append(entries, utils.DownloadEntry{URL: link, OutputPath: outputPath})
			}
			if !runDownloads(cmd.Context(), entries) {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file or directory (file name inferred if not provided)")
	return cmd
}
