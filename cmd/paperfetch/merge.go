// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paperfetch/internal/merge"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <dir> <out.pdf>",
	Short: "Merge the PDFs in a directory into one file",
	Long: `Merge consolidates every .pdf file in dir into out.pdf without
downloading anything. Files are ordered by the year before the first "_"
in their name, newest first, then by name. Files that cannot be parsed are
reported and skipped.`,
	Args: cobra.ExactArgs(2),
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	engine := merge.NewEngine(merge.NewPDFCPU(), out, logger)

	res, err := engine.MergeDir(args[0], args[1])
	if err != nil {
		return err
	}
	if res.Output != "" && len(res.Skipped) > 0 {
		fmt.Fprintf(out, "%d file(s) skipped\n", len(res.Skipped))
	}
	return nil
}
