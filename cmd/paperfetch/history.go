// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paperfetch/internal/ledger"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent fetch results from the run ledger",
	Long: `History lists the most recent per-subject results recorded by fetch,
newest first. Use export to dump every recorded run.`,
	RunE: runHistory,
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the run ledger to YAML or JSON",
	RunE:  runHistoryExport,
}

func init() {
	historyCmd.PersistentFlags().String("ledger", "", "run ledger database (default .paperfetch/ledger.db)")
	historyCmd.Flags().Int("limit", ledger.DefaultLimit, "maximum number of results")
	historyCmd.Flags().String("code", "", "only show results for this subject code")
	historyCmd.Flags().Bool("json", false, "output as JSON")

	historyExportCmd.Flags().String("format", ledger.FormatYAML, "export format: yaml or json")
	historyExportCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")

	historyCmd.AddCommand(historyExportCmd)
	rootCmd.AddCommand(historyCmd)
}

func openLedger(cmd *cobra.Command) (*ledger.Store, error) {
	path, _ := cmd.Flags().GetString("ledger")
	if path == "" {
		path = viper.GetString("ledger_path")
	}
	if path == "" {
		return nil, fmt.Errorf("no ledger configured: set ledger_path or --ledger")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("ledger %s: %w", path, err)
	}
	return ledger.Open(path)
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	code, _ := cmd.Flags().GetString("code")
	entries, err := store.Recent(context.Background(), ledger.QueryOptions{Limit: limit, Code: code})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	return formatHistory(out, entries)
}

func formatHistory(w io.Writer, entries []ledger.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	fmt.Fprintf(w, "%-20s  %-10s  %-30s  %-6s  %-10s  %-7s  %s\n",
		"Started", "Code", "Name", "Status", "Failure", "Files", "Output")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for _, e := range entries {
		name := e.Subject.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		output := e.MergedPath
		if output == "" {
			output = "-"
		}
		failure := string(e.Failure)
		if failure == "" {
			failure = "-"
		}
		fmt.Fprintf(w, "%-20s  %-10s  %-30s  %-6s  %-10s  %-7s  %s\n",
			e.StartedAt.Local().Format("2006-01-02 15:04:05"), e.Subject.Code, name,
			e.Status, failure, fmt.Sprintf("%d/%d", e.Downloaded, e.LinksFound), output)
	}

	fmt.Fprintf(w, "\n%d results\n", len(entries))
	return nil
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	store, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	format, _ := cmd.Flags().GetString("format")
	outPath, _ := cmd.Flags().GetString("output")

	if outPath == "" {
		return store.Export(context.Background(), cmd.OutOrStdout(), format)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outPath, err)
	}
	if err := store.Export(context.Background(), f, format); err != nil {
		f.Close()
		os.Remove(outPath)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", outPath)
	return nil
}
