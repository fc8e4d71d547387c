// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/citecheck/internal/ledger"
)

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded verification runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	lg, err := openLedger()
	if err != nil {
		return err
	}
	defer lg.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := lg.Runs(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-8s  %-19s  %-24s  %5s  %5s  %5s  %5s  %5s\n",
		"Run", "Started", "Bibliography", "Total", "OK", "Diff", "Miss", "Unk")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 92))
	for _, r := range runs {
		bib := r.Bibliography
		if len(bib) > 24 {
			bib = "..." + bib[len(bib)-21:]
		}
		mark := ""
		if r.TimedOut {
			mark = " (timed out)"
		}
		fmt.Fprintf(os.Stdout, "%-8s  %-19s  %-24s  %5d  %5d  %5d  %5d  %5d%s\n",
			r.ID[:8], r.StartedAt.Local().Format(time.DateTime), bib,
			r.Entries, r.Verified, r.Mismatch, r.NotFound, r.Unknown, mark)
	}
	return nil
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export [run-id]",
	Short: "Export a recorded run as YAML, JSON, or Parquet",
	Long: `Export writes the verdicts of a recorded run to a file. The run ID may
be abbreviated to any unambiguous prefix; without one the latest run is
exported. Parquet output holds one flat row per entry for analysis tools.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")
	id := "latest"
	if len(args) == 1 {
		id = args[0]
	}

	lg, err := openLedger()
	if err != nil {
		return err
	}
	defer lg.Close()

	run, err := lg.Run(cmd.Context(), id)
	if err != nil {
		return err
	}
	if output == "" {
		output = fmt.Sprintf("citecheck-%s.%s", run.ID[:8], format)
	}

	ctx := cmd.Context()
	switch format {
	case "yaml":
		err = lg.ExportYAML(ctx, run.ID, output)
	case "json":
		err = lg.ExportJSON(ctx, run.ID, output)
	case "parquet":
		err = lg.ExportParquet(ctx, run.ID, output)
	default:
		return fmt.Errorf("unsupported format %q: use yaml, json, or parquet", format)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Exported run %s to %s\n", run.ID, output)
	return nil
}

func openLedger() (*ledger.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return ledger.Open(cfg.Ledger)
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum runs to list (0 = all)")

	exportCmd.Flags().String("format", "yaml", "export format: yaml, json, or parquet")
	exportCmd.Flags().StringP("output", "o", "", "output path (default: citecheck-<run>.<format>)")

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(exportCmd)
}
