// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/citecheck/internal/bibfile"
	"github.com/pdiddy/citecheck/internal/duplicate"
)

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates <bibliography.bib|entries.yaml>",
	Short: "List near-duplicate bibliography entries",
	Long: `Duplicates compares every pair of entries by title and author similarity
and prints the groups of entries that likely cite the same work. No sources
are queried.`,
	Args: cobra.ExactArgs(1),
	RunE: runDuplicates,
}

func runDuplicates(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	entries, err := bibfile.Load(args[0])
	if err != nil {
		return err
	}

	clusters := duplicate.Detect(entries, cfg.Duplicate)

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(clusters)
	}
	if len(clusters) == 0 {
		fmt.Println("No duplicates found.")
		return nil
	}
	writeClusters(os.Stdout, clusters)
	fmt.Fprintf(os.Stdout, "\n%d group(s) among %d entries\n", len(clusters), len(entries))
	return nil
}

func init() {
	duplicatesCmd.Flags().Float64("threshold", 0.85, "combined similarity above which two entries are linked")
	duplicatesCmd.Flags().Bool("json", false, "output clusters as JSON")
	cobra.CheckErr(bindFlags(duplicatesCmd.Flags(), map[string]string{"duplicate.threshold": "threshold"}))

	rootCmd.AddCommand(duplicatesCmd)
}
