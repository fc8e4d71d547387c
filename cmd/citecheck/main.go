// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the citecheck CLI. It verifies the
// metadata of every bibliography entry against scholarly sources, reports
// near-duplicate entries, and keeps a ledger of past runs.
package main

import (
	"context"
	"log/slog"
	"os"
	"sort"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/pdiddy/citecheck/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ and .env at startup.
var loadedSecrets map[string]string

// logger is configured from --verbose before any command runs.
var logger = slog.Default()

// rootCmd is the base command for the citecheck CLI.
var rootCmd = &cobra.Command{
	Use:   "citecheck",
	Short: "Verify bibliography metadata against scholarly sources",
	Long: `citecheck looks up every entry of a bibliography in arXiv, CrossRef,
DBLP, Semantic Scholar, OpenAlex and (optionally) Google Scholar, compares
the title, authors, year and venue with what the sources report, and prints
one verdict per entry: verified, mismatch, not_found, or unknown.

Source responses are cached on disk, so a second run over the same
bibliography issues no network calls. Every run is recorded in a local
ledger that can be listed with history and exported with export.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		logger = newLogger(verbose)
		slog.SetDefault(logger)

		dir, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		env, err := secrets.LoadEnv(".env")
		if err != nil {
			return err
		}
		loadedSecrets = secrets.Merge(dir, env)
		if len(loadedSecrets) > 0 {
			keys := make([]string, 0, len(loadedSecrets))
			for k := range loadedSecrets {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug("loaded secrets", "keys", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./citecheck.yaml or ~/.config/citecheck/citecheck.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log debug events to stderr")
	rootCmd.PersistentFlags().String("cache-dir", ".cache/citecheck", "directory for cached source responses")
	rootCmd.PersistentFlags().String("ledger-dir", ".citecheck", "directory for the run ledger")

	cobra.CheckErr(bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"cache.dir":  "cache-dir",
		"ledger.dir": "ledger-dir",
	}))
}

func main() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}
