// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/citecheck/internal/bibfile"
	"github.com/pdiddy/citecheck/internal/cache"
	"github.com/pdiddy/citecheck/internal/ledger"
	"github.com/pdiddy/citecheck/internal/source"
	"github.com/pdiddy/citecheck/internal/verify"
	"github.com/pdiddy/citecheck/pkg/types"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <bibliography.bib|entries.yaml>",
	Short: "Verify every bibliography entry against the enabled sources",
	Long: `Verify looks up each entry in every enabled source, reconciles the
answers, and prints one verdict per entry along with the fields that
differ from the best source evidence. Near-duplicate entries are listed
after the verdicts.

Results are cached under the cache directory; use --retry-errors to retry
sources that failed on a previous run. A progress line is printed to stderr
as each entry completes. When the run timeout expires, entries that were
not fully checked are reported as unknown.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	list, _ := cmd.Flags().GetStringSlice("sources")
	if err := selectSources(&cfg, list); err != nil {
		return err
	}

	entries, err := bibfile.Load(args[0])
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("%s contains no entries", args[0])
	}

	adapters, err := source.Build(cfg, &http.Client{})
	if err != nil {
		return err
	}

	var store *cache.Store
	if !cfg.Cache.Disabled {
		store, err = cache.Open(cfg.Cache.Dir)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	quiet, _ := cmd.Flags().GetBool("quiet")
	opts := verify.Options{Config: cfg, Adapters: adapters, Cache: store, Logger: logger}
	if !quiet {
		opts.Progress = os.Stderr
	}
	engine, err := verify.New(opts)
	if err != nil {
		return err
	}

	started := time.Now()
	report, runErr := engine.Run(cmd.Context(), entries)
	if runErr != nil && !verify.IsInterrupted(runErr) {
		return runErr
	}

	noLedger, _ := cmd.Flags().GetBool("no-ledger")
	var run ledger.Run
	if !noLedger {
		lg, err := ledger.Open(cfg.Ledger)
		if err != nil {
			return err
		}
		defer lg.Close()
		// Record partial reports even after an interrupt.
		run, err = lg.RecordRun(context.WithoutCancel(cmd.Context()), args[0], started, report)
		if err != nil {
			logger.Warn("could not record run", "error", err)
		}
	}

	format, _ := cmd.Flags().GetString("format")
	if err := writeReport(os.Stdout, format, report); err != nil {
		return err
	}
	if run.ID != "" && format == "table" {
		fmt.Fprintf(os.Stdout, "\nrun %s recorded in %s\n", run.ID, cfg.Ledger.Dir)
	}

	if runErr != nil {
		return runErr
	}
	strict, _ := cmd.Flags().GetBool("strict")
	if strict {
		if n := countNotVerified(report.Verdicts); n > 0 {
			return fmt.Errorf("%d of %d entries not verified", n, len(report.Verdicts))
		}
	}
	return nil
}

func countNotVerified(verdicts []types.Verdict) int {
	n := 0
	for _, v := range verdicts {
		if v.Tier != types.TierVerified {
			n++
		}
	}
	return n
}

func init() {
	verifyCmd.Flags().StringSlice("sources", nil, "comma-separated sources to query (default: those enabled in config)")
	verifyCmd.Flags().Int("workers", 4, "maximum concurrent source lookups")
	verifyCmd.Flags().Duration("run-timeout", 30*time.Minute, "overall deadline for the run (0 disables)")
	verifyCmd.Flags().Duration("timeout", 30*time.Second, "per-request deadline")
	verifyCmd.Flags().Bool("retry-errors", false, "retry sources whose cached response is an error")
	verifyCmd.Flags().Bool("no-cache", false, "do not read or write the cache")
	verifyCmd.Flags().Bool("no-ledger", false, "do not record the run in the ledger")
	verifyCmd.Flags().String("format", "table", "output format: table, json, or yaml")
	verifyCmd.Flags().Bool("strict", false, "exit non-zero unless every entry is verified")
	verifyCmd.Flags().BoolP("quiet", "q", false, "suppress progress lines")

	cobra.CheckErr(bindFlags(verifyCmd.Flags(), map[string]string{
		"fetch.workers":      "workers",
		"fetch.run_timeout":  "run-timeout",
		"http.timeout":       "timeout",
		"cache.retry_errors": "retry-errors",
		"cache.disabled":     "no-cache",
	}))

	rootCmd.AddCommand(verifyCmd)
}
