// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/citecheck/internal/cache"
	"github.com/pdiddy/citecheck/pkg/types"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the source response cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cached entry counts per source",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	store, err := openCache()
	if err != nil {
		return err
	}
	defer store.Close()

	st, err := store.Stats()
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%-18s  %7s  %9s  %6s  %7s  %10s\n",
		"Source", "Found", "NotFound", "Errors", "Corrupt", "Bytes")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 66))
	for _, id := range types.AllSources {
		ss, ok := st.Sources[id]
		if !ok {
			continue
		}
		fmt.Fprintf(os.Stdout, "%-18s  %7d  %9d  %6d  %7d  %10d\n",
			id, ss.Found, ss.NotFound, ss.Errors, ss.Corrupt, ss.Bytes)
	}
	fmt.Fprintf(os.Stdout, "\n%d entries in %s\n", st.Total(), store.Dir())
	return nil
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [source]",
	Short: "Delete cached responses for one source or all sources",
	Long: `Clear removes cached responses. With a source name only that source's
entries are removed; without one the whole cache is cleared. The next
verify run re-queries the affected sources.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCacheClear,
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	var src types.SourceID
	if len(args) == 1 {
		src = types.SourceID(strings.ToLower(args[0]))
		if !isKnownSource(src) {
			return fmt.Errorf("unknown source %q (known: %s)", args[0], knownSources())
		}
	}

	store, err := openCache()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Clear(src)
	if err != nil {
		return err
	}
	what := "all sources"
	if src != "" {
		what = string(src)
	}
	fmt.Fprintf(os.Stdout, "removed %d cached entries (%s)\n", n, what)
	return nil
}

func openCache() (*cache.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return cache.Open(cfg.Cache.Dir)
}

func isKnownSource(id types.SourceID) bool {
	for _, s := range types.AllSources {
		if s == id {
			return true
		}
	}
	return false
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	rootCmd.AddCommand(cacheCmd)
}
