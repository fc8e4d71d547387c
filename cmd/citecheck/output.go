// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/citecheck/internal/verify"
	"github.com/pdiddy/citecheck/pkg/types"
)

// writeReport renders a report as a table, JSON, or YAML.
func writeReport(w io.Writer, format string, report verify.Report) error {
	switch format {
	case "table", "":
		writeTable(w, report)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		data, err := yaml.Marshal(report)
		if err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported format %q: use table, json, or yaml", format)
	}
}

func tierColor(t types.Tier) func(a ...any) string {
	switch t {
	case types.TierVerified:
		return color.New(color.FgGreen).SprintFunc()
	case types.TierMismatch:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case types.TierNotFound:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	default:
		return color.New(color.FgHiBlack).SprintFunc()
	}
}

func severityColor(s types.Severity) func(a ...any) string {
	switch s {
	case types.SeverityMajor:
		return color.New(color.FgRed).SprintFunc()
	case types.SeverityMinor:
		return color.New(color.FgYellow).SprintFunc()
	default:
		return color.New(color.FgHiBlack).SprintFunc()
	}
}

func writeTable(w io.Writer, report verify.Report) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()

	fmt.Fprintf(w, "%-30s  %-9s  %5s  %s\n", "Key", "Tier", "Score", "Sources")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	counts := make(map[types.Tier]int)
	for _, v := range report.Verdicts {
		counts[v.Tier]++
		key := v.Key
		if len(key) > 30 {
			key = key[:27] + "..."
		}
		// Pad before coloring so escape codes do not skew the columns.
		tier := tierColor(v.Tier)(fmt.Sprintf("%-9s", v.Tier))
		fmt.Fprintf(w, "%-30s  %s  %5.2f  %s\n", key, tier, v.Score, joinSources(v.Sources))

		for _, d := range v.Diffs {
			sev := severityColor(d.Severity)(string(d.Severity))
			fmt.Fprintf(w, "    %-7s %s: %q vs %q (%s, %.2f)\n",
				d.Field, sev, truncate(d.BibValue, 40), truncate(d.SourceValue, 40), d.Source, d.Similarity)
		}
		if v.Tier == types.TierNotFound && len(v.NotFoundBy) > 0 {
			fmt.Fprintf(w, "    not found by %s\n", joinSources(v.NotFoundBy))
		}
		for _, f := range v.Failures {
			fmt.Fprintf(w, "    %s %s: %s\n", color.HiBlackString("failed"), f.Source, f.Kind)
		}
	}

	fmt.Fprintf(w, "\n%s verified: %d, mismatch: %d, not_found: %d, unknown: %d\n",
		cyan("Summary"), counts[types.TierVerified], counts[types.TierMismatch],
		counts[types.TierNotFound], counts[types.TierUnknown])

	s := report.Stats
	fmt.Fprintf(w, "lookups: %d (cached %d, live %d, retries %d), elapsed %s\n",
		s.Pairs, s.CacheHits, s.Calls, s.Retries, s.Elapsed.Round(time.Millisecond))
	if s.TimedOut {
		fmt.Fprintf(w, "%s run timeout expired; %d lookups did not finish\n", color.YellowString("warning:"), s.Incomplete)
	}

	if len(report.Clusters) > 0 {
		fmt.Fprintf(w, "\n%s\n", cyan("Possible duplicates"))
		writeClusters(w, report.Clusters)
	}
}

func writeClusters(w io.Writer, clusters []types.DuplicateCluster) {
	for i, c := range clusters {
		fmt.Fprintf(w, "%3d. %s  (similarity %.2f)\n", i+1, strings.Join(c.Keys, ", "), c.MaxSimilarity)
	}
}

func joinSources(ids []types.SourceID) string {
	if len(ids) == 0 {
		return "-"
	}
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = string(id)
	}
	return strings.Join(s, ",")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
