// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/citecheck/pkg/types"
)

// Export is the document written by ExportYAML and ExportJSON.
type Export struct {
	Run      Run                      `json:"run" yaml:"run"`
	Verdicts []types.Verdict          `json:"verdicts" yaml:"verdicts"`
	Clusters []types.DuplicateCluster `json:"clusters" yaml:"clusters"`
}

// VerdictRow is the flat per-entry row written by ExportParquet.
type VerdictRow struct {
	RunID      string  `parquet:"run_id"`
	Key        string  `parquet:"key"`
	Tier       string  `parquet:"tier"`
	Exists     bool    `parquet:"exists"`
	Score      float64 `parquet:"score"`
	Sources    string  `parquet:"sources"`
	NotFoundBy string  `parquet:"not_found_by"`
	Failures   string  `parquet:"failures"`
	DiffFields string  `parquet:"diff_fields"`
	MajorDiffs int32   `parquet:"major_diffs"`
	Identifier string  `parquet:"identifier"`
	URL        string  `parquet:"url"`
}

// Load reads a run with its verdicts and clusters.
func (s *Store) Load(ctx context.Context, runID string) (Export, error) {
	run, err := s.Run(ctx, runID)
	if err != nil {
		return Export{}, err
	}
	verdicts, err := s.Verdicts(ctx, run.ID)
	if err != nil {
		return Export{}, err
	}
	clusters, err := s.Clusters(ctx, run.ID)
	if err != nil {
		return Export{}, err
	}
	return Export{Run: run, Verdicts: verdicts, Clusters: clusters}, nil
}

// ExportYAML writes a run to path as YAML.
func (s *Store) ExportYAML(ctx context.Context, runID, path string) error {
	exp, err := s.Load(ctx, runID)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(exp)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ExportJSON writes a run to path as indented JSON.
func (s *Store) ExportJSON(ctx context.Context, runID, path string) error {
	exp, err := s.Load(ctx, runID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ExportParquet writes a run's verdicts to path as one Parquet row each.
// Clusters are not included.
func (s *Store) ExportParquet(ctx context.Context, runID, path string) error {
	exp, err := s.Load(ctx, runID)
	if err != nil {
		return err
	}
	rows := make([]VerdictRow, len(exp.Verdicts))
	for i, v := range exp.Verdicts {
		rows[i] = verdictRow(exp.Run.ID, v)
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("writing parquet: %w", err)
	}
	return nil
}

func verdictRow(runID string, v types.Verdict) VerdictRow {
	row := VerdictRow{
		RunID:      runID,
		Key:        v.Key,
		Tier:       string(v.Tier),
		Exists:     v.Exists,
		Score:      v.Score,
		Sources:    joinIDs(v.Sources),
		NotFoundBy: joinIDs(v.NotFoundBy),
	}
	var failures, fields []string
	for _, f := range v.Failures {
		failures = append(failures, string(f.Source)+":"+string(f.Kind))
	}
	for _, d := range v.Diffs {
		fields = append(fields, string(d.Field))
		if d.Severity == types.SeverityMajor {
			row.MajorDiffs++
		}
	}
	row.Failures = strings.Join(failures, ",")
	row.DiffFields = strings.Join(fields, ",")
	if v.Evidence != nil {
		row.Identifier = v.Evidence.Identifier
		row.URL = v.Evidence.URL
	}
	return row
}

func joinIDs(ids []types.SourceID) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = string(id)
	}
	return strings.Join(s, ",")
}
