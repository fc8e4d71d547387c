// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger records verification runs in a SQLite database so past
// verdicts can be listed and exported without re-querying sources.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/citecheck/internal/verify"
	"github.com/pdiddy/citecheck/pkg/types"
)

const dbFile = "ledger.db"

// ErrRunNotFound is returned when no run matches an ID.
var ErrRunNotFound = errors.New("run not found")

// Store manages the ledger database.
type Store struct {
	db  *sql.DB
	dir string
}

// Run summarizes one recorded verification run.
type Run struct {
	ID           string        `json:"id" yaml:"id"`
	Bibliography string        `json:"bibliography" yaml:"bibliography"`
	StartedAt    time.Time     `json:"started_at" yaml:"started_at"`
	Elapsed      time.Duration `json:"elapsed" yaml:"elapsed"`
	Entries      int           `json:"entries" yaml:"entries"`
	Verified     int           `json:"verified" yaml:"verified"`
	Mismatch     int           `json:"mismatch" yaml:"mismatch"`
	NotFound     int           `json:"not_found" yaml:"not_found"`
	Unknown      int           `json:"unknown" yaml:"unknown"`
	Clusters     int           `json:"clusters" yaml:"clusters"`
	TimedOut     bool          `json:"timed_out" yaml:"timed_out"`
}

// Open opens or creates the ledger at cfg.Dir/ledger.db.
func Open(cfg types.LedgerConfig) (*Store, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, dbFile)+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, dir: dir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dir returns the ledger directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			bibliography TEXT,
			started_at TEXT NOT NULL,
			elapsed_ms INTEGER,
			entries INTEGER,
			verified INTEGER,
			mismatch INTEGER,
			not_found INTEGER,
			unknown INTEGER,
			clusters INTEGER,
			timed_out INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS verdicts (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			key TEXT NOT NULL,
			tier TEXT NOT NULL,
			score REAL,
			body TEXT NOT NULL,
			PRIMARY KEY (run_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_verdicts_key ON verdicts(key)`,
		`CREATE INDEX IF NOT EXISTS idx_verdicts_tier ON verdicts(tier)`,
		`CREATE TABLE IF NOT EXISTS clusters (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			keys TEXT NOT NULL,
			max_similarity REAL,
			PRIMARY KEY (run_id, position)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// RecordRun stores a report under a fresh run ID.
func (s *Store) RecordRun(ctx context.Context, bibliography string, started time.Time, report verify.Report) (Run, error) {
	run := Run{
		ID:           uuid.NewString(),
		Bibliography: bibliography,
		StartedAt:    started.UTC(),
		Elapsed:      report.Stats.Elapsed,
		Entries:      len(report.Verdicts),
		Clusters:     len(report.Clusters),
		TimedOut:     report.Stats.TimedOut,
	}
	for _, v := range report.Verdicts {
		switch v.Tier {
		case types.TierVerified:
			run.Verified++
		case types.TierMismatch:
			run.Mismatch++
		case types.TierNotFound:
			run.NotFound++
		default:
			run.Unknown++
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, bibliography, started_at, elapsed_ms, entries, verified, mismatch, not_found, unknown, clusters, timed_out)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Bibliography, run.StartedAt.Format(time.RFC3339Nano), run.Elapsed.Milliseconds(),
		run.Entries, run.Verified, run.Mismatch, run.NotFound, run.Unknown, run.Clusters, run.TimedOut,
	)
	if err != nil {
		return Run{}, fmt.Errorf("inserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO verdicts (run_id, position, key, tier, score, body) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return Run{}, fmt.Errorf("preparing verdict insert: %w", err)
	}
	defer stmt.Close()
	for i, v := range report.Verdicts {
		body, err := json.Marshal(v)
		if err != nil {
			return Run{}, fmt.Errorf("encoding verdict %s: %w", v.Key, err)
		}
		if _, err := stmt.ExecContext(ctx, run.ID, i, v.Key, string(v.Tier), v.Score, string(body)); err != nil {
			return Run{}, fmt.Errorf("inserting verdict %s: %w", v.Key, err)
		}
	}

	for i, c := range report.Clusters {
		keys, _ := json.Marshal(c.Keys)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO clusters (run_id, position, keys, max_similarity) VALUES (?, ?, ?, ?)`,
			run.ID, i, string(keys), c.MaxSimilarity)
		if err != nil {
			return Run{}, fmt.Errorf("inserting cluster: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("committing run: %w", err)
	}
	return run, nil
}

const runColumns = `id, bibliography, started_at, elapsed_ms, entries, verified, mismatch, not_found, unknown, clusters, timed_out`

// Runs lists recorded runs, newest first. limit <= 0 lists all.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT ` + runColumns + ` FROM runs ORDER BY seq DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run resolves id to a recorded run. An empty id or "latest" selects the
// newest run; otherwise id may be any unambiguous prefix.
func (s *Store) Run(ctx context.Context, id string) (Run, error) {
	var rows *sql.Rows
	var err error
	if id == "" || id == "latest" {
		rows, err = s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY seq DESC LIMIT 1`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+runColumns+` FROM runs WHERE id LIKE ? ORDER BY seq DESC LIMIT 2`,
			strings.NewReplacer("%", "", "_", "").Replace(id)+"%")
	}
	if err != nil {
		return Run{}, fmt.Errorf("querying run: %w", err)
	}
	defer rows.Close()

	var found []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return Run{}, err
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}
	switch len(found) {
	case 0:
		return Run{}, fmt.Errorf("%w: %q", ErrRunNotFound, id)
	case 1:
		return found[0], nil
	default:
		return Run{}, fmt.Errorf("run id %q is ambiguous", id)
	}
}

// Verdicts returns a run's verdicts in bibliography order.
func (s *Store) Verdicts(ctx context.Context, runID string) ([]types.Verdict, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM verdicts WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying verdicts: %w", err)
	}
	defer rows.Close()

	var out []types.Verdict
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scanning verdict: %w", err)
		}
		var v types.Verdict
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			return nil, fmt.Errorf("decoding verdict: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Clusters returns a run's duplicate clusters.
func (s *Store) Clusters(ctx context.Context, runID string) ([]types.DuplicateCluster, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT keys, max_similarity FROM clusters WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying clusters: %w", err)
	}
	defer rows.Close()

	var out []types.DuplicateCluster
	for rows.Next() {
		var keys string
		var c types.DuplicateCluster
		if err := rows.Scan(&keys, &c.MaxSimilarity); err != nil {
			return nil, fmt.Errorf("scanning cluster: %w", err)
		}
		if err := json.Unmarshal([]byte(keys), &c.Keys); err != nil {
			return nil, fmt.Errorf("decoding cluster keys: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanRun(rows *sql.Rows) (Run, error) {
	var (
		r       Run
		started string
		elapsed int64
	)
	err := rows.Scan(&r.ID, &r.Bibliography, &started, &elapsed,
		&r.Entries, &r.Verified, &r.Mismatch, &r.NotFound, &r.Unknown, &r.Clusters, &r.TimedOut)
	if err != nil {
		return Run{}, fmt.Errorf("scanning run: %w", err)
	}
	r.StartedAt, err = time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return Run{}, fmt.Errorf("parsing started_at: %w", err)
	}
	r.Elapsed = time.Duration(elapsed) * time.Millisecond
	return r, nil
}
