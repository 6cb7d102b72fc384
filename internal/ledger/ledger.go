// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger records fetch runs and their per-subject outcomes in a
// SQLite database and exports them as YAML or JSON.
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

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/paperfetch/pkg/types"
)

// DefaultLimit caps Recent when no limit is given.
const DefaultLimit = 20

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store manages the ledger database.
type Store struct {
	db   *sql.DB
	path string
}

// Entry is one subject result together with the run it belongs to.
type Entry struct {
	RunID               string `json:"run_id" yaml:"run_id"`
	types.SubjectResult `yaml:",inline"`
}

// QueryOptions filters Recent.
type QueryOptions struct {
	// Limit caps the number of entries; zero means DefaultLimit.
	Limit int

	// Code restricts entries to one subject code, ignoring case.
	Code string
}

// Open opens or creates the ledger database at path, creating parent
// directories and the schema as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			subjects INTEGER NOT NULL,
			merged INTEGER NOT NULL,
			failed INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS subject_results (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			code TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			state TEXT,
			failure TEXT,
			error TEXT,
			links_found INTEGER,
			downloaded INTEGER,
			downloads_failed INTEGER,
			merged_path TEXT,
			merged_pages INTEGER,
			skipped TEXT,
			started_at TEXT,
			finished_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_run_id ON subject_results(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_results_code ON subject_results(code)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record stores a run summary. Recording the same run ID again replaces
// the earlier record.
func (s *Store) Record(ctx context.Context, summary types.RunSummary) error {
	if summary.RunID == "" {
		return errors.New("recording run: empty run ID")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, summary.RunID); err != nil {
		return fmt.Errorf("clearing run %s: %w", summary.RunID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, subjects, merged, failed) VALUES (?, ?, ?, ?, ?, ?)`,
		summary.RunID, formatTime(summary.StartedAt), formatTime(summary.FinishedAt),
		len(summary.Results), summary.Succeeded(), summary.Failed(),
	); err != nil {
		return fmt.Errorf("inserting run %s: %w", summary.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO subject_results (
		run_id, code, name, status, state, failure, error,
		links_found, downloaded, downloads_failed,
		merged_path, merged_pages, skipped, started_at, finished_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range summary.Results {
		skipped, err := json.Marshal(r.Skipped)
		if err != nil {
			return fmt.Errorf("encoding skipped files: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			summary.RunID, r.Subject.Code, r.Subject.Name, string(r.Status), r.State,
			string(r.Failure), r.Error,
			r.LinksFound, r.Downloaded, r.DownloadsFailed,
			r.MergedPath, r.MergedPages, string(skipped),
			formatTime(r.StartedAt), formatTime(r.FinishedAt),
		); err != nil {
			return fmt.Errorf("inserting result for %s: %w", r.Subject.Code, err)
		}
	}
	return tx.Commit()
}

// Recent returns the most recent subject results, newest first.
func (s *Store) Recent(ctx context.Context, opts QueryOptions) ([]Entry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	var where string
	args := []any{}
	if opts.Code != "" {
		where = `WHERE code = ? COLLATE NOCASE`
		args = append(args, strings.TrimSpace(opts.Code))
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `SELECT `+resultColumns+` FROM subject_results `+where+`
		ORDER BY started_at DESC, rowid DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Runs returns every recorded run with its results, oldest first.
func (s *Store) Runs(ctx context.Context) ([]types.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, started_at, finished_at FROM runs ORDER BY started_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	var runs []types.RunSummary
	for rows.Next() {
		var id, started string
		var finished sql.NullString
		if err := rows.Scan(&id, &started, &finished); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, types.RunSummary{
			RunID:      id,
			StartedAt:  parseTime(started),
			FinishedAt: parseTime(finished.String),
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		rs, err := s.db.QueryContext(ctx, `SELECT `+resultColumns+` FROM subject_results
			WHERE run_id = ? ORDER BY rowid`, runs[i].RunID)
		if err != nil {
			return nil, fmt.Errorf("querying results for run %s: %w", runs[i].RunID, err)
		}
		entries, err := scanEntries(rs)
		rs.Close()
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			runs[i].Results = append(runs[i].Results, e.SubjectResult)
		}
	}
	return runs, nil
}

const resultColumns = `run_id, code, name, status, state, failure, error,
	links_found, downloaded, downloads_failed,
	merged_path, merged_pages, skipped, started_at, finished_at`

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var status, failure string
		var state, errText, mergedPath, skipped, started, finished sql.NullString
		if err := rows.Scan(&e.RunID, &e.Subject.Code, &e.Subject.Name, &status, &state,
			&failure, &errText, &e.LinksFound, &e.Downloaded, &e.DownloadsFailed,
			&mergedPath, &e.MergedPages, &skipped, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		e.Status = types.SubjectStatus(status)
		e.State = state.String
		e.Failure = types.FailureKind(failure)
		e.Error = errText.String
		e.MergedPath = mergedPath.String
		e.StartedAt = parseTime(started.String)
		e.FinishedAt = parseTime(finished.String)
		if skipped.String != "" {
			if err := json.Unmarshal([]byte(skipped.String), &e.Skipped); err != nil {
				return nil, fmt.Errorf("decoding skipped files: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
