package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/models"
	_ "modernc.org/sqlite"
)

// timeLayout sorts lexically in chronological order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		run_id      TEXT PRIMARY KEY,
		mode        TEXT NOT NULL,
		criteria    TEXT NOT NULL,
		query       TEXT NOT NULL DEFAULT '',
		dry_run     INTEGER NOT NULL DEFAULT 0,
		evaluator   TEXT NOT NULL DEFAULT '',
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		scanned     INTEGER NOT NULL DEFAULT 0,
		labeled     INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS outcomes (
		run_id           TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		message_id       TEXT NOT NULL,
		subject          TEXT NOT NULL DEFAULT '',
		sender           TEXT NOT NULL DEFAULT '',
		pdf_filename     TEXT NOT NULL DEFAULT '',
		label            TEXT NOT NULL DEFAULT '',
		qualified        INTEGER NOT NULL DEFAULT 0,
		match_percentage REAL NOT NULL DEFAULT 0,
		skipped          TEXT NOT NULL DEFAULT '',
		error            TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outcomes_message ON outcomes(message_id)`,
}

// Run is one row of the runs table
type Run struct {
	RunID      string
	Mode       string
	Criteria   string
	Query      string
	DryRun     bool
	Evaluator  string
	StartedAt  time.Time
	FinishedAt time.Time
	Scanned    int
	Labeled    int
}

// Store records scan runs in a SQLite database
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the history database at path
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate history database: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun stores a finished scan and all of its outcomes
func (s *Store) RecordRun(ctx context.Context, report models.ScanReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, mode, criteria, query, dry_run, evaluator, started_at, finished_at, scanned, labeled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, report.RunID, report.Mode, report.Criteria, report.Query, report.DryRun, report.Evaluator,
		report.StartedAt.UTC().Format(timeLayout), report.FinishedAt.UTC().Format(timeLayout),
		report.Scanned, report.Labeled)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO outcomes (run_id, message_id, subject, sender, pdf_filename, label, qualified, match_percentage, skipped, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range report.Outcomes {
		if _, err := stmt.ExecContext(ctx, report.RunID, o.MessageID, o.Subject, o.From, o.PDFFilename,
			o.Label, o.Qualified, o.MatchPercentage, o.Skipped, o.Error); err != nil {
			return fmt.Errorf("failed to record outcome for %s: %w", o.MessageID, err)
		}
	}

	return tx.Commit()
}

// RecentRuns returns up to limit runs, newest first
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, mode, criteria, query, dry_run, evaluator, started_at, finished_at, scanned, labeled
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
		)
		if err := rows.Scan(&r.RunID, &r.Mode, &r.Criteria, &r.Query, &r.DryRun, &r.Evaluator,
			&started, &finished, &r.Scanned, &r.Labeled); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeLayout, started)
		r.FinishedAt, _ = time.Parse(timeLayout, finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Processed reports whether a message was already evaluated for the same criteria
// by a run that modified the mailbox. Skipped, failed and dry-run outcomes do not count.
func (s *Store) Processed(ctx context.Context, messageID, criteria string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1)
		FROM outcomes o
		JOIN runs r ON r.run_id = o.run_id
		WHERE o.message_id = ? AND r.criteria = ? AND r.dry_run = 0
		  AND o.skipped = '' AND o.error = ''
	`, messageID, criteria).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query history: %w", err)
	}
	return count > 0, nil
}
