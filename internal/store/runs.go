package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jobharvest/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Run is one scrape run as recorded in the ledger.
type Run struct {
	ID           string    `json:"id"`
	Job          string    `json:"job"`
	Location     string    `json:"location"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Discovered   int       `json:"discovered"`
	Records      int       `json:"records"`
	Failures     int       `json:"failures"`
	SkippedPages int       `json:"skipped_pages"`
	Snapshot     string    `json:"snapshot"`
	Error        string    `json:"error,omitempty"`
}

// InsertRun records a finished run together with its failures.
func InsertRun(ctx context.Context, db *sql.DB, r Run, failures []domain.ScrapeFailure) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO runs (id, job, location, started_at, finished_at, discovered, records, failures, skipped_pages, snapshot, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		r.ID, r.Job, r.Location,
		r.StartedAt.UTC().Format(time.RFC3339), r.FinishedAt.UTC().Format(time.RFC3339),
		r.Discovered, r.Records, r.Failures, r.SkippedPages, r.Snapshot, r.Error,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO failures (run_id, identifier, reason) VALUES (?, ?, ?);`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, f := range failures {
		if _, err := stmt.ExecContext(ctx, r.ID, f.Identifier, f.Reason); err != nil {
			return fmt.Errorf("insert failure: %w", err)
		}
	}
	return tx.Commit()
}

// ListRuns returns the most recent runs first.
func ListRuns(ctx context.Context, db *sql.DB, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
SELECT id, job, location, started_at, finished_at, discovered, records, failures, skipped_pages, snapshot, error
FROM runs
ORDER BY started_at DESC, id
LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Job, &r.Location, &started, &finished,
			&r.Discovered, &r.Records, &r.Failures, &r.SkippedPages, &r.Snapshot, &r.Error); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListFailures returns a run's failures in insertion order, or ErrNotFound
// when the run does not exist.
func ListFailures(ctx context.Context, db *sql.DB, runID string) ([]domain.ScrapeFailure, error) {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?;`, runID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
SELECT identifier, reason
FROM failures
WHERE run_id = ?
ORDER BY rowid;`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ScrapeFailure{}
	for rows.Next() {
		var f domain.ScrapeFailure
		if err := rows.Scan(&f.Identifier, &f.Reason); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
