package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"jobharvest/internal/domain"

	_ "modernc.org/sqlite"
)

type DB struct {
	Pool *sql.DB
	Path string
}

// Open opens (creating if needed) the ledger database at path and applies
// migrations. WAL lets the API read postings while a run writes its ledger
// row.
func Open(path string) (*DB, error) {
	perr := func(op string, err error) error {
		return &domain.PersistenceError{Op: op, Path: path, Err: err}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, perr("open db", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	pool, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, perr("open db", err)
	}
	// one writer; runs and API requests queue on it
	pool.SetMaxOpenConns(1)
	pool.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, perr("open db", err)
	}
	if err := Migrate(pool); err != nil {
		_ = pool.Close()
		return nil, perr("migrate", err)
	}
	return &DB{Pool: pool, Path: path}, nil
}

func (d *DB) Close() error {
	if d == nil || d.Pool == nil {
		return nil
	}
	return d.Pool.Close()
}

// Summary is what the ledger holds at a glance.
type Summary struct {
	Runs      int    `json:"runs"`
	Postings  int    `json:"postings"`
	LastRunAt string `json:"last_run_at,omitempty"`
}

func Summarize(ctx context.Context, db *sql.DB) (Summary, error) {
	var s Summary
	var last sql.NullString
	err := db.QueryRowContext(ctx, `
SELECT (SELECT COUNT(*) FROM runs),
       (SELECT COUNT(*) FROM postings),
       (SELECT MAX(started_at) FROM runs);`).Scan(&s.Runs, &s.Postings, &last)
	if err != nil {
		return s, err
	}
	s.LastRunAt = last.String
	return s, nil
}
