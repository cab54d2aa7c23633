// Package analyze turns the snapshot directory into the final normalized
// table.
package analyze

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"jobharvest/internal/domain"
	"jobharvest/internal/merge"
	"jobharvest/internal/normalize"
	"jobharvest/internal/snapshot"
	"jobharvest/internal/store"
)

type Builder struct {
	Snapshots *snapshot.Store
	Pipeline  *normalize.Pipeline
	// OutputCSV is where the final table is written; empty skips the file.
	OutputCSV string
	// DB receives a copy of the final table when set.
	DB           *sql.DB
	MergeWorkers int
	Logger       *slog.Logger
}

type RowFailure struct {
	ID    string `json:"id"`
	Step  string `json:"step"`
	Error string `json:"error"`
}

type Report struct {
	Files      int          `json:"files"`
	Merged     int          `json:"merged"`
	Duplicates int          `json:"duplicates"`
	Rows       int          `json:"rows"`
	Failures   []RowFailure `json:"failures"`
	Warnings   []string     `json:"warnings"`
	Output     string       `json:"output"`
	Took       string       `json:"took"`
}

// Build merges every snapshot, normalizes the result and writes it out.
// Unreadable snapshots and rows that fail normalization are reported, not
// fatal.
func (b *Builder) Build(ctx context.Context) (Report, error) {
	log := b.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "build")
	start := time.Now()
	rep := Report{Failures: []RowFailure{}, Warnings: []string{}}

	paths, err := b.Snapshots.List()
	if err != nil {
		return rep, err
	}

	tbl, err := merge.Merge(ctx, paths, snapshot.Load, merge.Options{Workers: b.MergeWorkers, Logger: log})
	if err != nil {
		return rep, err
	}
	rep.Files = tbl.Files
	rep.Merged = len(tbl.Rows)
	rep.Duplicates = tbl.Dropped
	for _, w := range tbl.Warnings {
		rep.Warnings = append(rep.Warnings, w.Error())
	}

	res, err := b.Pipeline.Run(ctx, tbl.Rows)
	if err != nil {
		return rep, err
	}
	rep.Rows = len(res.Rows)
	for _, f := range res.Failures {
		rep.Failures = append(rep.Failures, RowFailure{ID: f.ID, Step: f.Step, Error: f.Err.Error()})
	}

	if b.OutputCSV != "" {
		if err := snapshot.WriteNormalized(b.OutputCSV, res.Rows); err != nil {
			return rep, err
		}
		rep.Output = b.OutputCSV
	}
	if b.DB != nil {
		if _, err := store.ReplacePostings(ctx, b.DB, res.Rows); err != nil {
			return rep, &domain.PersistenceError{Op: "replace postings", Path: "postings", Err: err}
		}
	}

	rep.Took = time.Since(start).Round(time.Millisecond).String()
	log.Info("dataset built",
		"files", rep.Files,
		"merged", rep.Merged,
		"rows", rep.Rows,
		"failed", len(rep.Failures),
		"warnings", len(rep.Warnings),
		"output", rep.Output,
	)
	return rep, nil
}

func (r Report) String() string {
	return fmt.Sprintf("files=%d merged=%d duplicates=%d rows=%d failed=%d warnings=%d",
		r.Files, r.Merged, r.Duplicates, r.Rows, len(r.Failures), len(r.Warnings))
}
