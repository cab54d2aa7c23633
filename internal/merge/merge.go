// Package merge combines snapshot files into one table keyed by posting id.
package merge

import (
	"context"
	"errors"
	"log/slog"
	"runtime"

	"jobharvest/internal/domain"

	"golang.org/x/sync/errgroup"
)

// Loader reads one snapshot file.
type Loader func(path string) ([]domain.PostingRecord, error)

// Table is the union of all loaded snapshots with duplicate ids removed.
type Table struct {
	Rows     []domain.PostingRecord
	Warnings []*domain.PersistenceError
	// Files counts snapshots that loaded; Dropped counts duplicate rows.
	Files   int
	Dropped int
}

type Options struct {
	// Workers bounds concurrent file loads. Zero means GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

// Merge loads paths concurrently, concatenates them in path order and keeps
// the first row seen for each id. Files that fail to load are skipped and
// reported as warnings. Only context cancellation returns an error.
func Merge(ctx context.Context, paths []string, load Loader, opts Options) (Table, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "merge")

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	loaded := make([][]domain.PostingRecord, len(paths))
	errs := make([]error, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			loaded[i], errs[i] = load(p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Table{}, err
	}

	var t Table
	seen := make(map[string]struct{})
	for i, rows := range loaded {
		if errs[i] != nil {
			var pe *domain.PersistenceError
			if !errors.As(errs[i], &pe) {
				pe = &domain.PersistenceError{Op: "load", Path: paths[i], Err: errs[i]}
			}
			log.Warn("snapshot skipped", "path", paths[i], "err", errs[i])
			t.Warnings = append(t.Warnings, pe)
			continue
		}
		t.Files++
		for _, r := range rows {
			if _, dup := seen[r.ID]; dup {
				t.Dropped++
				continue
			}
			seen[r.ID] = struct{}{}
			t.Rows = append(t.Rows, r)
		}
	}

	log.Info("merged", "files", t.Files, "rows", len(t.Rows), "duplicates", t.Dropped, "warnings", len(t.Warnings))
	return t, nil
}
