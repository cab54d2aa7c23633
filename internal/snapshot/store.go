// Package snapshot persists one scrape run's records as a CSV file and
// reads snapshots back.
package snapshot

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"jobharvest/internal/domain"
	"jobharvest/internal/scrape/util"

	"github.com/gofrs/flock"
)

const (
	ext      = ".csv"
	lockName = ".snapshots.lock"
)

type Store struct {
	Dir string
	Log *slog.Logger
}

func New(dir string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{Dir: dir, Log: log.With("component", "snapshot")}
}

// FileName names a snapshot after its search and size. Two runs of the same
// search with the same record count share a name and the later one wins.
func FileName(job, location string, count int) string {
	return fmt.Sprintf("%s_%s_%d%s", slugOr(job), slugOr(location), count, ext)
}

func slugOr(s string) string {
	if v := util.Slug(s); v != "" {
		return v
	}
	return "any"
}

// Save writes records to the snapshot named by (job, location, len(records)).
// Empty non-id fields are persisted as "na"; a record without id or with a
// carriage return in any field fails the whole save, since either would not
// load back as written.
func (s *Store) Save(records []domain.PostingRecord, job, location string) (string, error) {
	path := filepath.Join(s.Dir, FileName(job, location, len(records)))
	perr := func(err error) error {
		return &domain.PersistenceError{Op: "save", Path: path, Err: err}
	}

	for i, r := range records {
		if strings.TrimSpace(r.ID) == "" {
			return "", perr(fmt.Errorf("record %d: %w", i, domain.ErrNoIdentifier))
		}
		for j, v := range r.Row() {
			if strings.ContainsRune(v, '\r') {
				return "", perr(fmt.Errorf("record %s %s: %w", r.ID, domain.Columns[j], domain.ErrCarriageReturn))
			}
		}
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", perr(err)
	}

	lock := flock.New(filepath.Join(s.Dir, lockName))
	if err := lock.Lock(); err != nil {
		return "", perr(fmt.Errorf("lock: %w", err))
	}
	defer func() { _ = lock.Unlock() }()

	tmp := path + ".tmp"
	if err := writeCSV(tmp, domain.Columns, func(w *csv.Writer) error {
		for _, r := range records {
			if err := w.Write(r.WithDefaults().Row()); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = os.Remove(tmp)
		return "", perr(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", perr(err)
	}

	s.Log.Info("snapshot saved", "path", path, "records", len(records))
	return path, nil
}

// Load reads a snapshot back. The header may list columns in any order but
// must carry every record column.
func (s *Store) Load(path string) ([]domain.PostingRecord, error) {
	return Load(path)
}

func Load(path string) ([]domain.PostingRecord, error) {
	perr := func(err error) error {
		return &domain.PersistenceError{Op: "load", Path: path, Err: err}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, perr(err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, perr(errors.New("empty file"))
		}
		return nil, perr(err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, col := range domain.Columns {
		if _, ok := idx[col]; !ok {
			return nil, perr(fmt.Errorf("missing column %q", col))
		}
	}

	var out []domain.PostingRecord
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, perr(err)
		}
		if len(row) != len(header) {
			return nil, perr(fmt.Errorf("line %d: %d fields, want %d", line, len(row), len(header)))
		}
		rec := domain.RecordFromRow(idx, row)
		if rec.ID == "" {
			return nil, perr(fmt.Errorf("line %d: %w", line, domain.ErrNoIdentifier))
		}
		out = append(out, rec)
	}
	return out, nil
}

// List returns every snapshot file in the store, in file name order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &domain.PersistenceError{Op: "list", Path: s.Dir, Err: err}
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		out = append(out, filepath.Join(s.Dir, e.Name()))
	}
	return out, nil
}

// CountFromName returns the record count encoded in a snapshot file name.
func CountFromName(path string) (int, bool) {
	base := strings.TrimSuffix(filepath.Base(path), ext)
	i := strings.LastIndexByte(base, '_')
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(base[i+1:])
	return n, err == nil
}

func writeCSV(path string, header []string, rows func(*csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := rows(w); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
