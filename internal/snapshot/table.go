package snapshot

import (
	"encoding/csv"
	"os"
	"path/filepath"

	"jobharvest/internal/domain"
)

// WriteNormalized writes the final analysis table as a flat CSV file,
// replacing any previous one atomically.
func WriteNormalized(path string, rows []domain.NormalizedRecord) error {
	perr := func(err error) error {
		return &domain.PersistenceError{Op: "write", Path: path, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return perr(err)
	}
	tmp := path + ".tmp"
	err := writeCSV(tmp, domain.NormalizedColumns, func(w *csv.Writer) error {
		for _, r := range rows {
			if err := w.Write(r.Row()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = os.Remove(tmp)
		return perr(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return perr(err)
	}
	return nil
}
