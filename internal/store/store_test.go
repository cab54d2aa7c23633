package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"jobharvest/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := openTest(t)
	require.NoError(t, Migrate(db.Pool))

	var v int
	require.NoError(t, db.Pool.QueryRow(`PRAGMA user_version;`).Scan(&v))
	assert.Equal(t, schemaVersion, v)
}

func TestOpenCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, path, db.Path)

	var mode string
	require.NoError(t, db.Pool.QueryRow(`PRAGMA journal_mode;`).Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestOpenFailureIsPersistenceError(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := Open(filepath.Join(file, "ledger.db"))
	var pe *domain.PersistenceError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, "open db", pe.Op)
}

func TestSummarize(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	s, err := Summarize(ctx, db.Pool)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, s)

	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, InsertRun(ctx, db.Pool, Run{ID: "a", Job: "j", Location: "l", StartedAt: t0, FinishedAt: t0}, nil))
	require.NoError(t, InsertRun(ctx, db.Pool, Run{ID: "b", Job: "j", Location: "l", StartedAt: t0.Add(time.Hour), FinishedAt: t0}, nil))

	s, err = Summarize(ctx, db.Pool)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Runs)
	assert.Equal(t, 0, s.Postings)
	assert.Equal(t, "2026-10-01T10:00:00Z", s.LastRunAt)
}

func TestRunsAndFailures(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	older := Run{ID: "r1", Job: "data engineer", Location: "Ireland", StartedAt: t0, FinishedAt: t0.Add(time.Minute), Records: 2}
	newer := Run{ID: "r2", Job: "analyst", Location: "Netherlands", StartedAt: t0.Add(time.Hour), FinishedAt: t0.Add(2 * time.Hour),
		Discovered: 5, Records: 3, Failures: 2, SkippedPages: 1, Snapshot: "/snap/a.csv"}

	require.NoError(t, InsertRun(ctx, db.Pool, older, nil))
	require.NoError(t, InsertRun(ctx, db.Pool, newer, []domain.ScrapeFailure{
		{Identifier: "9", Reason: "title: missing element"},
		{Identifier: "7", Reason: "timeout"},
	}))

	runs, err := ListRuns(ctx, db.Pool, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID)
	assert.Equal(t, newer.StartedAt, runs[0].StartedAt)
	assert.Equal(t, 1, runs[0].SkippedPages)
	assert.Equal(t, "/snap/a.csv", runs[0].Snapshot)

	fails, err := ListFailures(ctx, db.Pool, "r2")
	require.NoError(t, err)
	assert.Equal(t, []domain.ScrapeFailure{
		{Identifier: "9", Reason: "title: missing element"},
		{Identifier: "7", Reason: "timeout"},
	}, fails)

	fails, err = ListFailures(ctx, db.Pool, "r1")
	require.NoError(t, err)
	assert.Empty(t, fails)

	_, err = ListFailures(ctx, db.Pool, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	// duplicate run id rolls back
	err = InsertRun(ctx, db.Pool, older, []domain.ScrapeFailure{{Identifier: "x", Reason: "y"}})
	assert.Error(t, err)
	fails, err = ListFailures(ctx, db.Pool, "r1")
	require.NoError(t, err)
	assert.Empty(t, fails)
}

func norm(id, title, country, city, level string) domain.NormalizedRecord {
	return domain.NormalizedRecord{
		PostingRecord: domain.PostingRecord{
			ID: id, Title: title, Company: "c", Place: city + ", x", PostedSince: "1 day ago",
			Level: level, JobType: "Full-time", JobCategory: "na", Industry: "na", Description: "d",
		},
		CleanTitle: title, Country: country, City: city, Lang: "en", PostedDate: "2026-10-13",
	}
}

func TestPostings(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	rows := []domain.NormalizedRecord{
		norm("1", "data engineer", "NL", "Amsterdam", "Entry level"),
		norm("2", "data engineer", "NL", "Utrecht", "Mid-Senior level"),
		norm("3", "data engineer", "IR", "Dublin", "Entry level"),
		norm("4", "analyst", "NL", "Amsterdam", "Entry level"),
	}
	n, err := ReplacePostings(ctx, db.Pool, rows)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	all, err := ListPostings(ctx, db.Pool, PostingFilter{})
	require.NoError(t, err)
	assert.Equal(t, rows, all)

	got, err := ListPostings(ctx, db.Pool, PostingFilter{CleanTitle: "Data Engineer", Country: "nl"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)

	got, err = ListPostings(ctx, db.Pool, PostingFilter{Level: "Entry level", City: "Amsterdam", Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)

	stats, err := CountByTitleCountry(ctx, db.Pool)
	require.NoError(t, err)
	assert.Equal(t, []TitleCount{
		{CleanTitle: "data engineer", Country: "NL", Count: 2},
		{CleanTitle: "analyst", Country: "NL", Count: 1},
		{CleanTitle: "data engineer", Country: "IR", Count: 1},
	}, stats)

	// replace is wholesale
	_, err = ReplacePostings(ctx, db.Pool, rows[3:])
	require.NoError(t, err)
	all, err = ListPostings(ctx, db.Pool, PostingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "4", all[0].ID)
}

func TestReplacePostingsDuplicateRollsBack(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()

	_, err := ReplacePostings(ctx, db.Pool, []domain.NormalizedRecord{norm("1", "a", "NL", "x", "l")})
	require.NoError(t, err)

	_, err = ReplacePostings(ctx, db.Pool, []domain.NormalizedRecord{
		norm("2", "a", "NL", "x", "l"),
		norm("2", "a", "NL", "x", "l"),
	})
	require.Error(t, err)

	all, err := ListPostings(ctx, db.Pool, PostingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "1", all[0].ID)
}
