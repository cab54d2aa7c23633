package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"jobharvest/internal/domain"
)

// ReplacePostings swaps the whole postings table for rows in one
// transaction.
func ReplacePostings(ctx context.Context, db *sql.DB, rows []domain.NormalizedRecord) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM postings;`); err != nil {
		return 0, fmt.Errorf("clear postings: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO postings (id, title, company, place, posted_since, level, job_type, job_category, industry, description,
                      clean_title, country, city, lang, posted_date)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, r := range rows {
		args := make([]any, 0, len(domain.NormalizedColumns))
		for _, v := range r.Row() {
			args = append(args, v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("insert posting %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// PostingFilter holds exact-match filters; empty fields match everything.
type PostingFilter struct {
	CleanTitle string
	Country    string
	Level      string
	JobType    string
	City       string
	Limit      int
}

func ListPostings(ctx context.Context, db *sql.DB, f PostingFilter) ([]domain.NormalizedRecord, error) {
	if f.Limit <= 0 || f.Limit > 5000 {
		f.Limit = 500
	}

	var where []string
	var args []any
	add := func(col, v string) {
		if v = strings.TrimSpace(v); v != "" {
			where = append(where, col+" = ? COLLATE NOCASE")
			args = append(args, v)
		}
	}
	add("clean_title", f.CleanTitle)
	add("country", f.Country)
	add("level", f.Level)
	add("job_type", f.JobType)
	add("city", f.City)

	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM postings
%s
ORDER BY rowid
LIMIT ?;`, strings.Join(domain.NormalizedColumns, ", "), clause)
	args = append(args, f.Limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.NormalizedRecord{}
	for rows.Next() {
		var n domain.NormalizedRecord
		if err := rows.Scan(
			&n.ID, &n.Title, &n.Company, &n.Place, &n.PostedSince,
			&n.Level, &n.JobType, &n.JobCategory, &n.Industry, &n.Description,
			&n.CleanTitle, &n.Country, &n.City, &n.Lang, &n.PostedDate,
		); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

type TitleCount struct {
	CleanTitle string `json:"clean_title"`
	Country    string `json:"country"`
	Count      int    `json:"count"`
}

// CountByTitleCountry is the title x country histogram of the postings
// table.
func CountByTitleCountry(ctx context.Context, db *sql.DB) ([]TitleCount, error) {
	rows, err := db.QueryContext(ctx, `
SELECT clean_title, country, COUNT(*)
FROM postings
GROUP BY clean_title, country
ORDER BY COUNT(*) DESC, clean_title, country;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []TitleCount{}
	for rows.Next() {
		var c TitleCount
		if err := rows.Scan(&c.CleanTitle, &c.Country, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
