package domain

import "strings"

// NA is written for every field a posting did not publish.
const NA = "na"

// Columns is the on-disk column order for posting records.
var Columns = []string{
	"id",
	"title",
	"company",
	"place",
	"posted_since",
	"level",
	"job_type",
	"job_category",
	"industry",
	"description",
}

// NormalizedColumns extends Columns with the derived analysis fields.
var NormalizedColumns = append(append([]string{}, Columns...),
	"clean_title",
	"country",
	"city",
	"lang",
	"posted_date",
)

type PostingRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Place       string `json:"place"`
	PostedSince string `json:"posted_since"`
	Level       string `json:"level"`
	JobType     string `json:"job_type"`
	JobCategory string `json:"job_category"`
	Industry    string `json:"industry"`
	Description string `json:"description"`
}

// WithDefaults returns a copy where every empty non-id field holds NA and
// line endings are plain "\n".
func (r PostingRecord) WithDefaults() PostingRecord {
	def := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return NA
		}
		return UnixNewlines(s)
	}
	r.Title = def(r.Title)
	r.Company = def(r.Company)
	r.Place = def(r.Place)
	r.PostedSince = def(r.PostedSince)
	r.Level = def(r.Level)
	r.JobType = def(r.JobType)
	r.JobCategory = def(r.JobCategory)
	r.Industry = def(r.Industry)
	r.Description = def(r.Description)
	return r
}

// UnixNewlines rewrites "\r\n" and lone "\r" as "\n". CSV readers fold a CR
// before LF inside quoted fields, so stored text must not carry one.
func UnixNewlines(s string) string {
	if !strings.ContainsRune(s, '\r') {
		return s
	}
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
}

// Row returns the record's fields in Columns order.
func (r PostingRecord) Row() []string {
	return []string{
		r.ID,
		r.Title,
		r.Company,
		r.Place,
		r.PostedSince,
		r.Level,
		r.JobType,
		r.JobCategory,
		r.Industry,
		r.Description,
	}
}

// RecordFromRow builds a record from a CSV row using a column index
// (column name -> position). Missing columns are left empty.
func RecordFromRow(idx map[string]int, row []string) PostingRecord {
	get := func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
	return PostingRecord{
		ID:          get("id"),
		Title:       get("title"),
		Company:     get("company"),
		Place:       get("place"),
		PostedSince: get("posted_since"),
		Level:       get("level"),
		JobType:     get("job_type"),
		JobCategory: get("job_category"),
		Industry:    get("industry"),
		Description: get("description"),
	}
}

type ScrapeFailure struct {
	Identifier string `json:"identifier"`
	Reason     string `json:"reason"`
}

// NormalizedRecord is a merged posting plus derived categorical fields.
// The embedded PostingRecord is kept untouched for audit.
type NormalizedRecord struct {
	PostingRecord
	CleanTitle string `json:"clean_title"`
	Country    string `json:"country"`
	City       string `json:"city"`
	Lang       string `json:"lang"`
	PostedDate string `json:"posted_date"`
}

// Row returns the fields in NormalizedColumns order.
func (n NormalizedRecord) Row() []string {
	return append(n.PostingRecord.Row(), n.CleanTitle, n.Country, n.City, n.Lang, n.PostedDate)
}
