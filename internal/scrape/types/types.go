package types

import (
	"context"

	"jobharvest/internal/domain"
)

// Browser is the page-fetching capability a run depends on. Implementations
// return raw markup; errors worth retrying wrap domain.ErrTransient.
type Browser interface {
	RenderListingPage(ctx context.Context, query, location string, page int) (string, error)
	FetchPage(ctx context.Context, url string) (string, error)
}

// Session is a Browser bound to one exclusively owned browsing session.
type Session interface {
	Browser
	Close() error
}

// Extractor turns one posting url into a record.
type Extractor interface {
	Extract(ctx context.Context, url string) (domain.PostingRecord, error)
}

// ListingURLFunc builds the listing (search results) url for a page index.
type ListingURLFunc func(query, location string, page int) string

type ScrapeStatus struct {
	LastRunAt   string `json:"last_run_at"`
	LastOkAt    string `json:"last_ok_at"`
	LastError   string `json:"last_error"`
	LastRecords int    `json:"last_records"`
	LastFailed  int    `json:"last_failed"`
	Running     bool   `json:"running"`
}
