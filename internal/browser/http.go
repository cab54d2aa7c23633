// Package browser provides the page-fetching capabilities a scrape run uses:
// a guest HTTP fetcher and an authenticated headless Chrome session.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"jobharvest/internal/domain"
	"jobharvest/internal/scrape/types"

	"github.com/gocolly/colly/v2"
)

type HTTPConfig struct {
	UserAgent  string
	Timeout    time.Duration
	ListingURL types.ListingURLFunc
	Logger     *slog.Logger
}

// HTTPFetcher fetches pages without a browser or login. It holds no session
// state and is safe for concurrent use.
type HTTPFetcher struct {
	base       *colly.Collector
	listingURL types.ListingURLFunc
	log        *slog.Logger
}

func NewHTTPFetcher(cfg HTTPConfig) *HTTPFetcher {
	c := colly.NewCollector(colly.AllowURLRevisit())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.Timeout > 0 {
		c.SetRequestTimeout(cfg.Timeout)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &HTTPFetcher{
		base:       c,
		listingURL: cfg.ListingURL,
		log:        log.With("component", "http-fetcher"),
	}
}

func (f *HTTPFetcher) RenderListingPage(ctx context.Context, query, location string, page int) (string, error) {
	if f.listingURL == nil {
		return "", fmt.Errorf("http fetcher: no listing url builder")
	}
	return f.FetchPage(ctx, f.listingURL(query, location, page))
}

// FetchPage GETs url and returns the body. Rate limiting, server errors and
// network failures are marked transient.
func (f *HTTPFetcher) FetchPage(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := f.base.Clone()
	var (
		body   []byte
		status int
	)
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	err := c.Visit(url)
	if cerr := ctx.Err(); cerr != nil {
		return "", cerr
	}
	if err != nil {
		f.log.Debug("fetch failed", "url", url, "status", status, "err", err)
		return "", classify(url, status, err)
	}
	if len(body) == 0 {
		return "", fmt.Errorf("fetch %s: %w", url, domain.ErrEmptyPage)
	}
	return string(body), nil
}

func classify(url string, status int, err error) error {
	e := fmt.Errorf("fetch %s: status %d: %w", url, status, err)
	switch {
	case status == 0, status == http.StatusTooManyRequests, status >= 500:
		return domain.Transient(e)
	default:
		return e
	}
}
