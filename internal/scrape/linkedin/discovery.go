package linkedin

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"jobharvest/internal/domain"
	"jobharvest/internal/scrape/types"
	"jobharvest/internal/scrape/util"

	"github.com/PuerkitoBio/goquery"
)

type DiscoveryConfig struct {
	// Delay is the pause between one listing page returning and the next request.
	Delay time.Duration
	// MaxPages lowers the site bound; zero or larger than MaxPages means MaxPages.
	MaxPages int
	Logger   *slog.Logger
}

// Discovery paginates a search listing and collects distinct posting urls.
type Discovery struct {
	browser  types.Browser
	pacer    *util.Pacer
	maxPages int
	log      *slog.Logger
}

// Discovered is the outcome of one pagination pass. Len(URLs) is a lower
// bound on what the listing holds, not a completeness guarantee.
type Discovered struct {
	URLs    []string
	Skipped []*domain.PaginationError
	// Yields holds the raw number of posting anchors seen per visited page.
	Yields []int
}

func NewDiscovery(b types.Browser, cfg DiscoveryConfig) *Discovery {
	maxPages := cfg.MaxPages
	if maxPages <= 0 || maxPages > MaxPages {
		maxPages = MaxPages
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Discovery{
		browser:  b,
		pacer:    util.NewPacer(cfg.Delay),
		maxPages: maxPages,
		log:      log.With("component", "discovery"),
	}
}

// ClampPages bounds a requested page count to [1, maxPages].
func (d *Discovery) ClampPages(n int) int {
	if n < 1 {
		return 1
	}
	if n > d.maxPages {
		return d.maxPages
	}
	return n
}

// Discover walks listing pages 0..nPages-1. A page that fails or yields
// nothing is skipped. On cancellation the urls collected so far are
// returned together with the context error.
func (d *Discovery) Discover(ctx context.Context, query, location string, nPages int) (Discovered, error) {
	n := d.ClampPages(nPages)
	seen := make(map[string]struct{})
	var out Discovered

	for page := 0; page < n; page++ {
		if err := d.pacer.Wait(ctx); err != nil {
			out.URLs = sortedKeys(seen)
			return out, err
		}

		d.log.Info("scraping listing page", "page", page+1, "of", n, "query", query, "location", location)
		html, err := d.browser.RenderListingPage(ctx, query, location, page)
		d.pacer.Done()
		if err != nil {
			if ctx.Err() != nil {
				out.URLs = sortedKeys(seen)
				return out, ctx.Err()
			}
			d.skip(&out, page, err)
			continue
		}

		urls, err := ParseListing(html)
		if err != nil {
			d.skip(&out, page, err)
			continue
		}
		if len(urls) == 0 {
			d.skip(&out, page, domain.ErrEmptyPage)
			continue
		}

		out.Yields = append(out.Yields, len(urls))
		for _, u := range urls {
			seen[u] = struct{}{}
		}
	}

	out.URLs = sortedKeys(seen)
	d.log.Info("discovery done",
		"query", query, "location", location,
		"found", len(out.URLs), "skipped_pages", len(out.Skipped))
	return out, nil
}

func (d *Discovery) skip(out *Discovered, page int, err error) {
	pe := &domain.PaginationError{Page: page, Err: err}
	out.Skipped = append(out.Skipped, pe)
	d.log.Warn("listing page skipped", "page", page+1, "err", err)
}

// ParseListing returns the canonical posting urls anchored on a listing
// page, in document order, possibly with repeats.
func ParseListing(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var urls []string
	doc.Find(selListingLink).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		u := util.CanonicalizeURL(href, BaseURL)
		if u == "" || !util.IsPostingURL(u) || util.PostingID(u) == "" {
			return
		}
		urls = append(urls, u)
	})
	return urls, nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
