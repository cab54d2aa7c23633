package linkedin

import (
	"context"
	"fmt"
	"strings"

	"jobharvest/internal/domain"
	"jobharvest/internal/scrape/types"
	"jobharvest/internal/scrape/util"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// Parser turns posting page markup into a PostingRecord. Safe for
// concurrent use.
type Parser struct {
	md     *converter.Converter
	policy *bluemonday.Policy
}

func NewParser() *Parser {
	return &Parser{
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

// Extractor fetches a posting page through a Browser and parses it. It
// never retries; that is the batch runner's call.
type Extractor struct {
	browser types.Browser
	parser  *Parser
}

func NewExtractor(b types.Browser) *Extractor {
	return &Extractor{browser: b, parser: NewParser()}
}

func (e *Extractor) Extract(ctx context.Context, rawURL string) (domain.PostingRecord, error) {
	u := util.CanonicalizeURL(rawURL, BaseURL)
	html, err := e.browser.FetchPage(ctx, u)
	if err != nil {
		return domain.PostingRecord{}, fmt.Errorf("fetch %s: %w", u, err)
	}
	return e.parser.Parse(u, html)
}

// Parse extracts every field of a posting. Any missing element fails the
// whole posting with an ExtractionError.
func (p *Parser) Parse(rawURL, html string) (domain.PostingRecord, error) {
	id := util.PostingID(util.CanonicalizeURL(rawURL, BaseURL))
	if id == "" {
		return domain.PostingRecord{}, &domain.ExtractionError{Identifier: rawURL, Field: "id", Err: domain.ErrNoIdentifier}
	}
	missing := func(field string) error {
		return &domain.ExtractionError{Identifier: id, Field: field, Err: domain.ErrMissingElement}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return domain.PostingRecord{}, &domain.ExtractionError{Identifier: id, Err: err}
	}

	rec := domain.PostingRecord{ID: id}

	rec.Title = util.CleanText(doc.Find(selTitle).First().Text())
	if rec.Title == "" {
		return domain.PostingRecord{}, missing("title")
	}

	company, ok := doc.Find(selCompanyImage).First().Attr("alt")
	company = util.CleanText(company)
	if !ok || company == "" {
		return domain.PostingRecord{}, missing("company")
	}
	rec.Company = company

	place, ok := carvePlace(util.CleanText(doc.Find("title").First().Text()))
	if !ok {
		return domain.PostingRecord{}, missing("place")
	}
	rec.Place = place

	rec.PostedSince = util.CleanText(doc.Find(selPostedTime).First().Text())
	if rec.PostedSince == "" {
		return domain.PostingRecord{}, missing("posted_since")
	}

	var criteria []string
	doc.Find(selCriteria).Each(func(_ int, s *goquery.Selection) {
		if t := util.CleanText(s.Text()); t != "" {
			criteria = append(criteria, t)
		}
	})
	if len(criteria) == 0 {
		return domain.PostingRecord{}, missing("criteria")
	}
	rec.Level, rec.JobType, rec.JobCategory, rec.Industry = mapCriteria(criteria)

	desc, err := p.description(doc)
	if err != nil {
		return domain.PostingRecord{}, &domain.ExtractionError{Identifier: id, Field: "description", Err: err}
	}
	rec.Description = desc

	return rec.WithDefaults(), nil
}

// mapCriteria maps the criteria list positionally. Postings that publish
// fewer than four criteria only carry the employment type, in first place.
func mapCriteria(c []string) (level, jobType, category, industry string) {
	if len(c) >= 4 {
		return c[0], c[1], c[2], c[3]
	}
	return domain.NA, c[0], domain.NA, domain.NA
}

// carvePlace reads the place out of a page title shaped like
// "Acme hiring Data Scientist in Amsterdam, Netherlands | LinkedIn".
func carvePlace(title string) (string, bool) {
	i := strings.Index(title, "hiring")
	if i < 0 {
		return "", false
	}
	rest := title[i+len("hiring"):]
	j := strings.Index(rest, " in ")
	if j < 0 {
		return "", false
	}
	place := rest[j+len(" in "):]
	if k := strings.Index(place, " | "); k >= 0 {
		place = place[:k]
	}
	place = util.CleanText(place)
	return place, place != ""
}

func (p *Parser) description(doc *goquery.Document) (string, error) {
	sel := doc.Find(selDescription).First()
	if sel.Length() == 0 {
		return "", domain.ErrMissingElement
	}
	h, err := sel.Html()
	if err != nil {
		return "", err
	}
	md, err := p.md.ConvertString(p.policy.Sanitize(h))
	if err != nil {
		return "", fmt.Errorf("markdown: %w", err)
	}
	md = strings.TrimSpace(domain.UnixNewlines(md))
	if md == "" {
		md = util.CleanText(sel.Text())
	}
	if md == "" {
		return "", domain.ErrMissingElement
	}
	return md, nil
}
