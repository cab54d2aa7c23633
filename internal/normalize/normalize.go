// Package normalize derives the categorical analysis fields of a posting:
// title category, country, city, description language and posting date.
package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"jobharvest/internal/config"
	"jobharvest/internal/domain"

	"golang.org/x/sync/errgroup"
)

// OtherTitle is the category of titles no alias matches.
const OtherTitle = "other"

const dateLayout = "2006-01-02"

// LangDetector returns a language code for text.
type LangDetector interface {
	Detect(text string) (string, error)
}

type Options struct {
	Workers int
	Now     func() time.Time
	Logger  *slog.Logger
}

type Pipeline struct {
	rules    config.Rules
	titles   []category
	detector LangDetector
	opts     Options
	log      *slog.Logger
}

type category struct {
	name    string
	aliases []string // lowercased, plus the space-free form
}

func New(rules config.Rules, detector LangDetector, opts Options) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{
		rules:    rules,
		detector: detector,
		opts:     opts,
		log:      log.With("component", "normalize"),
	}
	for _, c := range rules.Titles {
		cat := category{name: c.Name}
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" {
				continue
			}
			cat.aliases = append(cat.aliases, a)
			if squashed := strings.ReplaceAll(a, " ", ""); squashed != a {
				cat.aliases = append(cat.aliases, squashed)
			}
		}
		p.titles = append(p.titles, cat)
	}
	return p
}

// CleanTitle returns the first category with an alias contained in title,
// or OtherTitle.
func (p *Pipeline) CleanTitle(title string) string {
	t := strings.ToLower(title)
	for _, c := range p.titles {
		for _, a := range c.aliases {
			if strings.Contains(t, a) {
				return c.name
			}
		}
	}
	return OtherTitle
}

// DetectCountry returns the code of the first rule with a keyword in place,
// or the default country.
func (p *Pipeline) DetectCountry(place string) string {
	pl := strings.ToLower(place)
	for _, r := range p.rules.Countries {
		for _, kw := range r.Any {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(pl, kw) {
				return r.Code
			}
		}
	}
	if p.rules.DefaultCountry == "" {
		return domain.NA
	}
	return p.rules.DefaultCountry
}

// CleanCity returns the text before the first comma, or "na" when place has
// no comma.
func CleanCity(place string) string {
	city, _, ok := strings.Cut(place, ",")
	if !ok {
		return domain.NA
	}
	if city = strings.TrimSpace(city); city == "" {
		return domain.NA
	}
	return city
}

// PostedDate turns a relative age such as "3 days ago" into a date. Months
// count as 28 days. Unrecognized input yields "na".
func PostedDate(since string, now time.Time) string {
	s := strings.ToLower(since)
	n, ok := firstInt(s)

	var d time.Duration
	switch {
	case strings.Contains(s, "minute"), strings.Contains(s, "hour"), strings.Contains(s, "second"):
		d = 0
	case !ok:
		return domain.NA
	case strings.Contains(s, "day"):
		d = time.Duration(n) * 24 * time.Hour
	case strings.Contains(s, "week"):
		d = time.Duration(n) * 7 * 24 * time.Hour
	case strings.Contains(s, "month"):
		d = time.Duration(n) * 28 * 24 * time.Hour
	default:
		return domain.NA
	}
	return now.Add(-d).Format(dateLayout)
}

func firstInt(s string) (int, bool) {
	for _, f := range strings.Fields(s) {
		if n, err := strconv.Atoi(f); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Lang detects the description language.
func (p *Pipeline) Lang(r domain.PostingRecord) (string, error) {
	text := strings.TrimSpace(r.Description)
	if text == "" || text == domain.NA {
		return "", &domain.NormalizationError{ID: r.ID, Step: "lang", Err: fmt.Errorf("no description text")}
	}
	code, err := p.detector.Detect(text)
	if err != nil {
		return "", &domain.NormalizationError{ID: r.ID, Step: "lang", Err: err}
	}
	return code, nil
}

// Record derives all fields for one row. The source record is copied, not
// modified.
func (p *Pipeline) Record(r domain.PostingRecord, now time.Time) (domain.NormalizedRecord, error) {
	lang, err := p.Lang(r)
	if err != nil {
		return domain.NormalizedRecord{}, err
	}
	return domain.NormalizedRecord{
		PostingRecord: r,
		CleanTitle:    p.CleanTitle(r.Title),
		Country:       p.DetectCountry(r.Place),
		City:          CleanCity(r.Place),
		Lang:          lang,
		PostedDate:    PostedDate(r.PostedSince, now),
	}, nil
}

type Result struct {
	Rows     []domain.NormalizedRecord
	Failures []*domain.NormalizationError
}

// Run normalizes rows concurrently. Output keeps input order; rows that fail
// a step are left out of Rows and listed in Failures.
func (p *Pipeline) Run(ctx context.Context, rows []domain.PostingRecord) (Result, error) {
	now := p.opts.Now()
	out := make([]domain.NormalizedRecord, len(rows))
	errs := make([]error, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i], errs[i] = p.Record(rows[i], now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{Rows: make([]domain.NormalizedRecord, 0, len(rows))}
	for i := range rows {
		if errs[i] != nil {
			ne, ok := errs[i].(*domain.NormalizationError)
			if !ok {
				ne = &domain.NormalizationError{ID: rows[i].ID, Step: "record", Err: errs[i]}
			}
			p.log.Warn("row excluded", "id", ne.ID, "step", ne.Step, "err", ne.Err)
			res.Failures = append(res.Failures, ne)
			continue
		}
		res.Rows = append(res.Rows, out[i])
	}
	p.log.Info("normalized", "rows", len(res.Rows), "failed", len(res.Failures))
	return res, nil
}
