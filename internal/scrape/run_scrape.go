package scrape

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"jobharvest/internal/domain"
	"jobharvest/internal/events"
	"jobharvest/internal/scrape/linkedin"
	"jobharvest/internal/scrape/types"
	"jobharvest/internal/snapshot"
	"jobharvest/internal/store"

	"github.com/google/uuid"
)

// Publisher receives serialized progress events.
type Publisher interface {
	Publish(evt string)
}

// Reporter is told about every finished run.
type Reporter interface {
	Report(ctx context.Context, r RunReport) error
}

// Search is one (query, location) pair to scrape.
type Search struct {
	Job      string
	Location string
	Pages    int
}

type RunReport struct {
	ID           string                 `json:"id"`
	Job          string                 `json:"job"`
	Location     string                 `json:"location"`
	StartedAt    time.Time              `json:"started_at"`
	FinishedAt   time.Time              `json:"finished_at"`
	Discovered   int                    `json:"discovered"`
	Records      int                    `json:"records"`
	Failures     []domain.ScrapeFailure `json:"failures"`
	SkippedPages []int                  `json:"skipped_pages"`
	Snapshot     string                 `json:"snapshot"`
	Error        string                 `json:"error,omitempty"`
}

// Runner wires discovery, extraction and persistence for one search.
type Runner struct {
	Browser   types.Browser
	Extractor types.Extractor // defaults to the posting page extractor over Browser
	Snapshots *snapshot.Store
	DB        *sql.DB   // optional run ledger
	Events    Publisher // optional
	Reporter  Reporter  // optional

	Discovery linkedin.DiscoveryConfig
	Batch     BatchConfig
	Logger    *slog.Logger
	Now       func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) publish(runID, typ string, data any) {
	if r.Events != nil {
		r.Events.Publish(events.MakeEvent(runID, typ, 1, data))
	}
}

// Run performs one scrape: discover posting urls, extract each, save the
// snapshot and record the run. Item failures never fail the run; the
// returned error is a cancellation or a persistence failure, and the
// report is filled in either way.
func (r *Runner) Run(ctx context.Context, s Search) (RunReport, error) {
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}
	rep := RunReport{
		ID:        uuid.NewString(),
		Job:       s.Job,
		Location:  s.Location,
		StartedAt: r.now(),
	}
	log = log.With("component", "run", "run_id", rep.ID)
	log.Info("scrape started", "job", s.Job, "location", s.Location, "pages", s.Pages)
	r.publish(rep.ID, "scrape.started", map[string]any{"job": s.Job, "location": s.Location})

	dcfg := r.Discovery
	if dcfg.Logger == nil {
		dcfg.Logger = log
	}
	found, runErr := linkedin.NewDiscovery(r.Browser, dcfg).Discover(ctx, s.Job, s.Location, s.Pages)
	rep.Discovered = len(found.URLs)
	for _, sk := range found.Skipped {
		rep.SkippedPages = append(rep.SkippedPages, sk.Page)
	}
	r.publish(rep.ID, "scrape.discovered", map[string]any{"urls": rep.Discovered, "skipped_pages": rep.SkippedPages})

	ex := r.Extractor
	if ex == nil {
		ex = linkedin.NewExtractor(r.Browser)
	}
	bcfg := r.Batch
	if bcfg.Logger == nil {
		bcfg.Logger = log
	}
	res := RunBatch(ctx, ex, found.URLs, bcfg, func(d ItemDone) {
		ev := map[string]any{"index": d.Index, "total": d.Total, "url": d.URL, "ok": d.Err == nil}
		if d.Err != nil {
			ev["error"] = d.Err.Error()
		}
		r.publish(rep.ID, "scrape.item", ev)
	})
	rep.Records = len(res.Records)
	rep.Failures = res.Failures
	if rep.Failures == nil {
		rep.Failures = []domain.ScrapeFailure{}
	}

	if len(res.Records) > 0 && r.Snapshots != nil {
		path, err := r.Snapshots.Save(res.Records, s.Job, s.Location)
		if err != nil {
			runErr = errors.Join(runErr, err)
		}
		rep.Snapshot = path
	}

	rep.FinishedAt = r.now()
	if runErr != nil {
		rep.Error = runErr.Error()
	}

	// the ledger and report outlive a canceled run
	bg := context.WithoutCancel(ctx)
	if r.DB != nil {
		if err := store.InsertRun(bg, r.DB, store.Run{
			ID:           rep.ID,
			Job:          rep.Job,
			Location:     rep.Location,
			StartedAt:    rep.StartedAt,
			FinishedAt:   rep.FinishedAt,
			Discovered:   rep.Discovered,
			Records:      rep.Records,
			Failures:     len(rep.Failures),
			SkippedPages: len(rep.SkippedPages),
			Snapshot:     rep.Snapshot,
			Error:        rep.Error,
		}, rep.Failures); err != nil {
			log.Error("run ledger write failed", "err", err)
			runErr = errors.Join(runErr, fmt.Errorf("record run: %w", err))
		}
	}

	r.publish(rep.ID, "scrape.finished", map[string]any{
		"records":  rep.Records,
		"failures": len(rep.Failures),
		"snapshot": rep.Snapshot,
		"error":    rep.Error,
	})
	if r.Reporter != nil {
		if err := r.Reporter.Report(bg, rep); err != nil {
			log.Warn("report failed", "err", err)
		}
	}

	log.Info("scrape finished",
		"discovered", rep.Discovered,
		"records", rep.Records,
		"failures", len(rep.Failures),
		"skipped_pages", len(rep.SkippedPages),
		"snapshot", rep.Snapshot,
		"took", rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond),
	)
	return rep, runErr
}

// RunAll runs every search in order, stopping early only on cancellation.
func (r *Runner) RunAll(ctx context.Context, searches []Search) ([]RunReport, error) {
	var out []RunReport
	var errs []error
	for _, s := range searches {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		rep, err := r.Run(ctx, s)
		out = append(out, rep)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", s.Job, s.Location, err))
		}
	}
	return out, errors.Join(errs...)
}
