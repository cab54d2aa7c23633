package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"jobharvest/internal/domain"
	"jobharvest/internal/scrape/types"
	"jobharvest/internal/scrape/util"

	"golang.org/x/time/rate"
)

type BatchConfig struct {
	// Delay is the minimum pause between the end of one request of a worker
	// and the start of its next.
	Delay time.Duration
	// MaxRate caps request starts per second across all workers; zero is no cap.
	MaxRate float64
	// Workers bounds parallel extraction. Zero or one means strictly sequential.
	Workers int
	// Retries is how many extra attempts a transient fetch error gets.
	Retries int
	Logger  *slog.Logger
}

type BatchResult struct {
	Records  []domain.PostingRecord
	Failures []domain.ScrapeFailure
}

// ItemDone is reported once per input url.
type ItemDone struct {
	Index int
	Total int
	URL   string
	Err   error
}

type itemResult struct {
	rec  domain.PostingRecord
	fail *domain.ScrapeFailure
}

// RunBatch extracts every url, one failure never stopping the rest. Every
// input ends up in exactly one of Records or Failures, in input order. Once
// ctx is done no new request is issued and the remaining urls are recorded
// as canceled.
func RunBatch(ctx context.Context, ex types.Extractor, urls []string, cfg BatchConfig, onItem func(ItemDone)) BatchResult {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "batch")

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(urls) && len(urls) > 0 {
		workers = len(urls)
	}

	results := make([]itemResult, len(urls))
	work := make(chan int)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	report := func(i int, err error) {
		if onItem == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		onItem(ItemDone{Index: i, Total: len(urls), URL: urls[i], Err: err})
	}

	limiter := util.NewRateLimiter(cfg.MaxRate)

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			pacer := util.NewPacer(cfg.Delay)
			for i := range work {
				rec, err := extractOne(ctx, ex, pacer, limiter, urls[i], cfg.Retries)
				if err != nil {
					results[i].fail = &domain.ScrapeFailure{Identifier: identifier(urls[i]), Reason: err.Error()}
					log.Warn("posting failed", "url", urls[i], "err", err)
				} else {
					results[i].rec = rec
				}
				report(i, err)
			}
		}()
	}

	next := 0
feed:
	for ; next < len(urls); next++ {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case work <- next:
		}
	}
	close(work)
	wg.Wait()

	for i := next; i < len(urls); i++ {
		results[i].fail = &domain.ScrapeFailure{
			Identifier: identifier(urls[i]),
			Reason:     fmt.Sprintf("canceled: %v", ctx.Err()),
		}
		report(i, ctx.Err())
	}

	var out BatchResult
	for _, r := range results {
		if r.fail != nil {
			out.Failures = append(out.Failures, *r.fail)
			continue
		}
		out.Records = append(out.Records, r.rec)
	}
	log.Info("batch done", "records", len(out.Records), "failures", len(out.Failures), "total", len(urls))
	return out
}

func extractOne(ctx context.Context, ex types.Extractor, pacer *util.Pacer, limiter *rate.Limiter, url string, retries int) (domain.PostingRecord, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		err := pacer.Wait(ctx)
		if err == nil {
			err = limiter.Wait(ctx)
		}
		if err != nil {
			if lastErr != nil {
				return domain.PostingRecord{}, fmt.Errorf("%w (after %d attempts: %v)", err, attempt, lastErr)
			}
			return domain.PostingRecord{}, fmt.Errorf("canceled: %w", err)
		}
		rec, err := ex.Extract(ctx, url)
		pacer.Done()
		if err == nil {
			if rec.ID == "" {
				return domain.PostingRecord{}, &domain.ExtractionError{Identifier: url, Field: "id", Err: domain.ErrNoIdentifier}
			}
			return rec.WithDefaults(), nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrTransient) {
			break
		}
	}
	return domain.PostingRecord{}, lastErr
}

// identifier prefers the posting id and falls back to the url itself.
func identifier(url string) string {
	if id := util.PostingID(util.CanonicalizeURL(url, "")); id != "" {
		return id
	}
	return url
}
