package util

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer keeps at least interval between the end of one request and the start
// of the next, however long the request itself took. Call Wait before a
// request and Done once it returns. A Pacer belongs to one goroutine.
type Pacer struct {
	interval time.Duration
	last     time.Time
}

func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{interval: interval}
}

// Wait blocks until interval has passed since the last Done. The first Wait
// returns immediately.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p == nil || p.interval <= 0 || p.last.IsZero() {
		return nil
	}
	d := time.Until(p.last.Add(p.interval))
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Done marks the end of a request, successful or not.
func (p *Pacer) Done() {
	if p != nil {
		p.last = time.Now()
	}
}

// NewRateLimiter caps request starts at rps per second across every caller
// sharing it. rps <= 0 means no cap.
func NewRateLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}
