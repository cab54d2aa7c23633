// Package scheduler runs tasks on a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

type Task func(ctx context.Context) error

// Every runs task right away and then once per interval until ctx is done.
// Runs never overlap; a tick that arrives while the task is still running
// is dropped.
func Every(ctx context.Context, interval time.Duration, name string, task Task, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "scheduler", "task", name)

	run := func() {
		start := time.Now()
		if err := task(ctx); err != nil {
			log.Error("task failed", "err", err, "took", time.Since(start).Round(time.Millisecond))
			return
		}
		log.Info("task done", "took", time.Since(start).Round(time.Millisecond))
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	run()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			run()
		}
	}
}
