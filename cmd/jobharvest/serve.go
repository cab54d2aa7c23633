package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"jobharvest/internal/analyze"
	"jobharvest/internal/config"
	"jobharvest/internal/events"
	"jobharvest/internal/httpapi"
	"jobharvest/internal/scheduler"
	"jobharvest/internal/scrape"
)

func (a *app) cmdServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.Int("port", 0, "listen port (default app.port)")
	_ = fs.Parse(args)

	// stop is also called when Serve fails so the scheduler exits
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var cfgVal atomic.Value // stores config.Config
	cfgVal.Store(a.cfg)
	current := func() config.Config { return cfgVal.Load().(config.Config) }

	hub := events.NewHub()
	tracker := &scrape.Tracker{}
	// runs tracks HTTP-started runs and the scheduler so shutdown lets them
	// save what they collected before the db closes.
	var runs sync.WaitGroup

	runScrape := func(ctx context.Context, cfg config.Config) ([]scrape.RunReport, error) {
		return a.scrapeAll(ctx, cfg, configuredSearches(cfg), hub)
	}

	handler := httpapi.NewRouter(httpapi.Deps{
		DB:          a.db.Pool,
		Hub:         hub,
		CfgVal:      &cfgVal,
		UserCfgPath: a.userCfgPath,
		LoadCfg:     a.loadConfig,
		BaseCtx:     ctx,
		Tracker:     tracker,
		Runs:        &runs,
		RunScrape:   runScrape,
		BuildDataset: func(ctx context.Context) (analyze.Report, error) {
			return a.buildDataset(ctx, current())
		},
		Logger: a.log,
	})

	p := a.cfg.App.Port
	if *port > 0 {
		p = *port
	}
	addr := fmt.Sprintf("127.0.0.1:%d", p)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	a.log.Info("listening", "url", "http://"+addr, "config", a.userCfgPath)

	if iv := a.cfg.Schedule.Interval; iv > 0 {
		runs.Add(1)
		go func() {
			defer runs.Done()
			scheduler.Every(ctx, iv, "scrape", func(ctx context.Context) error {
				if !tracker.Begin(time.Now()) {
					a.log.Info("scheduled scrape skipped, a run is in progress")
					return nil
				}
				reports, err := runScrape(ctx, current())
				tracker.End(time.Now(), reports, err)
				return err
			}, a.log)
		}()
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	var serveErr error
	select {
	case serveErr = <-errc:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		serveErr = errors.Join(serveErr, err)
	}
	a.log.Info("server stopped, waiting for running scrapes")
	stop()
	runs.Wait()
	return serveErr
}
