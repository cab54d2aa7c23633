package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"jobharvest/internal/analyze"
	"jobharvest/internal/browser"
	"jobharvest/internal/config"
	"jobharvest/internal/normalize"
	"jobharvest/internal/reporter"
	"jobharvest/internal/scrape"
	"jobharvest/internal/scrape/linkedin"
	"jobharvest/internal/scrape/types"
	"jobharvest/internal/secrets"
	"jobharvest/internal/snapshot"
	"jobharvest/internal/store"
)

type app struct {
	cfg         config.Config
	userCfgPath string
	defaultsDir string
	// dataDir, when set from -data or the environment, overrides app.data_dir.
	dataDir string
	db      *store.DB
	tg      *reporter.Telegram
	log     *slog.Logger
}

func bootstrap(dataDir, defaultsDir string, log *slog.Logger) (*app, error) {
	config.LoadDotEnv(".env", filepath.Join(defaultsDir, ".env"))

	if dataDir == "" {
		dataDir = os.Getenv("JOBHARVEST_DATA_DIR")
	}
	override := dataDir
	if dataDir == "" {
		dataDir = "data"
	}

	userCfgPath, err := config.EnsureUserConfig(dataDir, filepath.Join(defaultsDir, "config.yml"))
	if errors.Is(err, os.ErrNotExist) {
		userCfgPath = filepath.Join(dataDir, "config.yml")
		log.Warn("no shipped config found, writing defaults", "path", userCfgPath)
		err = config.SaveAtomic(userCfgPath, config.Default())
	}
	if err != nil {
		return nil, fmt.Errorf("config bootstrap: %w", err)
	}

	a := &app{userCfgPath: userCfgPath, defaultsDir: defaultsDir, dataDir: override, log: log}
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	a.cfg = cfg

	if err := os.MkdirAll(cfg.App.DataDir, 0o755); err != nil {
		return nil, err
	}
	if _, err := config.EnsureUserRules(cfg.App.DataDir, filepath.Join(defaultsDir, "rules.yml")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("rules bootstrap: %w", err)
	}

	dbPath := cfg.Resolve(cfg.Paths.DB)
	a.db, err = store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}

	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		a.tg, err = reporter.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			log.Warn("telegram disabled", "err", err)
		}
	}
	return a, nil
}

// loadConfig reads the user config and rejects it when validation fails.
func (a *app) loadConfig() (config.Config, error) {
	cfg, err := config.Load(a.userCfgPath)
	if err != nil {
		return cfg, fmt.Errorf("config load (%s): %w", a.userCfgPath, err)
	}
	if a.dataDir != "" {
		cfg.App.DataDir = a.dataDir
	}
	cfg, v := config.NormalizeAndValidate(cfg)
	for _, w := range v.Warnings {
		a.log.Warn("config", "warning", w)
	}
	if !v.OK() {
		return cfg, fmt.Errorf("invalid config %s: %s", a.userCfgPath, strings.Join(v.Errors, "; "))
	}
	return cfg, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn("close db", "err", err)
	}
}

func (a *app) runReporter() scrape.Reporter {
	if a.tg == nil {
		return nil
	}
	return a.tg
}

type fetcherSession struct{ *browser.HTTPFetcher }

func (fetcherSession) Close() error { return nil }

func (a *app) openBrowser(ctx context.Context, cfg config.Config) (types.Session, error) {
	if cfg.Browser.Mode == "http" {
		return fetcherSession{browser.NewHTTPFetcher(browser.HTTPConfig{
			UserAgent:  cfg.Browser.UserAgent,
			Timeout:    cfg.Browser.Timeout,
			ListingURL: linkedin.ListingURL,
			Logger:     a.log,
		})}, nil
	}

	var password string
	if acct := cfg.Credentials.Account; acct != "" {
		p, err := secrets.GetLoginPassword(acct)
		switch {
		case errors.Is(err, secrets.ErrNoPassword):
			a.log.Warn("no stored password, relying on saved cookies", "account", acct)
		case err != nil:
			return nil, err
		default:
			password = p
		}
	}
	return browser.OpenSession(ctx, browser.SessionConfig{
		ControlURL:  cfg.Browser.ControlURL,
		Headless:    cfg.Browser.Headless,
		UserAgent:   cfg.Browser.UserAgent,
		Timeout:     cfg.Browser.Timeout,
		CookiesPath: cfg.Resolve(cfg.Browser.CookiesPath),
		LoginURL:    cfg.Browser.LoginURL,
		Account:     cfg.Credentials.Account,
		Password:    password,
		ListingURL:  linkedin.ListingURL,
		Logger:      a.log,
	})
}

// scrapeAll opens one browser for the whole batch of searches.
func (a *app) scrapeAll(ctx context.Context, cfg config.Config, searches []scrape.Search, pub scrape.Publisher) ([]scrape.RunReport, error) {
	if len(searches) == 0 {
		return nil, errors.New("no searches configured")
	}
	b, err := a.openBrowser(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open browser: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			a.log.Warn("close browser", "err", err)
		}
	}()

	r := &scrape.Runner{
		Browser:   b,
		Snapshots: snapshot.New(cfg.Resolve(cfg.Paths.SnapshotDir), a.log),
		DB:        a.db.Pool,
		Events:    pub,
		Reporter:  a.runReporter(),
		Discovery: linkedin.DiscoveryConfig{
			Delay:    cfg.Scrape.ListingDelay,
			MaxPages: cfg.Scrape.MaxPages,
			Logger:   a.log,
		},
		Batch: scrape.BatchConfig{
			Delay:   cfg.Scrape.Delay,
			Workers: cfg.Scrape.Workers,
			Retries: cfg.Scrape.Retries,
			MaxRate: cfg.Scrape.MaxRate,
			Logger:  a.log,
		},
		Logger: a.log,
	}
	return r.RunAll(ctx, searches)
}

func configuredSearches(cfg config.Config) []scrape.Search {
	out := make([]scrape.Search, 0, len(cfg.Searches))
	for _, s := range cfg.Searches {
		out = append(out, scrape.Search{Job: s.Job, Location: s.Location, Pages: s.Pages})
	}
	return out
}

func (a *app) loadRules(cfg config.Config) (config.Rules, error) {
	path := cfg.Resolve(cfg.Paths.Rules)
	rules, err := config.LoadRules(path)
	if errors.Is(err, os.ErrNotExist) {
		a.log.Warn("rules file missing, using built-in rules", "path", path)
		return config.DefaultRules(), nil
	}
	return rules, err
}

func (a *app) buildDataset(ctx context.Context, cfg config.Config) (analyze.Report, error) {
	rules, err := a.loadRules(cfg)
	if err != nil {
		return analyze.Report{}, err
	}
	b := &analyze.Builder{
		Snapshots: snapshot.New(cfg.Resolve(cfg.Paths.SnapshotDir), a.log),
		Pipeline: normalize.New(rules, normalize.Whatlang{MinConfidence: cfg.Normalize.MinLangConfidence}, normalize.Options{
			Workers: cfg.Normalize.Workers,
			Logger:  a.log,
		}),
		OutputCSV:    cfg.Resolve(cfg.Paths.OutputCSV),
		DB:           a.db.Pool,
		MergeWorkers: cfg.Normalize.Workers,
		Logger:       a.log,
	}
	rep, err := b.Build(ctx)
	if err != nil {
		return rep, err
	}
	if a.tg != nil {
		if err := a.tg.ReportBuild(ctx, rep); err != nil {
			a.log.Warn("telegram build report", "err", err)
		}
	}
	return rep, nil
}

func (a *app) cmdScrape(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scrape", flag.ExitOnError)
	job := fs.String("job", "", "job query (overrides the configured searches)")
	location := fs.String("location", "", "location query")
	pages := fs.Int("pages", 1, "listing pages to read")
	_ = fs.Parse(args)

	searches := configuredSearches(a.cfg)
	if *job != "" || *location != "" {
		searches = []scrape.Search{{Job: *job, Location: *location, Pages: *pages}}
	}

	reports, err := a.scrapeAll(ctx, a.cfg, searches, nil)
	for _, r := range reports {
		a.log.Info("search scraped",
			"job", r.Job, "location", r.Location,
			"discovered", r.Discovered, "records", r.Records,
			"failed", len(r.Failures), "snapshot", r.Snapshot)
		for _, f := range r.Failures {
			a.log.Debug("failed posting", "id", f.Identifier, "reason", f.Reason)
		}
	}
	return err
}

func (a *app) cmdBuild(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	_ = fs.Parse(args)

	rep, err := a.buildDataset(ctx, a.cfg)
	if err != nil {
		return err
	}
	fmt.Println(rep.String())
	return nil
}
