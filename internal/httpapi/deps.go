package httpapi

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"

	"jobharvest/internal/analyze"
	"jobharvest/internal/config"
	"jobharvest/internal/events"
	"jobharvest/internal/scrape"
)

type Deps struct {
	DB  *sql.DB
	Hub *events.Hub

	// CfgVal stores the current config.Config.
	CfgVal *atomic.Value

	// Config persistence
	UserCfgPath string
	LoadCfg     func() (config.Config, error)

	// BaseCtx bounds background scrape runs started over HTTP.
	BaseCtx context.Context
	Tracker *scrape.Tracker
	// RunScrape runs every configured search (inject for testability).
	RunScrape func(ctx context.Context, cfg config.Config) ([]scrape.RunReport, error)
	// Runs is incremented for every run started over HTTP; Wait on it
	// after shutting the server down. Nil means untracked.
	Runs *sync.WaitGroup
	// BuildDataset rebuilds the final table from the snapshots.
	BuildDataset func(ctx context.Context) (analyze.Report, error)

	Logger *slog.Logger
}
