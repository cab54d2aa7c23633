package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"jobharvest/internal/analyze"
	"jobharvest/internal/config"
	"jobharvest/internal/events"
	"jobharvest/internal/scrape"
)

type ScrapeHandler struct {
	CfgVal    *atomic.Value // config.Config
	BaseCtx   context.Context
	Tracker   *scrape.Tracker
	RunScrape func(ctx context.Context, cfg config.Config) ([]scrape.RunReport, error)
	// Runs counts background runs so a shutdown can wait for their
	// snapshots and ledger rows.
	Runs *sync.WaitGroup
	// Hub, when set, gets a scrape.requested event tagged with the request id.
	Hub *events.Hub
	Log *slog.Logger
}

func (h *ScrapeHandler) Status(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.Tracker.Status())
}

// Run starts a scrape of every configured search in the background.
func (h *ScrapeHandler) Run(w http.ResponseWriter, r *http.Request) {
	if !h.Tracker.Begin(time.Now()) {
		WriteError(w, r, http.StatusConflict, "already_running", "a scrape run is already in progress")
		return
	}

	ctx := h.BaseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := h.CfgVal.Load().(config.Config)
	reqID := RequestIDFrom(r.Context())
	log := h.Log.With("request_id", reqID)
	log.Info("scrape requested", "searches", len(cfg.Searches))
	if h.Hub != nil {
		h.Hub.Emit(reqID, "scrape.requested", map[string]int{"searches": len(cfg.Searches)})
	}

	h.Runs.Add(1)
	go func() {
		defer h.Runs.Done()
		reports, err := h.RunScrape(ctx, cfg)
		if err != nil {
			log.Error("scrape run failed", "err", err)
		}
		h.Tracker.End(time.Now(), reports, err)
	}()

	WriteJSON(w, http.StatusAccepted, map[string]any{"ok": true, "request_id": reqID})
}

type BuildHandler struct {
	Build func(ctx context.Context) (analyze.Report, error)

	mu sync.Mutex
}

func (h *BuildHandler) Run(w http.ResponseWriter, r *http.Request) {
	if !h.mu.TryLock() {
		WriteError(w, r, http.StatusConflict, "already_running", "a dataset build is already in progress")
		return
	}
	defer h.mu.Unlock()

	rep, err := h.Build(r.Context())
	if err != nil {
		WriteFailure(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, rep)
}
