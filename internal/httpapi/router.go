package httpapi

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

func NewRouter(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "http")

	r := chi.NewRouter()
	r.Use(RequestID, Recover(log), AccessLog(log), Cors)

	r.Get("/health", HealthHandler{DB: d.DB}.Health)

	// Final table
	rh := RecordsHandler{DB: d.DB}
	r.Get("/records", rh.List)
	r.Get("/stats/titles", rh.TitleStats)

	// Run ledger
	lh := RunsHandler{DB: d.DB}
	r.Get("/runs", lh.List)
	r.Get("/runs/{id}/failures", lh.Failures)

	// Scrape and build
	runs := d.Runs
	if runs == nil {
		runs = &sync.WaitGroup{}
	}
	sh := &ScrapeHandler{
		CfgVal:    d.CfgVal,
		BaseCtx:   d.BaseCtx,
		Tracker:   d.Tracker,
		RunScrape: d.RunScrape,
		Runs:      runs,
		Hub:       d.Hub,
		Log:       log,
	}
	r.Get("/scrape/status", sh.Status)
	r.Post("/scrape/run", sh.Run)

	bh := &BuildHandler{Build: d.BuildDataset}
	r.Post("/dataset/build", bh.Run)

	// Config
	ch := ConfigHandler{
		CfgVal:      d.CfgVal,
		UserCfgPath: d.UserCfgPath,
		LoadCfg:     d.LoadCfg,
	}
	r.Get("/config", ch.Get)
	r.Put("/config", ch.Put)
	r.Get("/config/path", ch.Path)
	r.Get("/config/validate", ch.Validate)

	// Secrets (use CfgVal, NOT a snapshot cfg)
	r.Post("/secrets/login", SecretsHandler{CfgVal: d.CfgVal}.SetLoginPassword)

	// SSE events
	r.Get("/events", EventsHandler{Hub: d.Hub}.ServeSSE)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}
