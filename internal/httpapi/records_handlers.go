package httpapi

import (
	"database/sql"
	"net/http"
	"strconv"

	"jobharvest/internal/store"

	"github.com/go-chi/chi/v5"
)

type RecordsHandler struct {
	DB *sql.DB
}

// List serves the final table with optional exact-match filters, mirroring
// the dashboard's sidebar.
func (h RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, "bad_request", "limit must be an integer")
		return
	}
	rows, err := store.ListPostings(r.Context(), h.DB, store.PostingFilter{
		CleanTitle: q.Get("clean_title"),
		Country:    q.Get("country"),
		Level:      q.Get("level"),
		JobType:    q.Get("job_type"),
		City:       q.Get("city"),
		Limit:      limit,
	})
	if err != nil {
		WriteFailure(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, rows)
}

func (h RecordsHandler) TitleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := store.CountByTitleCountry(r.Context(), h.DB)
	if err != nil {
		WriteFailure(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

type RunsHandler struct {
	DB *sql.DB
}

func (h RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r.URL.Query().Get("limit"))
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, "bad_request", "limit must be an integer")
		return
	}
	runs, err := store.ListRuns(r.Context(), h.DB, limit)
	if err != nil {
		WriteFailure(w, r, err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	WriteJSON(w, http.StatusOK, runs)
}

func (h RunsHandler) Failures(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fails, err := store.ListFailures(r.Context(), h.DB, id)
	if err != nil {
		WriteFailure(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, fails)
}

func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
