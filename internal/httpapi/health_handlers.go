package httpapi

import (
	"database/sql"
	"net/http"

	"jobharvest/internal/store"
)

type HealthHandler struct {
	DB *sql.DB
}

// Health reports whether the ledger is reachable, with its run and posting
// counts.
func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"ok": true}
	if h.DB != nil {
		sum, err := store.Summarize(r.Context(), h.DB)
		if err != nil {
			out["ok"] = false
			out["db"] = err.Error()
			WriteJSON(w, http.StatusServiceUnavailable, out)
			return
		}
		out["ledger"] = sum
	}
	WriteJSON(w, http.StatusOK, out)
}
