package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"jobharvest/internal/domain"
	"jobharvest/internal/store"
)

// APIError is the envelope of every non-2xx JSON response.
type APIError struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
		Details   any    `json:"details,omitempty"`
	} `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteErrorDetails(w, r, status, code, message, nil)
}

func WriteErrorDetails(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	var e APIError
	e.Error.Code = code
	e.Error.Message = message
	e.Error.RequestID = RequestIDFrom(r.Context())
	e.Error.Details = details
	WriteJSON(w, status, e)
}

// WriteFailure maps pipeline and ledger errors onto a status and code.
func WriteFailure(w http.ResponseWriter, r *http.Request, err error) {
	var pe *domain.PersistenceError
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		WriteError(w, r, http.StatusServiceUnavailable, "canceled", err.Error())
	case errors.As(err, &pe):
		WriteErrorDetails(w, r, http.StatusInternalServerError, "persistence_error", err.Error(),
			map[string]string{"op": pe.Op, "path": pe.Path})
	default:
		WriteError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
