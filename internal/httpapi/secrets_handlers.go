package httpapi

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"jobharvest/internal/config"
	"jobharvest/internal/secrets"
)

type SecretsHandler struct {
	CfgVal *atomic.Value // stores config.Config
}

type setLoginPasswordReq struct {
	Password string `json:"password"`
}

// SetLoginPassword stores the password of credentials.account in the OS
// keychain.
func (h SecretsHandler) SetLoginPassword(w http.ResponseWriter, r *http.Request) {
	var req setLoginPasswordReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}

	cfg := h.CfgVal.Load().(config.Config)
	if err := secrets.SetLoginPassword(cfg.Credentials.Account, req.Password); err != nil {
		WriteError(w, r, http.StatusBadRequest, "store_failed", "failed to store password: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
