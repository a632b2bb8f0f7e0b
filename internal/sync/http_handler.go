package sync

import (
	"encoding/json"
	"net/http"

	"github.com/rpattn/homegraph/internal/domain"

	"go.uber.org/zap"
)

// Handler exposes the responder side of the protocol as an HTTP endpoint.
type Handler struct {
	engine *Engine
	logger *zap.Logger
}

// NewHTTPHandler wraps the engine with a POST /sync endpoint.
func NewHTTPHandler(engine *Engine, logger *zap.Logger) http.Handler {
	return &Handler{engine: engine, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.engine.HandleSyncRequest(r.Context(), req)
	if err != nil {
		if domain.IsValidation(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("sync request failed", zap.Error(err))
		http.Error(w, "sync failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
