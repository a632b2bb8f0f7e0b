package tools

import (
	"encoding/json"
	"net/http"

	"github.com/rpattn/homegraph/internal/domain"

	"go.uber.org/zap"
)

// HTTPHandler exposes the tool registry as a single POST endpoint taking
// {"tool": name, "arguments": {...}}. GET lists the registered tool names.
type HTTPHandler struct {
	registry *Registry
	logger   *zap.Logger
}

// NewHTTPHandler wraps the registry.
func NewHTTPHandler(registry *Registry, logger *zap.Logger) http.Handler {
	return &HTTPHandler{registry: registry, logger: logger}
}

type toolCall struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

type toolResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"tools": h.registry.Names()})
	case http.MethodPost:
		h.dispatch(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPHandler) dispatch(w http.ResponseWriter, r *http.Request) {
	var call toolCall
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.registry.Execute(r.Context(), call.Tool, call.Arguments)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case domain.IsValidation(err), domain.IsReference(err):
			status = http.StatusBadRequest
		case domain.IsNotFound(err):
			status = http.StatusNotFound
		default:
			h.logger.Error("tool execution failed",
				zap.String("tool", call.Tool),
				zap.Error(err),
			)
		}
		writeJSON(w, status, toolResult{Tool: call.Tool, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, toolResult{Tool: call.Tool, Result: result})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
