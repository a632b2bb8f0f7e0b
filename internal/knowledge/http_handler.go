package knowledge

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/homegraph/internal/domain"
	"github.com/rpattn/homegraph/internal/repository"

	"github.com/google/uuid"
)

// HistoryHandler serves the stored version history of an entity:
// GET /history?entity_id=<uuid>.
type HistoryHandler struct {
	service *Service
}

// NewHistoryHandler wraps the service.
func NewHistoryHandler(service *Service) http.Handler {
	return &HistoryHandler{service: service}
}

func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("entity_id")))
	if err != nil {
		http.Error(w, "invalid entity_id: "+err.Error(), http.StatusBadRequest)
		return
	}

	versions, err := h.service.ListVersions(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entity_id": id,
		"versions":  versions,
	})
}

// DiffHandler serves a unified diff between two stored versions:
// GET /history/diff?entity_id=<uuid>&from=<version>&to=<version>.
type DiffHandler struct {
	service *Service
}

// NewDiffHandler wraps the service.
func NewDiffHandler(service *Service) http.Handler {
	return &DiffHandler{service: service}
}

func (h *DiffHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("entity_id")))
	if err != nil {
		http.Error(w, "invalid entity_id: "+err.Error(), http.StatusBadRequest)
		return
	}
	from := strings.TrimSpace(r.URL.Query().Get("from"))
	to := strings.TrimSpace(r.URL.Query().Get("to"))
	if from == "" || to == "" {
		http.Error(w, "from and to versions are required", http.StatusBadRequest)
		return
	}

	base, err := h.service.GetEntityVersion(r.Context(), id, from)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	target, err := h.service.GetEntityVersion(r.Context(), id, to)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entity_id": id,
		"from":      from,
		"to":        to,
		"diff":      domain.DiffEntityVersions(base, target),
	})
}

func writeLookupError(w http.ResponseWriter, err error) {
	if domain.IsNotFound(err) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// ConflictHandler serves the resolved-conflict audit log:
// GET /conflicts?entity_id=<uuid>&limit=<n>. Both parameters are optional.
type ConflictHandler struct {
	conflicts repository.ConflictStore
}

// NewConflictHandler wraps the conflict store.
func NewConflictHandler(conflicts repository.ConflictStore) http.Handler {
	return &ConflictHandler{conflicts: conflicts}
}

func (h *ConflictHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var entityID *uuid.UUID
	if raw := strings.TrimSpace(r.URL.Query().Get("entity_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid entity_id: "+err.Error(), http.StatusBadRequest)
			return
		}
		entityID = &id
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid limit: "+err.Error(), http.StatusBadRequest)
			return
		}
		limit = n
	}

	conflicts, err := h.conflicts.ListConflicts(r.Context(), entityID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if conflicts == nil {
		conflicts = []domain.ConflictResolution{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
