package export

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Handler exposes the inventory export as a download endpoint.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHTTPHandler wraps the service with a GET endpoint returning an .xlsx
// attachment.
func NewHTTPHandler(service *Service, logger *zap.Logger) http.Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filename := fmt.Sprintf("inventory-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	if err := h.service.WriteInventory(r.Context(), w); err != nil {
		// Headers may already be on the wire; log and drop the connection
		// rather than writing a misleading half-workbook status.
		h.logger.Error("inventory export failed", zap.Error(err))
	}
}
