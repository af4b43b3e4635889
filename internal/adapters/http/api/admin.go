package api

import (
	"context"
	"net/http"

	"github.com/okian/worthrank/internal/domain/histogram"
	"github.com/okian/worthrank/pkg/logger"
)

// AdminDependencies defines the interface for maintenance operations.
type AdminDependencies interface {
	RebuildHistogram(ctx context.Context) (histogram.RebuildReport, error)
}

// AdminHandler handles maintenance requests.
type AdminHandler struct {
	deps   AdminDependencies
	logger logger.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies, l logger.Logger) *AdminHandler {
	return &AdminHandler{deps: deps, logger: l}
}

// HandleRebuild handles POST /admin/histogram/rebuild requests.
func (h *AdminHandler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.RebuildHistogram(r.Context())
	if err != nil {
		respondError(r.Context(), w, h.logger, "api.rebuild_histogram", err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Success: true, Data: report})
}
