package api

import (
	"context"
	"net/http"

	service "github.com/okian/worthrank/internal/app"
	"github.com/okian/worthrank/pkg/logger"
)

// StatsProvider defines the interface for getting score statistics.
type StatsProvider interface {
	Statistics(ctx context.Context) (service.Statistics, error)
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
	logger        logger.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider, l logger.Logger) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider, logger: l}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statsProvider.Statistics(r.Context())
	if err != nil {
		respondError(r.Context(), w, h.logger, "api.stats", err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Success: true, Data: stats})
}
