package api

import (
	"net/http"

	"github.com/okian/worthrank/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthHandler serves liveness and the Prometheus exposition.
type HealthHandler struct {
	ready   func() bool
	metrics http.Handler
}

// NewHealthHandler creates a new health handler. A nil ready func means always ready.
func NewHealthHandler(ready func() bool) *HealthHandler {
	return &HealthHandler{
		ready:   ready,
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

// HandleHealth handles GET /healthz requests with the custom registry's metrics.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil && !h.ready() {
		writeError(w, http.StatusServiceUnavailable, codeNotReady, nil)
		return
	}
	h.metrics.ServeHTTP(w, r)
}
