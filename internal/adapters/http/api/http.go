// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzhttp"
	"github.com/okian/worthrank/internal/adapters/repository"
	service "github.com/okian/worthrank/internal/app"
	"github.com/okian/worthrank/internal/domain/dedupe"
	"github.com/okian/worthrank/internal/domain/histogram"
	"github.com/okian/worthrank/pkg/logger"
)

// maxBodyBytes bounds request bodies; form data is a small JSON object.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	Submit(ctx context.Context, in service.SubmitInput) (service.SubmitResult, error)
	RankOnly(ctx context.Context, in service.RankInput) (service.RankOnlyResult, error)
	Evaluation(ctx context.Context, id string) (service.EvaluationResult, error)
	Statistics(ctx context.Context) (service.Statistics, error)
	RebuildHistogram(ctx context.Context) (histogram.RebuildReport, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	admin bool

	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	evaluationHandler *EvaluationHandler
	rankHandler       *RankHandler
	adminHandler      *AdminHandler
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	logger logger.Logger
	ready  func() bool
	admin  bool
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(o *serverOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithAdminRoutes registers the operator routes. They are off by default
// because they carry no authentication.
func WithAdminRoutes(enabled bool) Option {
	return func(o *serverOptions) {
		o.admin = enabled
	}
}

// WithReadiness makes /healthz answer 503 while ready reports false.
func WithReadiness(ready func() bool) Option {
	return func(o *serverOptions) {
		o.ready = ready
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	o := serverOptions{logger: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		admin:             o.admin,
		healthHandler:     NewHealthHandler(o.ready),
		statsHandler:      NewStatsHandler(deps, o.logger),
		evaluationHandler: NewEvaluationHandler(deps, o.logger),
		rankHandler:       NewRankHandler(deps, o.logger),
		adminHandler:      NewAdminHandler(deps, o.logger),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /stats", compress(MetricsMiddleware(s.statsHandler.HandleStats, "stats")))
	mux.Handle("POST /job-worth", compress(MetricsMiddleware(s.evaluationHandler.HandleSubmit, "job-worth")))
	mux.Handle("GET /job-worth/{id}", compress(MetricsMiddleware(s.evaluationHandler.HandleGet, "job-worth-get")))
	mux.Handle("POST /job-worth/rank", compress(MetricsMiddleware(s.rankHandler.HandleRank, "job-worth-rank")))
	// legacy path kept for older clients
	mux.Handle("POST /job-worth-rank", compress(MetricsMiddleware(s.rankHandler.HandleRank, "job-worth-rank")))
	if s.admin {
		mux.Handle("POST /admin/histogram/rebuild", compress(MetricsMiddleware(s.adminHandler.HandleRebuild, "histogram-rebuild")))
	}
}

func compress(h http.Handler) http.Handler {
	return gzhttp.GzipHandler(h)
}

// rankFields mirrors the ranking part of every rank-bearing response.
type rankFields struct {
	Percentile  *string `json:"percentile"`
	Rank        *int64  `json:"rank"`
	TotalCount  int64   `json:"totalCount"`
	ShowRanking bool    `json:"showRanking"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

type dataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ClientKey derives the best-effort client identity: the first
// X-Forwarded-For entry, then X-Real-IP, then "unknown".
func ClientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return dedupe.UnknownClient
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	if rec, ok := w.(interface{ recordErrorCode(string) }); ok {
		rec.recordErrorCode(code)
	}
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Success: false, Error: msg, Code: code})
}

// respondError maps service errors onto status codes. Server-side failures
// are logged with detail and answered with a generic message.
func respondError(ctx context.Context, w http.ResponseWriter, log logger.Logger, op string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, repository.ErrInvalidScore):
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, WrapKind(op, ErrNotFound, err))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, codeNotReady, NewKind(op, ErrUnavailable))
	default:
		log.Error(ctx, "request failed", logger.Error(Wrap(op, err)))
		writeError(w, http.StatusInternalServerError, codeInternal, NewKind(op, ErrInternal))
	}
}
