package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	service "github.com/okian/worthrank/internal/app"
	"github.com/okian/worthrank/pkg/logger"
)

// EvaluationDependencies defines the interface for the evaluation endpoints.
type EvaluationDependencies interface {
	Submit(ctx context.Context, in service.SubmitInput) (service.SubmitResult, error)
	Evaluation(ctx context.Context, id string) (service.EvaluationResult, error)
}

// EvaluationHandler handles submissions and lookups of evaluations.
type EvaluationHandler struct {
	deps   EvaluationDependencies
	logger logger.Logger
}

// NewEvaluationHandler creates a new evaluation handler.
func NewEvaluationHandler(deps EvaluationDependencies, l logger.Logger) *EvaluationHandler {
	return &EvaluationHandler{deps: deps, logger: l}
}

// submitRequest mirrors the OpenAPI schema for POST /job-worth.
type submitRequest struct {
	FormData json.RawMessage `json:"formData"`
	Score    *float64        `json:"score"`
}

func (s submitRequest) validate() error {
	trimmed := strings.TrimSpace(string(s.FormData))
	switch {
	case trimmed == "" || trimmed == "null":
		return errMissingFormData
	case s.Score == nil:
		return errMissingScore
	}
	return nil
}

type submitResponse struct {
	Success bool    `json:"success"`
	ID      string  `json:"id,omitempty"`
	Score   float64 `json:"score"`
	rankFields
	FromCache bool   `json:"fromCache,omitempty"`
	Message   string `json:"message,omitempty"`
}

type evaluationData struct {
	ID        string          `json:"id"`
	Score     float64         `json:"score"`
	CreatedAt time.Time       `json:"createdAt"`
	FormData  json.RawMessage `json:"formData,omitempty"`
	rankFields
}

// HandleSubmit handles POST /job-worth requests.
func (h *EvaluationHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit"
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.Submit(r.Context(), service.SubmitInput{
		FormData:  req.FormData,
		Score:     *req.Score,
		ClientKey: ClientKey(r),
	})
	if err != nil {
		respondError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		Success:    true,
		ID:         res.ID,
		Score:      res.Score,
		rankFields: toRankFields(res.Rank),
		FromCache:  res.FromCache,
		Message:    res.Message,
	})
}

// HandleGet handles GET /job-worth/{id} requests.
func (h *EvaluationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_evaluation"
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, errMissingID))
		return
	}

	res, err := h.deps.Evaluation(r.Context(), id)
	if err != nil {
		respondError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{
		Success: true,
		Data: evaluationData{
			ID:         res.Sample.ID,
			Score:      res.Sample.Score,
			CreatedAt:  res.Sample.OccurredAt,
			FormData:   res.Sample.FormData,
			rankFields: toRankFields(res.Rank),
		},
	})
}
