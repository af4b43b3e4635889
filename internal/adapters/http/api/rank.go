package api

import (
	"context"
	"net/http"

	service "github.com/okian/worthrank/internal/app"
	"github.com/okian/worthrank/internal/domain/model"
	"github.com/okian/worthrank/pkg/logger"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	RankOnly(ctx context.Context, in service.RankInput) (service.RankOnlyResult, error)
}

// RankHandler handles read-only rank requests.
type RankHandler struct {
	deps   RankDependencies
	logger logger.Logger
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies, l logger.Logger) *RankHandler {
	return &RankHandler{deps: deps, logger: l}
}

type rankRequest struct {
	Score *float64 `json:"score"`
}

type rankResponse struct {
	Success bool `json:"success"`
	rankFields
	FromCache bool   `json:"fromCache"`
	Message   string `json:"message,omitempty"`
}

// HandleRank handles POST /job-worth/rank requests. Nothing is recorded.
func (h *RankHandler) HandleRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.rank"
	var req rankRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Score == nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, WrapKind(op, ErrBadRequest, errMissingScore))
		return
	}

	res, err := h.deps.RankOnly(r.Context(), service.RankInput{Score: *req.Score, ClientKey: ClientKey(r)})
	if err != nil {
		respondError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rankResponse{
		Success:    true,
		rankFields: toRankFields(res.Rank),
		FromCache:  res.FromCache,
		Message:    res.Message,
	})
}

func toRankFields(r model.RankResult) rankFields {
	return rankFields{
		Percentile:  r.Percentile,
		Rank:        r.Rank,
		TotalCount:  r.TotalCount,
		ShowRanking: r.ShowRanking,
	}
}
