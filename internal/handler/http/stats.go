package http

import (
	"Clixy-Backend/internal/auth"
	"Clixy-Backend/internal/repository"
	"Clixy-Backend/internal/service"
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// LinkStatsProvider computes per-link click statistics.
type LinkStatsProvider interface {
	LinkStats(ctx context.Context, userID, slug string) (*service.LinkStats, error)
}

type StatsHandler struct {
	stats LinkStatsProvider
	log   *zap.Logger
}

func NewStatsHandler(stats LinkStatsProvider, log *zap.Logger) *StatsHandler {
	return &StatsHandler{
		stats: stats,
		log:   log,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// GetLinkStats godoc
// @Summary      Click statistics for a link
// @Description  Platform, device and country breakdowns plus the ten most recent clicks. The link must belong to the caller.
// @Tags         stats
// @Produce      json
// @Security     BearerAuth
// @Param        slug  path  string  true  "Link slug"
// @Success      200  {object}  service.LinkStats
// @Failure      401  {string}  string
// @Failure      404  {object}  errorResponse
// @Router       /api/links/{slug}/stats [get]
func (h *StatsHandler) GetLinkStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"}, h.log)
		return
	}

	slug := chi.URLParam(r, "slug")
	stats, err := h.stats.LinkStats(r.Context(), userID, slug)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "link not found"}, h.log)
			return
		}
		h.log.Error("failed to compute link stats", zap.String("slug", slug), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"}, h.log)
		return
	}

	writeJSON(w, http.StatusOK, stats, h.log)
}
