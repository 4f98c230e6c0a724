package handler

import (
	"net/http"
	"strconv"

	"github.com/pulselabs/pulsevote/internal/setup/config"
	"github.com/pulselabs/pulsevote/internal/trending"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

const defaultTrendingLimit = 50

// TrendingHandler serves the ranked trending snapshot.
type TrendingHandler struct {
	store  *trending.Store
	cfg    *config.Trending
	logger *zap.Logger
}

// NewTrendingHandler creates a new trending handler.
func NewTrendingHandler(store *trending.Store, cfg *config.Trending, logger *zap.Logger) *TrendingHandler {
	return &TrendingHandler{
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// GetTrending returns the current ranking, highest score first, with the
// time it was computed. Serves whatever snapshot exists; an empty ranking is
// a valid answer, never an error.
func (h *TrendingHandler) GetTrending(w http.ResponseWriter, req bunrouter.Request) error {
	limit := h.limit()

	if raw := req.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return writeError(w, http.StatusBadRequest, "invalid limit")
		}

		if parsed < limit {
			limit = parsed
		}
	}

	snapshot, err := h.store.ReadSnapshot(req.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to read trending snapshot", zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "internal server error")
	}

	return bunrouter.JSON(w, snapshot)
}

func (h *TrendingHandler) limit() int {
	if h.cfg.MaxEntries > 0 {
		return h.cfg.MaxEntries
	}

	return defaultTrendingLimit
}
