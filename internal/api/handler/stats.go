package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pulselabs/pulsevote/internal/database/models"
	"github.com/pulselabs/pulsevote/internal/database/types"
	"github.com/pulselabs/pulsevote/internal/realtime"
	"github.com/pulselabs/pulsevote/internal/trending"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// PollStatsStore is the poll storage surface the stats handler needs.
type PollStatsStore interface {
	GetPoll(ctx context.Context, pollID uuid.UUID) (*types.Poll, error)
	IncrementViews(ctx context.Context, pollID uuid.UUID) error
}

// StatsHandler serves poll counter and connection statistics.
type StatsHandler struct {
	polls    PollStatsStore
	store    *trending.Store
	registry *realtime.Registry
	logger   *zap.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(
	polls PollStatsStore, store *trending.Store, registry *realtime.Registry, logger *zap.Logger,
) *StatsHandler {
	return &StatsHandler{
		polls:    polls,
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

// pollStatsResponse is the stats endpoint body.
type pollStatsResponse struct {
	PollID        uuid.UUID           `json:"pollId"`
	Title         string              `json:"title"`
	IsActive      bool                `json:"isActive"`
	TotalVotes    int64               `json:"totalVotes"`
	LikesCount    int64               `json:"likesCount"`
	ViewsCount    int64               `json:"viewsCount"`
	Options       []types.OptionCount `json:"options"`
	TrendingScore *float64            `json:"trendingScore,omitempty"` // Absent when the poll is unranked
	ComputedAt    *time.Time          `json:"computedAt,omitempty"`    // Absent until a ranking snapshot exists
	Subscribers   int                 `json:"subscribers"`
}

// GetStats returns current counters for a poll together with its trending
// score and live subscriber count. The snapshot's computed-at timestamp is
// reported whenever a ranking exists, ranked or not, so callers can always
// judge staleness. Viewing stats counts as a poll view; the increment happens
// off the response path.
func (h *StatsHandler) GetStats(w http.ResponseWriter, req bunrouter.Request) error {
	pollID, err := uuid.Parse(req.Param("id"))
	if err != nil {
		return writeError(w, http.StatusBadRequest, "invalid poll id")
	}

	poll, err := h.polls.GetPoll(req.Context(), pollID)
	if err != nil {
		if errors.Is(err, models.ErrPollNotFound) {
			return writeError(w, http.StatusNotFound, "poll not found")
		}

		h.logger.Error("Failed to get poll stats",
			zap.String("pollID", pollID.String()), zap.Error(err))

		return writeError(w, http.StatusInternalServerError, "internal server error")
	}

	response := pollStatsResponse{
		PollID:     poll.ID,
		Title:      poll.Title,
		IsActive:   poll.IsActive,
		TotalVotes: poll.TotalVotes,
		LikesCount: poll.LikesCount,
		ViewsCount: poll.ViewsCount,
		Options:    make([]types.OptionCount, 0, len(poll.Options)),
	}

	for _, option := range poll.Options {
		response.Options = append(response.Options, types.OptionCount{
			OptionID:  option.ID,
			VoteCount: option.VoteCount,
		})
	}

	if computedAt, err := h.store.ComputedAt(req.Context()); err != nil {
		h.logger.Warn("Failed to read trending timestamp",
			zap.String("pollID", pollID.String()), zap.Error(err))
	} else if !computedAt.IsZero() {
		response.ComputedAt = &computedAt
	}

	if score, ranked, err := h.store.ScoreOf(req.Context(), pollID); err != nil {
		h.logger.Warn("Failed to read trending score",
			zap.String("pollID", pollID.String()), zap.Error(err))
	} else if ranked {
		response.TrendingScore = &score
	}

	response.Subscribers = h.registry.Stats().Channels[realtime.PollChannel(pollID)]

	go h.recordView(pollID)

	return bunrouter.JSON(w, response)
}

// recordView bumps the poll's view counter without holding up the response.
func (h *StatsHandler) recordView(pollID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.polls.IncrementViews(ctx, pollID); err != nil {
		h.logger.Warn("Failed to record poll view",
			zap.String("pollID", pollID.String()), zap.Error(err))
	}
}

// connectionStatsResponse is the connections endpoint body.
type connectionStatsResponse struct {
	realtime.Stats
}

// GetConnections returns live connection and per-channel subscriber counts.
func (h *StatsHandler) GetConnections(w http.ResponseWriter, _ bunrouter.Request) error {
	return bunrouter.JSON(w, connectionStatsResponse{Stats: h.registry.Stats()})
}
