package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/pulselabs/pulsevote/internal/database/models"
	"github.com/pulselabs/pulsevote/internal/vote"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// userIDHeader carries the authenticated user id, set by the auth layer in
// front of this service.
const userIDHeader = "X-User-ID"

// VoteService is the vote pipeline surface the handler needs.
type VoteService interface {
	CastVote(ctx context.Context, pollID uuid.UUID, optionIDs []uuid.UUID, identity vote.Identity) (*vote.Receipt, error)
	CheckVote(ctx context.Context, pollID uuid.UUID, identity vote.Identity) (*vote.Permission, error)
}

// VoteHandler handles vote ingestion endpoints.
type VoteHandler struct {
	service VoteService
	logger  *zap.Logger
}

// NewVoteHandler creates a new vote handler.
func NewVoteHandler(service VoteService, logger *zap.Logger) *VoteHandler {
	return &VoteHandler{
		service: service,
		logger:  logger,
	}
}

// castVoteRequest is the body of a vote submission.
type castVoteRequest struct {
	OptionIDs   []uuid.UUID `json:"optionIds"`
	ClientToken string      `json:"clientToken,omitempty"`
}

// CastVote records a vote request and answers with a definitive receipt.
// The status code summarizes the outcome: 201 everything accepted, 207 a
// mix, 409 nothing but duplicates, 410 a poll no longer accepting votes.
func (h *VoteHandler) CastVote(w http.ResponseWriter, req bunrouter.Request) error {
	pollID, err := uuid.Parse(req.Param("id"))
	if err != nil {
		return writeError(w, http.StatusBadRequest, "invalid poll id")
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return writeError(w, http.StatusBadRequest, "failed to read request body")
	}

	var request castVoteRequest
	if err := sonic.Unmarshal(body, &request); err != nil {
		return writeError(w, http.StatusBadRequest, "invalid JSON body")
	}

	identity := vote.Identity{
		UserID:      req.Header.Get(userIDHeader),
		IP:          clientIP(req.Request),
		ClientToken: request.ClientToken,
	}

	receipt, err := h.service.CastVote(req.Context(), pollID, request.OptionIDs, identity)
	if err != nil {
		return h.castVoteError(w, pollID, err)
	}

	return writeJSON(w, castVoteStatus(receipt), receipt)
}

// castVoteError maps pipeline errors onto status codes.
func (h *VoteHandler) castVoteError(w http.ResponseWriter, pollID uuid.UUID, err error) error {
	var verr *vote.ValidationError

	switch {
	case errors.Is(err, models.ErrPollNotFound):
		return writeError(w, http.StatusNotFound, "poll not found")
	case errors.Is(err, vote.ErrNoOptions):
		return writeError(w, http.StatusBadRequest, "no options submitted")
	case errors.As(err, &verr):
		return writeError(w, http.StatusGone, string(verr.Reason))
	default:
		h.logger.Error("Failed to process vote",
			zap.String("pollID", pollID.String()), zap.Error(err))

		return writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// castVoteStatus picks the status code summarizing a receipt.
func castVoteStatus(receipt *vote.Receipt) int {
	switch {
	case len(receipt.Rejected) == 0:
		return http.StatusCreated
	case receipt.Partial():
		return http.StatusMultiStatus
	case receipt.OnlyDuplicates():
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// CheckVote answers whether the caller may still vote on the poll.
func (h *VoteHandler) CheckVote(w http.ResponseWriter, req bunrouter.Request) error {
	pollID, err := uuid.Parse(req.Param("id"))
	if err != nil {
		return writeError(w, http.StatusBadRequest, "invalid poll id")
	}

	identity := vote.Identity{
		UserID:      req.Header.Get(userIDHeader),
		IP:          clientIP(req.Request),
		ClientToken: req.URL.Query().Get("clientToken"),
	}

	permission, err := h.service.CheckVote(req.Context(), pollID, identity)
	if err != nil {
		if errors.Is(err, models.ErrPollNotFound) {
			return writeError(w, http.StatusNotFound, "poll not found")
		}

		h.logger.Error("Failed to check vote permission",
			zap.String("pollID", pollID.String()), zap.Error(err))

		return writeError(w, http.StatusInternalServerError, "internal server error")
	}

	return bunrouter.JSON(w, permission)
}
