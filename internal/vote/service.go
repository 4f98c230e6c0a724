package vote

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pulselabs/pulsevote/internal/database/dbretry"
	"github.com/pulselabs/pulsevote/internal/database/types"
	"go.uber.org/zap"
)

// ErrNoOptions is returned when a vote request names no options.
var ErrNoOptions = errors.New("vote request contains no options")

// PollStore provides poll snapshots for validation.
type PollStore interface {
	GetPoll(ctx context.Context, pollID uuid.UUID) (*types.Poll, error)
}

// BallotStore records ballots and applies counter increments as one atomic
// unit, reporting per-option acceptance.
type BallotStore interface {
	InsertBallots(
		ctx context.Context, poll *types.Poll, optionIDs []uuid.UUID, voterKey string,
	) ([]uuid.UUID, *types.CounterSnapshot, error)
	GetVoterOptionIDs(ctx context.Context, pollID uuid.UUID, voterKey string) ([]uuid.UUID, error)
}

// Publisher receives counter snapshots for fan-out after accepted votes.
// Implementations must not block the caller.
type Publisher interface {
	PublishVoteUpdate(snapshot *types.CounterSnapshot)
}

// Receipt is the definitive outcome of one vote request.
type Receipt struct {
	PollID   uuid.UUID              `json:"pollId"`
	Accepted []uuid.UUID            `json:"accepted"`
	Rejected []Rejection            `json:"rejected"`
	Counters *types.CounterSnapshot `json:"counters,omitempty"` // Set when at least one ballot was accepted
}

// AllRejected reports whether no ballot was accepted.
func (r *Receipt) AllRejected() bool {
	return len(r.Accepted) == 0
}

// Partial reports whether the request had mixed accept/reject outcomes.
func (r *Receipt) Partial() bool {
	return len(r.Accepted) > 0 && len(r.Rejected) > 0
}

// OnlyDuplicates reports whether every rejection was a duplicate ballot.
func (r *Receipt) OnlyDuplicates() bool {
	if len(r.Rejected) == 0 {
		return false
	}

	for _, rejection := range r.Rejected {
		if rejection.Reason != ReasonDuplicateVote {
			return false
		}
	}

	return true
}

// Permission is the answer to a can-vote probe.
type Permission struct {
	CanVote  bool         `json:"canVote"`
	HasVoted bool         `json:"hasVoted"`
	Reason   RejectReason `json:"reason,omitempty"`
}

// Service runs the vote ingestion pipeline: identity-keyed validation, atomic
// ballot recording with counter aggregation, then fire-and-forget fan-out.
type Service struct {
	polls     PollStore
	ballots   BallotStore
	publisher Publisher
	logger    *zap.Logger
}

// NewService creates a new vote service.
func NewService(polls PollStore, ballots BallotStore, publisher Publisher, logger *zap.Logger) *Service {
	return &Service{
		polls:     polls,
		ballots:   ballots,
		publisher: publisher,
		logger:    logger.Named("vote_service"),
	}
}

// CastVote validates and records a vote request, returning a definitive
// receipt. Duplicate detection is enforced by the ballot store at commit
// time, so two concurrent requests from the same voter can never both
// succeed on a single-choice poll. Transient commit conflicts are retried a
// bounded number of times before surfacing.
func (s *Service) CastVote(
	ctx context.Context, pollID uuid.UUID, optionIDs []uuid.UUID, identity Identity,
) (*Receipt, error) {
	if len(optionIDs) == 0 {
		return nil, ErrNoOptions
	}

	poll, err := s.polls.GetPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	if !poll.IsActive {
		return nil, &ValidationError{Reason: ReasonPollInactive}
	}

	if poll.IsExpired(now) {
		return nil, &ValidationError{Reason: ReasonPollExpired}
	}

	optionIDs = dedupe(optionIDs)
	receipt := &Receipt{PollID: pollID, Accepted: []uuid.UUID{}, Rejected: []Rejection{}}

	// Any unknown option rejects the whole request
	for _, optionID := range optionIDs {
		if !poll.HasOption(optionID) {
			receipt.Rejected = append(receipt.Rejected, Rejection{
				OptionID: optionID,
				Reason:   ReasonOptionNotFound,
			})
		}
	}

	if len(receipt.Rejected) > 0 {
		return receipt, nil
	}

	if !poll.AllowMultiple && len(optionIDs) > 1 {
		for _, optionID := range optionIDs {
			receipt.Rejected = append(receipt.Rejected, Rejection{
				OptionID: optionID,
				Reason:   ReasonMultipleNotAllowed,
			})
		}

		return receipt, nil
	}

	voterKey := identity.VoterKey()

	type ballotResult struct {
		accepted []uuid.UUID
		snapshot *types.CounterSnapshot
	}

	result, err := dbretry.Operation(ctx, func(ctx context.Context) (ballotResult, error) {
		accepted, snapshot, err := s.ballots.InsertBallots(ctx, poll, optionIDs, voterKey)
		return ballotResult{accepted: accepted, snapshot: snapshot}, err
	})
	if err != nil {
		return nil, err
	}

	receipt.Accepted = result.accepted
	for _, optionID := range optionIDs {
		if !containsID(result.accepted, optionID) {
			receipt.Rejected = append(receipt.Rejected, Rejection{
				OptionID: optionID,
				Reason:   ReasonDuplicateVote,
			})
		}
	}

	if len(receipt.Accepted) > 0 {
		receipt.Counters = result.snapshot

		// Fan-out never delays or fails the originating vote
		s.publisher.PublishVoteUpdate(result.snapshot)
	}

	s.logger.Debug("Vote processed",
		zap.String("pollID", pollID.String()),
		zap.String("voterKey", voterKey),
		zap.Int("accepted", len(receipt.Accepted)),
		zap.Int("rejected", len(receipt.Rejected)))

	return receipt, nil
}

// CheckVote reports whether the identity may still vote on the poll.
func (s *Service) CheckVote(
	ctx context.Context, pollID uuid.UUID, identity Identity,
) (*Permission, error) {
	poll, err := s.polls.GetPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}

	voterKey := identity.VoterKey()

	recorded, err := s.ballots.GetVoterOptionIDs(ctx, pollID, voterKey)
	if err != nil {
		return nil, err
	}

	permission := &Permission{HasVoted: len(recorded) > 0}

	now := time.Now()

	switch {
	case !poll.IsActive:
		permission.Reason = ReasonPollInactive
	case poll.IsExpired(now):
		permission.Reason = ReasonPollExpired
	case !poll.AllowMultiple && permission.HasVoted:
		permission.Reason = ReasonDuplicateVote
	case poll.AllowMultiple && len(recorded) >= len(poll.Options):
		permission.Reason = ReasonDuplicateVote
	default:
		permission.CanVote = true
	}

	return permission, nil
}

// dedupe drops repeated option ids while preserving order.
func dedupe(optionIDs []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(optionIDs))
	result := make([]uuid.UUID, 0, len(optionIDs))

	for _, id := range optionIDs {
		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}

		result = append(result, id)
	}

	return result
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}

	return false
}
