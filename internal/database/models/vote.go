package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pulselabs/pulsevote/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// VoteModel handles database operations for ballots and the denormalized
// counters they drive.
type VoteModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewVote creates a new vote model.
func NewVote(db *bun.DB, logger *zap.Logger) *VoteModel {
	return &VoteModel{
		db:     db,
		logger: logger.Named("db_vote"),
	}
}

// InsertBallots records ballots for the given options and applies the counter
// increments, all inside one transaction. Deduplication happens at insert time
// through the unique (poll_id, voter_key, slot) index: an option whose insert
// hits the conflict clause is reported back as a duplicate, not an error.
// Accepted option counters and the poll total are incremented with
// single-statement atomic updates, so concurrent callers never lose updates,
// and any failure rolls the whole unit back.
func (r *VoteModel) InsertBallots(
	ctx context.Context, poll *types.Poll, optionIDs []uuid.UUID, voterKey string,
) ([]uuid.UUID, *types.CounterSnapshot, error) {
	accepted := make([]uuid.UUID, 0, len(optionIDs))
	snapshot := &types.CounterSnapshot{PollID: poll.ID}

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now()

		for _, optionID := range optionIDs {
			record := &types.VoteRecord{
				ID:        uuid.New(),
				PollID:    poll.ID,
				OptionID:  optionID,
				VoterKey:  voterKey,
				Slot:      types.BallotSlot(poll.AllowMultiple, optionID),
				CreatedAt: now,
			}

			res, err := tx.NewInsert().
				Model(record).
				On("CONFLICT (poll_id, voter_key, slot) DO NOTHING").
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to insert ballot: %w", err)
			}

			rows, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read ballot insert result: %w", err)
			}

			if rows == 1 {
				accepted = append(accepted, optionID)
			}
		}

		if len(accepted) == 0 {
			return nil
		}

		// Single-statement increments; never read-modify-write
		_, err := tx.NewUpdate().
			Model((*types.Option)(nil)).
			Set("vote_count = vote_count + 1").
			Where("id IN (?)", bun.In(accepted)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to increment option counters: %w", err)
		}

		err = tx.NewUpdate().
			Model((*types.Poll)(nil)).
			Set("total_votes = total_votes + ?", len(accepted)).
			Where("id = ?", poll.ID).
			Returning("total_votes").
			Scan(ctx, &snapshot.TotalVotes)
		if err != nil {
			return fmt.Errorf("failed to increment poll total: %w", err)
		}

		err = tx.NewSelect().
			Model((*types.Option)(nil)).
			ColumnExpr("id AS option_id, vote_count").
			Where("id IN (?)", bun.In(accepted)).
			Scan(ctx, &snapshot.Options)
		if err != nil {
			return fmt.Errorf("failed to read counter snapshot: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	r.logger.Debug("Recorded ballots",
		zap.String("pollID", poll.ID.String()),
		zap.Int("requested", len(optionIDs)),
		zap.Int("accepted", len(accepted)))

	return accepted, snapshot, nil
}

// GetVoterOptionIDs returns the option ids the voter has already recorded
// ballots for on this poll.
func (r *VoteModel) GetVoterOptionIDs(
	ctx context.Context, pollID uuid.UUID, voterKey string,
) ([]uuid.UUID, error) {
	var optionIDs []uuid.UUID

	err := r.db.NewSelect().
		Model((*types.VoteRecord)(nil)).
		Column("option_id").
		Where("poll_id = ?", pollID).
		Where("voter_key = ?", voterKey).
		Scan(ctx, &optionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get voter ballots: %w", err)
	}

	return optionIDs, nil
}

// CountVotesSince counts ballots recorded for a poll after the given time.
// Feeds the trending ranker's vote velocity term.
func (r *VoteModel) CountVotesSince(
	ctx context.Context, pollID uuid.UUID, since time.Time,
) (int64, error) {
	count, err := r.db.NewSelect().
		Model((*types.VoteRecord)(nil)).
		Where("poll_id = ?", pollID).
		Where("created_at >= ?", since).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count window votes: %w", err)
	}

	return int64(count), nil
}
