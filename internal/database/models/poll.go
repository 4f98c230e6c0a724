package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pulselabs/pulsevote/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ErrPollNotFound is returned when a poll does not exist.
var ErrPollNotFound = errors.New("poll not found")

// PollModel handles database operations for polls and their options.
type PollModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewPoll creates a new poll model.
func NewPoll(db *bun.DB, logger *zap.Logger) *PollModel {
	return &PollModel{
		db:     db,
		logger: logger.Named("db_poll"),
	}
}

// GetPoll retrieves a poll with its options ordered by display position.
func (r *PollModel) GetPoll(ctx context.Context, pollID uuid.UUID) (*types.Poll, error) {
	var poll types.Poll

	err := r.db.NewSelect().
		Model(&poll).
		Relation("Options", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("position ASC")
		}).
		Where("poll.id = ?", pollID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPollNotFound
		}

		return nil, fmt.Errorf("failed to get poll: %w", err)
	}

	return &poll, nil
}

// CreatePoll inserts a poll together with its options in one transaction.
func (r *PollModel) CreatePoll(ctx context.Context, poll *types.Poll) error {
	if poll.ID == uuid.Nil {
		poll.ID = uuid.New()
	}

	if poll.CreatedAt.IsZero() {
		poll.CreatedAt = time.Now()
	}

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(poll).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert poll: %w", err)
		}

		for i, option := range poll.Options {
			if option.ID == uuid.Nil {
				option.ID = uuid.New()
			}

			option.PollID = poll.ID
			option.Position = i
		}

		if len(poll.Options) > 0 {
			if _, err := tx.NewInsert().Model(&poll.Options).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert options: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create poll: %w", err)
	}

	r.logger.Debug("Created poll",
		zap.String("pollID", poll.ID.String()),
		zap.Int("options", len(poll.Options)))

	return nil
}

// IncrementViews bumps a poll's view counter with a single atomic statement.
func (r *PollModel) IncrementViews(ctx context.Context, pollID uuid.UUID) error {
	_, err := r.db.NewUpdate().
		Model((*types.Poll)(nil)).
		Set("views_count = views_count + 1").
		Where("id = ?", pollID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to increment views: %w", err)
	}

	return nil
}

// GetVotablePolls retrieves all polls that are active and not yet expired.
// Used by the trending ranker on its recompute cadence.
func (r *PollModel) GetVotablePolls(ctx context.Context, now time.Time) ([]*types.Poll, error) {
	var polls []*types.Poll

	err := r.db.NewSelect().
		Model(&polls).
		Where("is_active = TRUE").
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get votable polls: %w", err)
	}

	return polls, nil
}

// DeactivateExpired marks polls whose expiry has passed as inactive.
// Returns the number of polls deactivated.
func (r *PollModel) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*types.Poll)(nil)).
		Set("is_active = FALSE").
		Where("is_active = TRUE").
		Where("expires_at IS NOT NULL").
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired polls: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deactivated polls: %w", err)
	}

	return rows, nil
}
