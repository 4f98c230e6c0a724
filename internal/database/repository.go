package database

import (
	"github.com/pulselabs/pulsevote/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	poll *models.PollModel
	vote *models.VoteModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		poll: models.NewPoll(db, logger),
		vote: models.NewVote(db, logger),
	}
}

// Poll returns the poll model.
func (r *Repository) Poll() *models.PollModel {
	return r.poll
}

// Vote returns the vote model.
func (r *Repository) Vote() *models.VoteModel {
	return r.vote
}
