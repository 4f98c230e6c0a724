package trending

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/pulselabs/pulsevote/internal/database"
	"github.com/pulselabs/pulsevote/internal/database/types"
	"github.com/pulselabs/pulsevote/internal/setup/config"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Defaults applied when the trending config section leaves fields unset.
const (
	defaultWindowHours   = 168
	defaultHalfLifeHours = 36.0
	defaultLikeWeight    = 2.0
	defaultMaxEntries    = 50
	defaultMaxConcurrent = 8
)

// Ranker recomputes the trending ranking from scratch on every run. It never
// executes on the vote path; votes only become visible to it through the
// ballots they leave behind.
type Ranker struct {
	db     database.Client
	store  *Store
	cfg    *config.Trending
	logger *zap.Logger
}

// NewRanker creates a new trending ranker.
func NewRanker(db database.Client, store *Store, cfg *config.Trending, logger *zap.Logger) *Ranker {
	return &Ranker{
		db:     db,
		store:  store,
		cfg:    cfg,
		logger: logger.Named("trending_ranker"),
	}
}

// scoredPoll pairs a poll with its computed score for ranking.
type scoredPoll struct {
	poll  *types.Poll
	score float64
}

// RunOnce computes and stores one full trending snapshot.
func (r *Ranker) RunOnce(ctx context.Context) (*Snapshot, error) {
	now := time.Now()

	polls, err := r.db.Model().Poll().GetVotablePolls(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load polls for ranking: %w", err)
	}

	windowStart := now.Add(-r.window())

	p := pool.NewWithResults[scoredPoll]().
		WithContext(ctx).
		WithMaxGoroutines(r.maxConcurrent()).
		WithCancelOnError()

	for _, poll := range polls {
		p.Go(func(ctx context.Context) (scoredPoll, error) {
			votes, err := r.db.Model().Vote().CountVotesSince(ctx, poll.ID, windowStart)
			if err != nil {
				return scoredPoll{}, err
			}

			score := Score(votes, poll.LikesCount, now.Sub(poll.CreatedAt), r.halfLife(), r.likeWeight())

			return scoredPoll{poll: poll, score: score}, nil
		})
	}

	scored, err := p.Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to score polls: %w", err)
	}

	sortScored(scored)

	if limit := r.maxEntries(); len(scored) > limit {
		scored = scored[:limit]
	}

	snapshot := &Snapshot{
		Entries:    make([]Entry, 0, len(scored)),
		ComputedAt: now.UTC(),
	}

	for _, sp := range scored {
		snapshot.Entries = append(snapshot.Entries, Entry{PollID: sp.poll.ID, Score: sp.score})
	}

	if err := r.store.WriteSnapshot(ctx, snapshot); err != nil {
		return nil, err
	}

	r.logger.Info("Trending ranking recomputed",
		zap.Int("polls", len(polls)),
		zap.Int("ranked", len(snapshot.Entries)))

	return snapshot, nil
}

// sortScored orders polls by descending score, equal scores broken in favor
// of the newer poll.
func sortScored(scored []scoredPoll) {
	slices.SortFunc(scored, func(a, b scoredPoll) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}

		return b.poll.CreatedAt.Compare(a.poll.CreatedAt)
	})
}

func (r *Ranker) window() time.Duration {
	if r.cfg.WindowHours > 0 {
		return time.Duration(r.cfg.WindowHours) * time.Hour
	}

	return defaultWindowHours * time.Hour
}

func (r *Ranker) halfLife() time.Duration {
	if r.cfg.HalfLifeHours > 0 {
		return time.Duration(r.cfg.HalfLifeHours * float64(time.Hour))
	}

	return time.Duration(defaultHalfLifeHours * float64(time.Hour))
}

func (r *Ranker) likeWeight() float64 {
	if r.cfg.LikeWeight > 0 {
		return r.cfg.LikeWeight
	}

	return defaultLikeWeight
}

func (r *Ranker) maxEntries() int {
	if r.cfg.MaxEntries > 0 {
		return r.cfg.MaxEntries
	}

	return defaultMaxEntries
}

func (r *Ranker) maxConcurrent() int {
	if r.cfg.MaxConcurrent > 0 {
		return r.cfg.MaxConcurrent
	}

	return defaultMaxConcurrent
}
