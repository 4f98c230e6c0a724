package trending

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// Redis keys for the trending snapshot.
const (
	scoresKey     = "trending:scores"
	computedAtKey = "trending:computed_at"
)

// Store persists trending snapshots in a Redis sorted set with the compute
// timestamp alongside.
type Store struct {
	client rueidis.Client
	logger *zap.Logger
}

// NewStore creates a new trending snapshot store.
func NewStore(client rueidis.Client, logger *zap.Logger) *Store {
	return &Store{
		client: client,
		logger: logger.Named("trending_store"),
	}
}

// WriteSnapshot replaces the stored ranking with the given snapshot. The old
// sorted set is dropped first so polls that fell out of the ranking do not
// linger.
func (s *Store) WriteSnapshot(ctx context.Context, snapshot *Snapshot) error {
	cmds := make(rueidis.Commands, 0, 3)
	cmds = append(cmds, s.client.B().Del().Key(scoresKey).Build())

	if len(snapshot.Entries) > 0 {
		zadd := s.client.B().Zadd().Key(scoresKey).ScoreMember()
		for _, entry := range snapshot.Entries {
			zadd = zadd.ScoreMember(entry.Score, entry.PollID.String())
		}

		cmds = append(cmds, zadd.Build())
	}

	cmds = append(cmds, s.client.B().Set().
		Key(computedAtKey).
		Value(snapshot.ComputedAt.UTC().Format(time.RFC3339Nano)).
		Build())

	for _, resp := range s.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("failed to write trending snapshot: %w", err)
		}
	}

	s.logger.Debug("Wrote trending snapshot",
		zap.Int("entries", len(snapshot.Entries)),
		zap.Time("computedAt", snapshot.ComputedAt))

	return nil
}

// ReadSnapshot returns up to limit ranked entries, highest score first. A
// store that has never been written returns an empty snapshot with a zero
// computed-at time.
func (s *Store) ReadSnapshot(ctx context.Context, limit int) (*Snapshot, error) {
	snapshot := &Snapshot{Entries: []Entry{}}

	computedAt, err := s.ComputedAt(ctx)
	if err != nil {
		return nil, err
	}

	if computedAt.IsZero() {
		return snapshot, nil
	}

	snapshot.ComputedAt = computedAt

	scores, err := s.client.Do(ctx, s.client.B().Zrange().
		Key(scoresKey).
		Min("0").
		Max(strconv.Itoa(limit-1)).
		Rev().
		Withscores().
		Build()).AsZScores()
	if err != nil {
		return nil, fmt.Errorf("failed to read trending scores: %w", err)
	}

	for _, score := range scores {
		pollID, err := uuid.Parse(score.Member)
		if err != nil {
			return nil, fmt.Errorf("corrupt trending member %q: %w", score.Member, err)
		}

		snapshot.Entries = append(snapshot.Entries, Entry{PollID: pollID, Score: score.Score})
	}

	return snapshot, nil
}

// ScoreOf returns one poll's trending score, with false when the poll is not
// in the current ranking.
func (s *Store) ScoreOf(ctx context.Context, pollID uuid.UUID) (float64, bool, error) {
	score, err := s.client.Do(ctx, s.client.B().Zscore().
		Key(scoresKey).
		Member(pollID.String()).
		Build()).AsFloat64()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return 0, false, nil
		}

		return 0, false, fmt.Errorf("failed to read trending score: %w", err)
	}

	return score, true, nil
}

// ComputedAt returns when the stored snapshot was computed, zero when no
// snapshot exists yet.
func (s *Store) ComputedAt(ctx context.Context) (time.Time, error) {
	raw, err := s.client.Do(ctx, s.client.B().Get().Key(computedAtKey).Build()).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return time.Time{}, nil
		}

		return time.Time{}, fmt.Errorf("failed to read trending timestamp: %w", err)
	}

	computedAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt trending timestamp %q: %w", raw, err)
	}

	return computedAt, nil
}
