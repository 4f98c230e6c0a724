package vote_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pulselabs/pulsevote/internal/database/types"
	"github.com/pulselabs/pulsevote/internal/vote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errPollMissing = errors.New("poll missing")

// fakePollStore serves a fixed set of polls.
type fakePollStore struct {
	mu    sync.Mutex
	polls map[uuid.UUID]*types.Poll
	err   error
}

func (f *fakePollStore) GetPoll(_ context.Context, pollID uuid.UUID) (*types.Poll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	poll, ok := f.polls[pollID]
	if !ok {
		return nil, errPollMissing
	}

	return poll, nil
}

// fakeBallotStore mirrors the database's dedup semantics: a ballot is
// accepted only if its (poll, voter, slot) triple was never seen before, and
// counters move in lockstep with acceptance.
type fakeBallotStore struct {
	mu      sync.Mutex
	slots   map[string]uuid.UUID // "pollID/voterKey/slot" -> optionID
	counts  map[uuid.UUID]int64  // optionID -> vote count
	totals  map[uuid.UUID]int64  // pollID -> total votes
	inserts int
}

func newFakeBallotStore() *fakeBallotStore {
	return &fakeBallotStore{
		slots:  make(map[string]uuid.UUID),
		counts: make(map[uuid.UUID]int64),
		totals: make(map[uuid.UUID]int64),
	}
}

func (f *fakeBallotStore) InsertBallots(
	_ context.Context, poll *types.Poll, optionIDs []uuid.UUID, voterKey string,
) ([]uuid.UUID, *types.CounterSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inserts++

	accepted := make([]uuid.UUID, 0, len(optionIDs))

	for _, optionID := range optionIDs {
		key := poll.ID.String() + "/" + voterKey + "/" + types.BallotSlot(poll.AllowMultiple, optionID)
		if _, taken := f.slots[key]; taken {
			continue
		}

		f.slots[key] = optionID
		f.counts[optionID]++
		f.totals[poll.ID]++

		accepted = append(accepted, optionID)
	}

	snapshot := &types.CounterSnapshot{PollID: poll.ID, TotalVotes: f.totals[poll.ID]}
	for _, optionID := range accepted {
		snapshot.Options = append(snapshot.Options, types.OptionCount{
			OptionID:  optionID,
			VoteCount: f.counts[optionID],
		})
	}

	return accepted, snapshot, nil
}

func (f *fakeBallotStore) GetVoterOptionIDs(
	_ context.Context, pollID uuid.UUID, voterKey string,
) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ids []uuid.UUID

	prefix := pollID.String() + "/" + voterKey + "/"
	for key, optionID := range f.slots {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			ids = append(ids, optionID)
		}
	}

	return ids, nil
}

// fakePublisher records every snapshot it receives.
type fakePublisher struct {
	mu        sync.Mutex
	snapshots []*types.CounterSnapshot
}

func (f *fakePublisher) PublishVoteUpdate(snapshot *types.CounterSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.snapshots = append(f.snapshots, snapshot)
}

func (f *fakePublisher) published() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.snapshots)
}

func newTestPoll(allowMultiple bool, optionCount int) *types.Poll {
	poll := &types.Poll{
		ID:            uuid.New(),
		Title:         "favorite color",
		IsActive:      true,
		AllowMultiple: allowMultiple,
		CreatedAt:     time.Now(),
	}

	for i := 0; i < optionCount; i++ {
		poll.Options = append(poll.Options, &types.Option{
			ID:       uuid.New(),
			PollID:   poll.ID,
			Position: i,
		})
	}

	return poll
}

func newTestService(
	polls ...*types.Poll,
) (*vote.Service, *fakeBallotStore, *fakePublisher) {
	store := &fakePollStore{polls: make(map[uuid.UUID]*types.Poll)}
	for _, poll := range polls {
		store.polls[poll.ID] = poll
	}

	ballots := newFakeBallotStore()
	publisher := &fakePublisher{}
	service := vote.NewService(store, ballots, publisher, zap.NewNop())

	return service, ballots, publisher
}

func TestCastVote(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("accepts a first vote and publishes counters", func(t *testing.T) {
		t.Parallel()

		poll := newTestPoll(false, 3)
		service, _, publisher := newTestService(poll)
		identity := vote.Identity{UserID: "1"}

		receipt, err := service.CastVote(ctx, poll.ID, []uuid.UUID{poll.Options[0].ID}, identity)
		require.NoError(t, err)

		assert.Equal(t, []uuid.UUID{poll.Options[0].ID}, receipt.Accepted)
		assert.Empty(t, receipt.Rejected)
		require.NotNil(t, receipt.Counters)
		assert.Equal(t, int64(1), receipt.Counters.TotalVotes)
		assert.Equal(t, 1, publisher.published())
	})

	t.Run("second vote on single-choice poll is a duplicate", func(t *testing.T) {
		t.Parallel()

		poll := newTestPoll(false, 3)
		service, _, publisher := newTestService(poll)
		identity := vote.Identity{UserID: "1"}

		_, err := service.CastVote(ctx, poll.ID, []uuid.UUID{poll.Options[0].ID}, identity)
		require.NoError(t, err)

		// Even a different option is rejected once the voter's slot is taken
		receipt, err := service.CastVote(ctx, poll.ID, []uuid.UUID{poll.Options[1].ID}, identity)
		require.NoError(t, err)

		assert.Empty(t, receipt.Accepted)
		require.Len(t, receipt.Rejected, 1)
		assert.Equal(t, vote.ReasonDuplicateVote, receipt.Rejected[0].Reason)
		assert.True(t, receipt.AllRejected())
		assert.True(t, receipt.OnlyDuplicates())
		assert.Nil(t, receipt.Counters)
		assert.Equal(t, 1, publisher.published(), "rejected votes must not publish")
	})

	t.Run("multi-choice poll accepts distinct options and dedups per option", func(t *testing.T) {
		t.Parallel()

		poll := newTestPoll(true, 3)
		service, _, _ := newTestService(poll)
		identity := vote.Identity{UserID: "1"}

		first, err := service.CastVote(ctx, poll.ID,
			[]uuid.UUID{poll.Options[0].ID, poll.Options[1].ID}, identity)
		require.NoError(t, err)
		assert.Len(t, first.Accepted, 2)

		second, err := service.CastVote(ctx, poll.ID,
			[]uuid.UUID{poll.Options[1].ID, poll.Options[2].ID}, identity)
		require.NoError(t, err)

		assert.Equal(t, []uuid.UUID{poll.Options[2].ID}, second.Accepted)
		require.Len(t, second.Rejected, 1)
		assert.Equal(t, poll.Options[1].ID, second.Rejected[0].OptionID)
		assert.Equal(t, vote.ReasonDuplicateVote, second.Rejected[0].Reason)
		assert.True(t, second.Partial())
		assert.Equal(t, int64(3), second.Counters.TotalVotes)
	})

	t.Run("multiple options on single-choice poll rejects everything", func(t *testing.T) {
		t.Parallel()

		poll := newTestPoll(false, 3)
		service, ballots, _ := newTestService(poll)

		receipt, err := service.CastVote(ctx, poll.ID,
			[]uuid.UUID{poll.Options[0].ID, poll.Options[1].ID}, vote.Identity{UserID: "1"})
		require.NoError(t, err)

		assert.Empty(t, receipt.Accepted)
		assert.Len(t, receipt.Rejected, 2)
		for _, rejection := range receipt.Rejected {
			assert.Equal(t, vote.ReasonMultipleNotAllowed, rejection.Reason)
		}
		assert.Zero(t, ballots.inserts, "no ballot may be attempted")
	})

	t.Run("unknown option rejects the whole request", func(t *testing.T) {
		t.Parallel()

		poll := newTestPoll(true, 2)
		service, ballots, _ := newTestService(poll)
		stranger := uuid.New()

		receipt, err := service.CastVote(ctx, poll.ID,
			[]uuid.UUID{poll.Options[0].ID, stranger}, vote.Identity{UserID: "1"})
		require.NoError(t, err)

		assert.Empty(t, receipt.Accepted)
		require.Len(t, receipt.Rejected, 1)
		assert.Equal(t, stranger, receipt.Rejected[0].OptionID)
		assert.Equal(t, vote.ReasonOptionNotFound, receipt.Rejected[0].Reason)
		assert.Zero(t, ballots.inserts)
	})

	t.Run("inactive poll rejects with validation error", func(t *testing.T) {
		t.Parallel()

		poll := newTestPoll(false, 2)
		poll.IsActive = false
		service, _, _ := newTestService(poll)

		_, err := service.CastVote(ctx, poll.ID, []uuid.UUID{poll.Options[0].ID}, vote.Identity{UserID: "1"})

		var verr *vote.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, vote.ReasonPollInactive, verr.Reason)
	})

	t.Run("expired poll rejects with validation error", func(t *testing.T) {
		t.Parallel()

		poll := newTestPoll(false, 2)
		past := time.Now().Add(-time.Hour)
		poll.ExpiresAt = &past
		service, _, _ := newTestService(poll)

		_, err := service.CastVote(ctx, poll.ID, []uuid.UUID{poll.Options[0].ID}, vote.Identity{UserID: "1"})

		var verr *vote.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, vote.ReasonPollExpired, verr.Reason)
	})

	t.Run("empty option list is an error", func(t *testing.T) {
		t.Parallel()

		poll := newTestPoll(false, 2)
		service, _, _ := newTestService(poll)

		_, err := service.CastVote(ctx, poll.ID, nil, vote.Identity{UserID: "1"})
		assert.ErrorIs(t, err, vote.ErrNoOptions)
	})

	t.Run("repeated option ids collapse to one ballot", func(t *testing.T) {
		t.Parallel()

		poll := newTestPoll(true, 2)
		service, _, _ := newTestService(poll)

		receipt, err := service.CastVote(ctx, poll.ID,
			[]uuid.UUID{poll.Options[0].ID, poll.Options[0].ID}, vote.Identity{UserID: "1"})
		require.NoError(t, err)

		assert.Len(t, receipt.Accepted, 1)
		assert.Empty(t, receipt.Rejected)
		assert.Equal(t, int64(1), receipt.Counters.TotalVotes)
	})
}

func TestCastVoteConcurrency(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("same voter racing on single-choice poll gets exactly one ballot", func(t *testing.T) {
		t.Parallel()

		poll := newTestPoll(false, 4)
		service, ballots, publisher := newTestService(poll)
		identity := vote.Identity{UserID: "1"}

		const racers = 16

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
		)

		for i := 0; i < racers; i++ {
			i := i

			wg.Add(1)

			go func() {
				defer wg.Done()

				receipt, err := service.CastVote(ctx, poll.ID,
					[]uuid.UUID{poll.Options[i%len(poll.Options)].ID}, identity)
				if err != nil {
					return
				}

				mu.Lock()
				accepted += len(receipt.Accepted)
				mu.Unlock()
			}()
		}

		wg.Wait()

		assert.Equal(t, 1, accepted, "exactly one racer may win")
		assert.Equal(t, int64(1), ballots.totals[poll.ID])
		assert.Equal(t, 1, publisher.published())
	})

	t.Run("distinct voters keep counter sums consistent", func(t *testing.T) {
		t.Parallel()

		poll := newTestPoll(false, 3)
		service, ballots, _ := newTestService(poll)

		const voters = 24

		var wg sync.WaitGroup

		for i := 0; i < voters; i++ {
			i := i

			wg.Add(1)

			go func() {
				defer wg.Done()

				identity := vote.Identity{UserID: uuid.NewString()}
				_, _ = service.CastVote(ctx, poll.ID,
					[]uuid.UUID{poll.Options[i%len(poll.Options)].ID}, identity)
			}()
		}

		wg.Wait()

		var optionSum int64
		for _, option := range poll.Options {
			optionSum += ballots.counts[option.ID]
		}

		assert.Equal(t, int64(voters), ballots.totals[poll.ID])
		assert.Equal(t, ballots.totals[poll.ID], optionSum,
			"poll total must equal the sum of option counters")
	})
}

func TestCheckVote(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("fresh voter can vote", func(t *testing.T) {
		t.Parallel()

		poll := newTestPoll(false, 2)
		service, _, _ := newTestService(poll)

		permission, err := service.CheckVote(ctx, poll.ID, vote.Identity{UserID: "1"})
		require.NoError(t, err)

		assert.True(t, permission.CanVote)
		assert.False(t, permission.HasVoted)
	})

	t.Run("voted single-choice voter cannot vote again", func(t *testing.T) {
		t.Parallel()

		poll := newTestPoll(false, 2)
		service, _, _ := newTestService(poll)
		identity := vote.Identity{UserID: "1"}

		_, err := service.CastVote(ctx, poll.ID, []uuid.UUID{poll.Options[0].ID}, identity)
		require.NoError(t, err)

		permission, err := service.CheckVote(ctx, poll.ID, identity)
		require.NoError(t, err)

		assert.False(t, permission.CanVote)
		assert.True(t, permission.HasVoted)
		assert.Equal(t, vote.ReasonDuplicateVote, permission.Reason)
	})

	t.Run("multi-choice voter can vote until options run out", func(t *testing.T) {
		t.Parallel()

		poll := newTestPoll(true, 2)
		service, _, _ := newTestService(poll)
		identity := vote.Identity{UserID: "1"}

		_, err := service.CastVote(ctx, poll.ID, []uuid.UUID{poll.Options[0].ID}, identity)
		require.NoError(t, err)

		permission, err := service.CheckVote(ctx, poll.ID, identity)
		require.NoError(t, err)
		assert.True(t, permission.CanVote)
		assert.True(t, permission.HasVoted)

		_, err = service.CastVote(ctx, poll.ID, []uuid.UUID{poll.Options[1].ID}, identity)
		require.NoError(t, err)

		permission, err = service.CheckVote(ctx, poll.ID, identity)
		require.NoError(t, err)
		assert.False(t, permission.CanVote)
	})

	t.Run("expired poll reports expiry over duplicate", func(t *testing.T) {
		t.Parallel()

		poll := newTestPoll(false, 2)
		past := time.Now().Add(-time.Minute)
		poll.ExpiresAt = &past
		service, _, _ := newTestService(poll)

		permission, err := service.CheckVote(ctx, poll.ID, vote.Identity{UserID: "1"})
		require.NoError(t, err)

		assert.False(t, permission.CanVote)
		assert.Equal(t, vote.ReasonPollExpired, permission.Reason)
	})
}
