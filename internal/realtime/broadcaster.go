package realtime

import (
	"github.com/bytedance/sonic"
	"github.com/pulselabs/pulsevote/internal/database/types"
	"go.uber.org/zap"
)

// Broadcaster fans counter snapshots out to subscribed connections. Delivery
// is best-effort: a slow or dead subscriber is detached, never waited on.
type Broadcaster struct {
	registry *Registry
	logger   *zap.Logger
}

// NewBroadcaster creates a new broadcaster over the given registry.
func NewBroadcaster(registry *Registry, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		logger:   logger.Named("realtime_broadcaster"),
	}
}

// PublishVoteUpdate delivers a counter snapshot to the poll's channel and the
// global channel. Never blocks the caller. Two publishes racing between
// commit and enqueue may reach a subscriber out of commit order; events carry
// absolute counter values rather than increments, so the newest applied
// snapshot is always the converged state.
func (b *Broadcaster) PublishVoteUpdate(snapshot *types.CounterSnapshot) {
	payload, err := sonic.Marshal(NewVoteUpdate(snapshot))
	if err != nil {
		b.logger.Error("Failed to marshal vote update",
			zap.String("pollID", snapshot.PollID.String()), zap.Error(err))
		return
	}

	delivered := b.Broadcast(PollChannel(snapshot.PollID), payload)
	delivered += b.Broadcast(GlobalChannel, payload)

	b.logger.Debug("Vote update published",
		zap.String("pollID", snapshot.PollID.String()),
		zap.Int("delivered", delivered))
}

// Broadcast enqueues a payload for every subscriber of a channel and returns
// the delivery count. Connections that cannot take the payload are handed
// back to the registry asynchronously; one bad subscriber never affects the
// rest.
func (b *Broadcaster) Broadcast(channel string, payload []byte) int {
	delivered := 0

	for _, conn := range b.registry.SubscribersOf(channel) {
		if conn.enqueue(payload) {
			delivered++
			continue
		}

		b.logger.Warn("Detaching unresponsive subscriber",
			zap.String("connID", conn.ID().String()),
			zap.String("channel", channel))

		go b.registry.Remove(conn)
	}

	return delivered
}
