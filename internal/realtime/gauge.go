package realtime

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"
)

// Redis keys for connection visibility.
const (
	connectionCountKey = "realtime:connections"
	channelCountsKey   = "realtime:channels"
)

// Gauge mirrors connection counts into Redis so other instances and
// dashboards can see fan-out load without asking this process.
type Gauge struct {
	client rueidis.Client
}

// NewGauge creates a new connection gauge.
func NewGauge(client rueidis.Client) *Gauge {
	return &Gauge{client: client}
}

// Record overwrites the stored counts with the given registry snapshot.
func (g *Gauge) Record(ctx context.Context, stats Stats) error {
	cmds := make(rueidis.Commands, 0, 2+len(stats.Channels))
	cmds = append(cmds, g.client.B().Set().
		Key(connectionCountKey).
		Value(strconv.Itoa(stats.TotalConnections)).
		Build())

	// Replace the hash wholesale so channels with no subscribers disappear
	cmds = append(cmds, g.client.B().Del().Key(channelCountsKey).Build())

	for channel, count := range stats.Channels {
		cmds = append(cmds, g.client.B().Hset().
			Key(channelCountsKey).
			FieldValue().
			FieldValue(channel, strconv.Itoa(count)).
			Build())
	}

	for _, resp := range g.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("failed to record connection gauge: %w", err)
		}
	}

	return nil
}
