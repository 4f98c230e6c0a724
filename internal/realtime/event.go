package realtime

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pulselabs/pulsevote/internal/database/types"
)

// GlobalChannel receives every vote update regardless of poll.
const GlobalChannel = "global"

// Channel name prefixes.
const (
	pollChannelPrefix = "poll:"
	userChannelPrefix = "user:"
)

// PollChannel returns the channel name carrying updates for one poll.
func PollChannel(pollID uuid.UUID) string {
	return pollChannelPrefix + pollID.String()
}

// UserChannel returns the channel name addressing one user.
func UserChannel(userID string) string {
	return userChannelPrefix + userID
}

// ValidChannel reports whether a client-supplied channel name is one the
// registry accepts subscriptions for.
func ValidChannel(name string) bool {
	if name == GlobalChannel {
		return true
	}

	if rest, ok := strings.CutPrefix(name, pollChannelPrefix); ok {
		_, err := uuid.Parse(rest)
		return err == nil
	}

	if rest, ok := strings.CutPrefix(name, userChannelPrefix); ok {
		return rest != ""
	}

	return false
}

// Client message types.
const (
	msgPing         = "ping"
	msgPong         = "pong"
	msgSubscribe    = "subscribe"
	msgUnsubscribe  = "unsubscribe"
	msgSubscribed   = "subscribed"
	msgUnsubscribed = "unsubscribed"
	msgError        = "error"

	// EventVoteUpdate is the type tag of counter delta events.
	EventVoteUpdate = "vote_update"
)

// clientMessage is the envelope of every inbound client message.
type clientMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
}

// serverMessage is the envelope of protocol replies (acks, pongs, errors).
type serverMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Message string `json:"message,omitempty"`
}

// OptionDelta carries one option's counter value after an update.
type OptionDelta struct {
	OptionID uuid.UUID `json:"optionId"`
	NewCount int64     `json:"newCount"`
}

// VoteUpdate is the delta event fanned out after accepted votes. Counter
// values are the post-update state, not increments, so late or dropped
// events never desynchronize subscribers.
type VoteUpdate struct {
	Type         string        `json:"type"`
	PollID       uuid.UUID     `json:"pollId"`
	TotalVotes   int64         `json:"totalVotes"`
	OptionDeltas []OptionDelta `json:"optionDeltas"`
	Timestamp    time.Time     `json:"timestamp"`
}

// NewVoteUpdate builds the delta event for a counter snapshot.
func NewVoteUpdate(snapshot *types.CounterSnapshot) *VoteUpdate {
	event := &VoteUpdate{
		Type:         EventVoteUpdate,
		PollID:       snapshot.PollID,
		TotalVotes:   snapshot.TotalVotes,
		OptionDeltas: make([]OptionDelta, 0, len(snapshot.Options)),
		Timestamp:    time.Now().UTC(),
	}

	for _, option := range snapshot.Options {
		event.OptionDeltas = append(event.OptionDeltas, OptionDelta{
			OptionID: option.OptionID,
			NewCount: option.VoteCount,
		})
	}

	return event
}
