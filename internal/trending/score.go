package trending

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Entry is one ranked poll in a trending snapshot.
type Entry struct {
	PollID uuid.UUID `json:"pollId"`
	Score  float64   `json:"score"`
}

// Snapshot is a full trending ranking with the time it was computed.
// Consumers always see the timestamp next to the scores so staleness is
// visible, never hidden.
type Snapshot struct {
	Entries    []Entry   `json:"entries"`
	ComputedAt time.Time `json:"computedAt"`
}

// Score computes a poll's decayed popularity. Recent vote velocity decays
// exponentially with poll age while likes contribute a flat weighted term,
// so an old poll with a burst of likes cannot crowd out genuinely active
// ones forever.
func Score(votesInWindow, likes int64, age, halfLife time.Duration, likeWeight float64) float64 {
	decay := math.Exp(-age.Seconds() / halfLife.Seconds())
	return float64(votesInWindow)*decay + likeWeight*float64(likes)
}
