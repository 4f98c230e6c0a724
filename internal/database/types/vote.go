package types

import (
	"time"

	"github.com/google/uuid"
)

// SingleChoiceSlot is the slot value used for ballots on polls that do not
// allow multiple selections. With it, the unique index on
// (poll_id, voter_key, slot) enforces at most one ballot per voter on
// single-choice polls, while multi-choice polls store the option id as the
// slot and get at most one ballot per (voter, option).
const SingleChoiceSlot = "single"

// VoteRecord represents one accepted ballot.
type VoteRecord struct {
	ID        uuid.UUID `bun:",pk,type:uuid"      json:"id"`
	PollID    uuid.UUID `bun:",notnull,type:uuid" json:"pollId"`
	OptionID  uuid.UUID `bun:",notnull,type:uuid" json:"optionId"`
	VoterKey  string    `bun:",notnull"           json:"voterKey"`
	Slot      string    `bun:",notnull"           json:"-"` // Dedup discriminator, see SingleChoiceSlot
	CreatedAt time.Time `bun:",notnull"           json:"createdAt"`
}

// BallotSlot returns the slot value for a ballot on the given kind of poll.
func BallotSlot(allowMultiple bool, optionID uuid.UUID) string {
	if allowMultiple {
		return optionID.String()
	}

	return SingleChoiceSlot
}
