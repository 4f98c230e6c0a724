package types

import (
	"time"

	"github.com/google/uuid"
)

// Poll represents a poll with its denormalized counters.
// Invariant: TotalVotes always equals the sum of its options' vote counters;
// both are only ever mutated inside the same vote transaction.
type Poll struct {
	ID            uuid.UUID  `bun:",pk,type:uuid" json:"id"`
	Title         string     `bun:",notnull"      json:"title"`
	IsActive      bool       `bun:",notnull"      json:"isActive"`
	AllowMultiple bool       `bun:",notnull"      json:"allowMultiple"`
	ExpiresAt     *time.Time `bun:",nullzero"     json:"expiresAt,omitempty"` // Null for polls that never expire
	TotalVotes    int64      `bun:",notnull"      json:"totalVotes"`
	LikesCount    int64      `bun:",notnull"      json:"likesCount"` // Maintained by the like collaborator, read-only here
	ViewsCount    int64      `bun:",notnull"      json:"viewsCount"`
	CreatedAt     time.Time  `bun:",notnull"      json:"createdAt"`

	Options []*Option `bun:"rel:has-many,join:id=poll_id" json:"options,omitempty"`
}

// IsExpired checks if the poll has passed its expiry timestamp.
func (p *Poll) IsExpired(now time.Time) bool {
	if p.ExpiresAt == nil {
		return false
	}

	return now.After(*p.ExpiresAt)
}

// CanVote checks if the poll can accept votes.
func (p *Poll) CanVote(now time.Time) bool {
	return p.IsActive && !p.IsExpired(now)
}

// HasOption checks if the given option belongs to this poll.
func (p *Poll) HasOption(optionID uuid.UUID) bool {
	for _, option := range p.Options {
		if option.ID == optionID {
			return true
		}
	}

	return false
}

// Option represents a single poll choice with its denormalized vote counter.
type Option struct {
	ID        uuid.UUID `bun:",pk,type:uuid"  json:"id"`
	PollID    uuid.UUID `bun:",notnull,type:uuid" json:"pollId"`
	Text      string    `bun:",notnull"       json:"text"`
	Position  int       `bun:",notnull"       json:"position"`
	VoteCount int64     `bun:",notnull"       json:"voteCount"`
}

// OptionCount is a single option's counter value inside a snapshot.
type OptionCount struct {
	OptionID  uuid.UUID `json:"optionId"`
	VoteCount int64     `json:"voteCount"`
}

// CounterSnapshot is the post-update counter state returned by a vote
// transaction: the poll total plus the values of every option touched.
type CounterSnapshot struct {
	PollID     uuid.UUID     `json:"pollId"`
	TotalVotes int64         `json:"totalVotes"`
	Options    []OptionCount `json:"options"`
}
