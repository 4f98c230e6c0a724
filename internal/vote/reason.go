package vote

import (
	"fmt"

	"github.com/google/uuid"
)

// RejectReason classifies why a ballot was not accepted.
type RejectReason string

const (
	ReasonPollInactive       RejectReason = "PollInactive"
	ReasonPollExpired        RejectReason = "PollExpired"
	ReasonOptionNotFound     RejectReason = "OptionNotFound"
	ReasonDuplicateVote      RejectReason = "DuplicateVote"
	ReasonMultipleNotAllowed RejectReason = "MultipleNotAllowed"
)

// Rejection reports the outcome for a single requested option.
type Rejection struct {
	OptionID uuid.UUID    `json:"optionId"`
	Reason   RejectReason `json:"reason"`
}

// ValidationError rejects an entire vote request before any ballot is
// attempted, e.g. for an inactive or expired poll. Always recoverable and
// surfaced to the caller as a structured rejection.
type ValidationError struct {
	Reason RejectReason
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("vote rejected: %s", e.Reason)
}
