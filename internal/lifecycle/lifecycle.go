package lifecycle

import "fmt"

// Status is the lifecycle state of a scheduled post.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusScheduled  Status = "scheduled"
	StatusPublishing Status = "publishing"
	StatusPublished  Status = "published"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// ErrInvalidTransition is returned when a mutation would move a post
// through a transition that is not in the legal set. The post must be
// left untouched when this error is returned.
type ErrInvalidTransition struct {
	From Status
	To   Status
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

// transitions is the full set of legal moves. Anything absent here is
// rejected.
var transitions = map[Status][]Status{
	StatusDraft:      {StatusScheduled, StatusCancelled},
	StatusScheduled:  {StatusPublishing, StatusCancelled},
	StatusPublishing: {StatusPublished, StatusScheduled, StatusFailed},
	StatusFailed:     {StatusScheduled},
	StatusPublished:  {},
	StatusCancelled:  {},
}

// Valid reports whether s is a known status value.
func Valid(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to, returning *ErrInvalidTransition when
// the move is not legal.
func Transition(from, to Status) error {
	if !CanTransition(from, to) {
		return &ErrInvalidTransition{From: from, To: to}
	}
	return nil
}

// IsTerminal reports whether s has no automatic outgoing transitions.
// Failed posts are terminal too, but can be reopened by an explicit
// retry request (StatusFailed -> StatusScheduled).
func IsTerminal(s Status) bool {
	return s == StatusPublished || s == StatusCancelled || s == StatusFailed
}

// IsDeletable reports whether a post in state s may be physically
// removed. Published work is never deleted, and in-flight posts are
// owned by the publisher until they settle.
func IsDeletable(s Status) bool {
	return s == StatusDraft || s == StatusFailed || s == StatusCancelled
}
