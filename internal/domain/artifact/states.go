package artifact

import (
	portal_errors "medportal/pkg/errors"
)

var transitions = map[Status][]Status{
	StatusUnconfirmed: {StatusCreated, StatusFailed},
	StatusCreated:     {StatusReviewed, StatusRevoked},
	StatusReviewed:    {StatusRevoked},
}

// CanTransition reports whether a record may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates and applies a status change.
func (r *Record) Transition(to Status) error {
	if !to.Valid() || !CanTransition(r.Status, to) {
		return portal_errors.ErrInvalidTransition
	}
	r.Status = to
	return nil
}
