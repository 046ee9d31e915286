package repository

import "errors"

var (
	// ErrDuplicateEvent means an event with the same identifier was already
	// appended. Callers treat this as an already-successful submission, not
	// a failure.
	ErrDuplicateEvent = errors.New("event already recorded")

	// ErrUnknownActor means the actor has no ledger row yet.
	ErrUnknownActor = errors.New("unknown actor")

	// ErrUnknownEvent means no event with that identifier was ever appended.
	ErrUnknownEvent = errors.New("unknown event")
)
