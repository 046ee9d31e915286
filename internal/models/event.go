package models

import "time"

// EventKind identifies what kind of occurrence earned (or removed) points.
type EventKind string

const (
	EventTaskCompletion   EventKind = "task_completion"
	EventGameResult       EventKind = "game_result"
	EventStreakBonus      EventKind = "streak_bonus"
	EventManualAdjustment EventKind = "manual_adjustment"
)

// Valid reports whether the kind is one of the known event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case EventTaskCompletion, EventGameResult, EventStreakBonus, EventManualAdjustment:
		return true
	}
	return false
}

// CountsAsActivity reports whether events of this kind advance the daily
// streak and refresh the actor's last-activity date. Bonuses and manual
// corrections are not activity.
func (k EventKind) CountsAsActivity() bool {
	return k == EventTaskCompletion || k == EventGameResult
}

// Event is an immutable record of a single point-affecting occurrence.
// The ID is the idempotency key: an event with a given ID is applied to
// the ledger at most once, no matter how often submission is retried.
type Event struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	Kind       EventKind `json:"kind"`
	Delta      int       `json:"delta"`
	OccurredAt time.Time `json:"occurred_at"` // caller clock, drives streak day arithmetic
	SourceRef  string    `json:"source_ref,omitempty"` // task id, game session id, quiz id
	RecordedAt time.Time `json:"recorded_at"` // server clock, set on append
}
