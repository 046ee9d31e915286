package models

import "time"

// BadgeUnlock records that an actor earned a badge. There is at most one
// unlock per (actor, badge) pair, ever.
type BadgeUnlock struct {
	ActorID    string    `json:"actor_id"`
	BadgeID    string    `json:"badge_id"`
	UnlockedAt time.Time `json:"unlocked_at"`
}
