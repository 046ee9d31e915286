package models

import "time"

// ActorKind distinguishes the two populations that earn points.
type ActorKind string

const (
	KindStudent ActorKind = "student"
	KindSchool  ActorKind = "school"
)

// Valid reports whether the kind is one of the known actor kinds.
func (k ActorKind) Valid() bool {
	return k == KindStudent || k == KindSchool
}

// Actor is the ledger row for a student or a school. School rows aggregate
// the points of their students and never receive events of their own.
type Actor struct {
	ID           string
	Kind         ActorKind
	Name         string
	Email        string
	SchoolID     string // empty for schools
	City         string // schools only
	Region       string // schools only
	Balance      int
	Streak       int
	LastActivity *time.Time
	CreatedAt    time.Time
}

// ActorSummary is the dashboard view of an actor: ledger state plus the
// actor's current rank and unlocked badges.
type ActorSummary struct {
	ID           string       `json:"id"`
	Kind         ActorKind    `json:"kind"`
	Name         string       `json:"name"`
	SchoolID     string       `json:"school_id,omitempty"`
	Balance      int          `json:"balance"`
	Streak       int          `json:"streak"`
	LastActivity *time.Time   `json:"last_activity,omitempty"`
	Rank         int          `json:"rank,omitempty"`
	SchoolRank   int          `json:"school_rank,omitempty"` // students with a school only
	Badges       []BadgeUnlock `json:"badges,omitempty"`
}

// LeaderboardEntry is one row of a ranked listing.
type LeaderboardEntry struct {
	Rank         int        `json:"rank"`
	ActorID      string     `json:"actor_id"`
	Name         string     `json:"name"`
	Balance      int        `json:"balance"`
	Streak       int        `json:"streak"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}
