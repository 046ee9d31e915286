package ledger

import (
	"time"

	"ecopoints/internal/models"
)

// utcDay truncates a timestamp to its UTC calendar day. All streak
// arithmetic happens in UTC so "one day later" has a single meaning
// regardless of where the event was produced.
func utcDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Advance folds a single event into the actor's ledger state, returning
// the delta actually applied after the zero clamp and whether clamping
// occurred. It is the one transition function shared by incremental apply,
// full rebuild and the audit tool, which is what makes rebuild equivalence
// hold by construction.
//
// Streak rule: task completions and game results on the calendar day
// directly after the last activity extend the streak by one; a gap of more
// than one day resets it to one; same-day activity leaves it unchanged.
// Streak bonuses and manual adjustments never touch the streak.
func Advance(a *models.Actor, e models.Event) (effective int, clamped bool) {
	if e.Kind.CountsAsActivity() {
		day := utcDay(e.OccurredAt)
		switch {
		case a.LastActivity == nil:
			a.Streak = 1
		default:
			gap := int(day.Sub(utcDay(*a.LastActivity)).Hours() / 24)
			switch {
			case gap == 1:
				a.Streak++
			case gap > 1:
				a.Streak = 1
			}
			// gap == 0: same-day activity, streak unchanged.
			// gap < 0: event arrived late; it cannot rewrite history, so
			// the streak and last-activity stay as they are.
		}
		if a.LastActivity == nil || a.LastActivity.Before(e.OccurredAt) {
			t := e.OccurredAt.UTC()
			a.LastActivity = &t
		}
	}

	next := a.Balance + e.Delta
	if next < 0 {
		next = 0
		clamped = true
	}
	effective = next - a.Balance
	a.Balance = next

	return effective, clamped
}
