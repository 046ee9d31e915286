package rank

import (
	"errors"
	"sort"
	"sync"
	"time"

	"ecopoints/internal/models"
)

// ErrUnranked means the actor is not present in the requested scope.
var ErrUnranked = errors.New("actor not ranked in scope")

// Entry is one ranked actor. Entries carry everything a leaderboard row
// needs so queries never go back to storage.
type Entry struct {
	ActorID      string
	Name         string
	SchoolID     string
	Balance      int
	Streak       int
	LastActivity *time.Time
}

// less is the single ordering rule applied everywhere ranking is computed:
// balance descending, then earliest last-activity first (sustained
// engagement beats a late burst), then actor id ascending. Actors that were
// never active sort after active ones at equal balance.
func less(a, b Entry) bool {
	if a.Balance != b.Balance {
		return a.Balance > b.Balance
	}
	switch {
	case a.LastActivity == nil && b.LastActivity != nil:
		return false
	case a.LastActivity != nil && b.LastActivity == nil:
		return true
	case a.LastActivity != nil && b.LastActivity != nil:
		if !a.LastActivity.Equal(*b.LastActivity) {
			return a.LastActivity.Before(*b.LastActivity)
		}
	}
	return a.ActorID < b.ActorID
}

// board is one ordered population, kept sorted under single-entry updates:
// binary search finds positions, so an upsert costs O(log n) comparisons
// plus the slice shift, never a full re-sort.
type board struct {
	entries []Entry
}

// search returns the insertion index for e under the ordering rule.
func (b *board) search(e Entry) int {
	return sort.Search(len(b.entries), func(i int) bool {
		return !less(b.entries[i], e)
	})
}

func (b *board) upsert(e Entry) {
	b.remove(e.ActorID)
	i := b.search(e)
	b.entries = append(b.entries, Entry{})
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = e
}

func (b *board) remove(actorID string) {
	for i, e := range b.entries {
		if e.ActorID == actorID {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return
		}
	}
}

// rankOf returns the 1-based rank, or 0 if absent.
func (b *board) rankOf(actorID string) int {
	for i, e := range b.entries {
		if e.ActorID == actorID {
			return i + 1
		}
	}
	return 0
}

func (b *board) top(n int) []Entry {
	if n > len(b.entries) {
		n = len(b.entries)
	}
	if n < 0 {
		n = 0
	}
	out := make([]Entry, n)
	copy(out, b.entries[:n])
	return out
}

// Index answers top-N and rank-of queries over three scopes: all students,
// the students of one school, and all schools. It is warmed from the ledger
// at startup and updated incrementally on every applied event, so the same
// ledger state always yields the same order.
type Index struct {
	mu        sync.RWMutex
	students  board
	schools   board
	perSchool map[string]*board
}

// NewIndex creates an empty rank index.
func NewIndex() *Index {
	return &Index{perSchool: make(map[string]*board)}
}

func entryFor(a models.Actor) Entry {
	return Entry{
		ActorID:      a.ID,
		Name:         a.Name,
		SchoolID:     a.SchoolID,
		Balance:      a.Balance,
		Streak:       a.Streak,
		LastActivity: a.LastActivity,
	}
}

// Upsert inserts or repositions an actor after a ledger change.
func (ix *Index) Upsert(a models.Actor) {
	e := entryFor(a)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	switch a.Kind {
	case models.KindSchool:
		ix.schools.upsert(e)
	default:
		// A student changing schools leaves the old school board.
		for schoolID, b := range ix.perSchool {
			if schoolID != a.SchoolID {
				b.remove(a.ID)
			}
		}
		ix.students.upsert(e)
		if a.SchoolID != "" {
			b, ok := ix.perSchool[a.SchoolID]
			if !ok {
				b = &board{}
				ix.perSchool[a.SchoolID] = b
			}
			b.upsert(e)
		}
	}
}

// Warm loads a full actor population, replacing any previous contents.
func (ix *Index) Warm(actors []models.Actor) {
	for _, a := range actors {
		ix.Upsert(a)
	}
}

// TopStudents returns the top n students overall.
func (ix *Index) TopStudents(n int) []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.students.top(n)
}

// TopSchools returns the top n schools.
func (ix *Index) TopSchools(n int) []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.schools.top(n)
}

// TopStudentsOfSchool returns the top n students of one school.
func (ix *Index) TopStudentsOfSchool(schoolID string, n int) []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if b, ok := ix.perSchool[schoolID]; ok {
		return b.top(n)
	}
	return nil
}

// StudentRank returns the 1-based rank of a student among all students.
func (ix *Index) StudentRank(actorID string) (int, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if r := ix.students.rankOf(actorID); r > 0 {
		return r, nil
	}
	return 0, ErrUnranked
}

// SchoolRank returns the 1-based rank of a school among all schools.
func (ix *Index) SchoolRank(actorID string) (int, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if r := ix.schools.rankOf(actorID); r > 0 {
		return r, nil
	}
	return 0, ErrUnranked
}

// SchoolStudentRank returns the 1-based rank of a student within a school.
func (ix *Index) SchoolStudentRank(schoolID, actorID string) (int, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if b, ok := ix.perSchool[schoolID]; ok {
		if r := b.rankOf(actorID); r > 0 {
			return r, nil
		}
	}
	return 0, ErrUnranked
}
