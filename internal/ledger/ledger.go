package ledger

import (
	"errors"
	"fmt"
	"log"
	"time"

	"ecopoints/internal/database"
	"ecopoints/internal/models"
	"ecopoints/internal/repository"
)

// Sentinel errors re-exported so callers depend on the ledger, not on the
// storage layer.
var (
	ErrDuplicateEvent = repository.ErrDuplicateEvent
	ErrUnknownActor   = repository.ErrUnknownActor
	ErrUnknownEvent   = repository.ErrUnknownEvent
)

// ErrInvalidEvent rejects malformed events before anything is stored.
var ErrInvalidEvent = errors.New("invalid event")

// ApplyResult is the outcome of applying one event.
type ApplyResult struct {
	Actor     models.Actor // state after application
	Prior     models.Actor // state before application
	Duplicate bool         // event id was already applied; Actor is current state
	Clamped   bool         // delta would have driven the balance negative
	Effective int          // delta actually applied after the clamp
}

// Ledger maintains the authoritative balance and streak per actor, derived
// from the append-only event log. Every event is durably recorded before it
// changes any balance, and an event identifier is applied at most once.
type Ledger struct {
	db     *database.DB
	events *repository.EventRepository
	actors *repository.ActorRepository
	locks  *actorLocks

	onApplied func(models.Actor)
}

// New creates a ledger over the given stores.
func New(db *database.DB, events *repository.EventRepository, actors *repository.ActorRepository) *Ledger {
	return &Ledger{
		db:     db,
		events: events,
		actors: actors,
		locks:  newActorLocks(),
	}
}

// SetOnApplied registers a sink that receives the post-commit state of every
// actor a write touched. The sink is invoked while the actor's serialization
// is still held, so it observes the writes for one actor in commit order; a
// sink fed after the lock is released could apply an older state over a
// newer one and hold it forever.
func (l *Ledger) SetOnApplied(fn func(models.Actor)) {
	l.onApplied = fn
}

// notifyApplied pushes the committed state to the sink. The school entry is
// re-read and pushed under the school's own lock: school rows are written by
// many students' transactions, and the lock makes read-then-push atomic
// against the other writers' notifications.
func (l *Ledger) notifyApplied(actor *models.Actor) {
	if l.onApplied == nil {
		return
	}
	l.onApplied(*actor)

	if actor.Kind == models.KindStudent && actor.SchoolID != "" {
		unlock := l.locks.acquire(actor.SchoolID)
		defer unlock()
		if school, err := l.actors.Get(actor.SchoolID); err == nil {
			l.onApplied(*school)
		}
	}
}

// Apply records the event and folds it into the actor's state. Student
// events also shift the aggregate balance of the student's school inside
// the same transaction, so a school's balance always equals the sum of its
// students' balances.
//
// A duplicate event identifier returns the current state with Duplicate set
// instead of an error: retried submissions are already-successful, never
// double-awarded.
func (l *Ledger) Apply(e *models.Event) (*ApplyResult, error) {
	if err := validateEvent(e); err != nil {
		return nil, err
	}

	unlock := l.locks.acquire(e.ActorID)
	defer unlock()

	// Fast path for retries: the event log has seen this id before.
	exists, err := l.events.Exists(e.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check event log: %w", err)
	}
	if exists {
		actor, err := l.actors.Get(e.ActorID)
		if err != nil {
			return nil, err
		}
		return &ApplyResult{Actor: *actor, Prior: *actor, Duplicate: true}, nil
	}

	tx, err := l.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := l.events.AppendTx(tx, e); err != nil {
		return nil, err
	}

	actor, err := l.actors.GetTx(tx, e.ActorID)
	if err == repository.ErrUnknownActor {
		// First event for this actor creates the ledger row lazily.
		actor = &models.Actor{ID: e.ActorID, Kind: models.KindStudent, CreatedAt: time.Now().UTC()}
		if err := l.actors.CreateTx(tx, actor); err != nil {
			return nil, fmt.Errorf("failed to create ledger row: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	prior := *actor
	effective, clamped := Advance(actor, *e)

	if err := l.actors.SaveStateTx(tx, actor.ID, actor.Balance, actor.Streak, actor.LastActivity); err != nil {
		return nil, fmt.Errorf("failed to save ledger state: %w", err)
	}

	if actor.Kind == models.KindStudent && actor.SchoolID != "" {
		if err := l.propagateToSchool(tx, actor.SchoolID, effective, *e); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit event application: %w", err)
	}

	if clamped {
		log.Printf("warning: event %s clamped balance of actor %s at zero (delta %d, applied %d)",
			e.ID, e.ActorID, e.Delta, effective)
	}

	l.notifyApplied(actor)

	return &ApplyResult{
		Actor:     *actor,
		Prior:     prior,
		Clamped:   clamped,
		Effective: effective,
	}, nil
}

// propagateToSchool mirrors a student's effective delta onto the school
// aggregate row, creating the row on first sight.
func (l *Ledger) propagateToSchool(tx *database.Tx, schoolID string, effective int, e models.Event) error {
	_, err := l.actors.GetTx(tx, schoolID)
	if err == repository.ErrUnknownActor {
		school := &models.Actor{ID: schoolID, Kind: models.KindSchool, CreatedAt: time.Now().UTC()}
		if err := l.actors.CreateTx(tx, school); err != nil {
			return fmt.Errorf("failed to create school row: %w", err)
		}
	} else if err != nil {
		return err
	}

	if effective != 0 {
		if err := l.actors.AddBalanceTx(tx, schoolID, effective); err != nil {
			return fmt.Errorf("failed to update school balance: %w", err)
		}
	}
	if e.Kind.CountsAsActivity() {
		if err := l.actors.TouchActivityTx(tx, schoolID, e.OccurredAt); err != nil {
			return fmt.Errorf("failed to touch school activity: %w", err)
		}
	}
	return nil
}

// Get returns the actor's current ledger state.
func (l *Ledger) Get(actorID string) (*models.Actor, error) {
	return l.actors.Get(actorID)
}

// Event returns one recorded event from the log.
func (l *Ledger) Event(eventID string) (*models.Event, error) {
	return l.events.GetByID(eventID)
}

// BalanceOf returns the actor's current point balance.
func (l *Ledger) BalanceOf(actorID string) (int, error) {
	a, err := l.actors.Get(actorID)
	if err != nil {
		return 0, err
	}
	return a.Balance, nil
}

// StreakOf returns the actor's current streak length in days.
func (l *Ledger) StreakOf(actorID string) (int, error) {
	a, err := l.actors.Get(actorID)
	if err != nil {
		return 0, err
	}
	return a.Streak, nil
}

// Rebuild recomputes an actor's state from the ground truth and repairs any
// drift in storage. For a student that means replaying every event in
// timestamp order; for a school, which receives no events of its own, it
// means re-summing the stored balances of its students. Either way the
// result must match the incrementally maintained state.
func (l *Ledger) Rebuild(actorID string) (*models.Actor, error) {
	unlock := l.locks.acquire(actorID)
	defer unlock()

	stored, err := l.actors.Get(actorID)
	if err != nil {
		return nil, err
	}

	if stored.Kind == models.KindSchool {
		return l.rebuildSchool(stored)
	}

	rebuilt := *stored
	rebuilt.Balance = 0
	rebuilt.Streak = 0
	rebuilt.LastActivity = nil

	err = l.events.ForEachByActor(actorID, nil, func(e models.Event) error {
		Advance(&rebuilt, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to replay events: %w", err)
	}

	drift := rebuilt.Balance - stored.Balance
	if drift != 0 {
		log.Printf("warning: rebuild of actor %s corrected balance drift of %d points", actorID, drift)
	}

	tx, err := l.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := l.actors.SaveStateTx(tx, actorID, rebuilt.Balance, rebuilt.Streak, rebuilt.LastActivity); err != nil {
		return nil, fmt.Errorf("failed to save rebuilt state: %w", err)
	}
	if drift != 0 && rebuilt.Kind == models.KindStudent && rebuilt.SchoolID != "" {
		if err := l.actors.AddBalanceTx(tx, rebuilt.SchoolID, drift); err != nil {
			return nil, fmt.Errorf("failed to correct school balance: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rebuild: %w", err)
	}

	l.notifyApplied(&rebuilt)

	return &rebuilt, nil
}

// rebuildSchool restores a school's aggregate from the sum of its students'
// ledger rows. Called with the school's lock held.
func (l *Ledger) rebuildSchool(stored *models.Actor) (*models.Actor, error) {
	total, lastActivity, err := l.actors.SumStudentState(stored.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum student balances: %w", err)
	}

	if total != stored.Balance {
		log.Printf("warning: rebuild of school %s corrected balance drift of %d points",
			stored.ID, total-stored.Balance)
	}

	tx, err := l.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := l.actors.SaveStateTx(tx, stored.ID, total, 0, lastActivity); err != nil {
		return nil, fmt.Errorf("failed to save rebuilt school state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit school rebuild: %w", err)
	}

	rebuilt := *stored
	rebuilt.Balance = total
	rebuilt.Streak = 0
	rebuilt.LastActivity = lastActivity

	if l.onApplied != nil {
		l.onApplied(rebuilt)
	}

	return &rebuilt, nil
}

func validateEvent(e *models.Event) error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing event id", ErrInvalidEvent)
	}
	if e.ActorID == "" {
		return fmt.Errorf("%w: missing actor id", ErrInvalidEvent)
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("%w: missing occurred_at", ErrInvalidEvent)
	}
	return nil
}
