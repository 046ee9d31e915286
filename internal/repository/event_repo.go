package repository

import (
	"database/sql"
	"time"

	"ecopoints/internal/database"
	"ecopoints/internal/models"
)

// EventRepository is the append-only event log. Events are never updated or
// deleted; corrections are new compensating events. The event identifier is
// the idempotency key.
type EventRepository struct {
	db *database.DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *database.DB) *EventRepository {
	return &EventRepository{db: db}
}

// AppendTx durably records an event inside an existing transaction. Returns
// ErrDuplicateEvent if an event with the same identifier already exists.
func (r *EventRepository) AppendTx(tx *database.Tx, e *models.Event) (*models.Event, error) {
	exists, err := existsIn(tx, e.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateEvent
	}

	stored := *e
	stored.RecordedAt = time.Now().UTC()

	query := `
		INSERT INTO events (id, actor_id, kind, delta, occurred_at, source_ref, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.Exec(query, stored.ID, stored.ActorID, string(stored.Kind),
		stored.Delta, stored.OccurredAt.UTC(), stored.SourceRef, stored.RecordedAt)
	if err != nil {
		// Lost a race with a concurrent append of the same id; the primary
		// key kept the log unique.
		if exists, checkErr := existsIn(tx, e.ID); checkErr == nil && exists {
			return nil, ErrDuplicateEvent
		}
		return nil, err
	}

	return &stored, nil
}

// Exists reports whether an event with the given identifier was already appended.
func (r *EventRepository) Exists(eventID string) (bool, error) {
	return existsIn(r.db, eventID)
}

func existsIn(q database.Executor, eventID string) (bool, error) {
	var one int
	err := q.QueryRow("SELECT 1 FROM events WHERE id = ?", eventID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetByID retrieves a single event, or ErrUnknownEvent.
func (r *EventRepository) GetByID(eventID string) (*models.Event, error) {
	query := `
		SELECT id, actor_id, kind, delta, occurred_at, source_ref, recorded_at
		FROM events
		WHERE id = ?
	`
	e := &models.Event{}
	var kind string
	err := r.db.QueryRow(query, eventID).Scan(
		&e.ID, &e.ActorID, &kind, &e.Delta, &e.OccurredAt, &e.SourceRef, &e.RecordedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUnknownEvent
	}
	if err != nil {
		return nil, err
	}
	e.Kind = models.EventKind(kind)
	return e, nil
}

// ForEachByActor streams the actor's events in replay order (occurred_at,
// then id as the deterministic tiebreaker), optionally bounded by a start
// time. The callback may return an error to abort early.
func (r *EventRepository) ForEachByActor(actorID string, since *time.Time, fn func(models.Event) error) error {
	query := `
		SELECT id, actor_id, kind, delta, occurred_at, source_ref, recorded_at
		FROM events
		WHERE actor_id = ?
	`
	args := []interface{}{actorID}
	if since != nil {
		query += " AND occurred_at >= ?"
		args = append(args, since.UTC())
	}
	query += " ORDER BY occurred_at ASC, id ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var e models.Event
		var kind string
		err := rows.Scan(&e.ID, &e.ActorID, &kind, &e.Delta, &e.OccurredAt, &e.SourceRef, &e.RecordedAt)
		if err != nil {
			return err
		}
		e.Kind = models.EventKind(kind)
		if err := fn(e); err != nil {
			return err
		}
	}

	return rows.Err()
}

// CountForActor returns the number of recorded events for an actor.
func (r *EventRepository) CountForActor(actorID string) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM events WHERE actor_id = ?", actorID).Scan(&count)
	return count, err
}
