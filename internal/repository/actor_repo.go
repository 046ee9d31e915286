package repository

import (
	"database/sql"
	"time"

	"ecopoints/internal/database"
	"ecopoints/internal/models"
)

// ActorRepository persists ledger rows: one per student or school, holding
// the current balance, streak and last-activity date.
type ActorRepository struct {
	db *database.DB
}

// NewActorRepository creates a new actor repository
func NewActorRepository(db *database.DB) *ActorRepository {
	return &ActorRepository{db: db}
}

const actorColumns = "id, kind, name, email, school_id, city, region, balance, streak, last_activity, created_at"

func scanActor(row *sql.Row) (*models.Actor, error) {
	a := &models.Actor{}
	var kind string
	var lastActivity sql.NullTime
	err := row.Scan(&a.ID, &kind, &a.Name, &a.Email, &a.SchoolID, &a.City, &a.Region,
		&a.Balance, &a.Streak, &lastActivity, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUnknownActor
	}
	if err != nil {
		return nil, err
	}
	a.Kind = models.ActorKind(kind)
	if lastActivity.Valid {
		t := lastActivity.Time
		a.LastActivity = &t
	}
	return a, nil
}

// Get retrieves an actor's ledger row. Returns ErrUnknownActor if the actor
// has no row yet.
func (r *ActorRepository) Get(actorID string) (*models.Actor, error) {
	return getActorIn(r.db, actorID)
}

// GetTx is Get inside an existing transaction.
func (r *ActorRepository) GetTx(tx *database.Tx, actorID string) (*models.Actor, error) {
	return getActorIn(tx, actorID)
}

func getActorIn(q database.Executor, actorID string) (*models.Actor, error) {
	query := "SELECT " + actorColumns + " FROM actors WHERE id = ?"
	return scanActor(q.QueryRow(query, actorID))
}

// CreateTx inserts a fresh ledger row inside an existing transaction.
func (r *ActorRepository) CreateTx(tx *database.Tx, a *models.Actor) error {
	query := `
		INSERT INTO actors (id, kind, name, email, school_id, city, region, balance, streak, last_activity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var lastActivity interface{}
	if a.LastActivity != nil {
		lastActivity = a.LastActivity.UTC()
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := tx.Exec(query, a.ID, string(a.Kind), a.Name, a.Email, a.SchoolID,
		a.City, a.Region, a.Balance, a.Streak, lastActivity, created)
	return err
}

// SaveStateTx writes the post-application balance, streak and last-activity
// for an actor. This is the only balance write path for student rows.
func (r *ActorRepository) SaveStateTx(tx *database.Tx, actorID string, balance, streak int, lastActivity *time.Time) error {
	var la interface{}
	if lastActivity != nil {
		la = lastActivity.UTC()
	}
	_, err := tx.Exec(
		"UPDATE actors SET balance = ?, streak = ?, last_activity = ? WHERE id = ?",
		balance, streak, la, actorID,
	)
	return err
}

// AddBalanceTx shifts a school row's aggregate balance by the effective
// delta of a student event.
func (r *ActorRepository) AddBalanceTx(tx *database.Tx, actorID string, delta int) error {
	_, err := tx.Exec("UPDATE actors SET balance = balance + ? WHERE id = ?", delta, actorID)
	return err
}

// TouchActivityTx advances an actor's last-activity high-water mark. It
// never moves the mark backwards, so late-arriving events cannot regress it.
func (r *ActorRepository) TouchActivityTx(tx *database.Tx, actorID string, at time.Time) error {
	t := at.UTC()
	_, err := tx.Exec(`
		UPDATE actors
		SET last_activity = CASE
		    WHEN last_activity IS NULL OR last_activity < ? THEN ?
		    ELSE last_activity
		END
		WHERE id = ?
	`, t, t, actorID)
	return err
}

// UpsertProfile creates or updates the identity attributes of an actor
// (name, email, school membership, locality) without touching ledger state.
func (r *ActorRepository) UpsertProfile(a *models.Actor) (*models.Actor, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	existing, err := getActorIn(tx, a.ID)
	if err != nil && err != ErrUnknownActor {
		return nil, err
	}

	if existing == nil {
		if err := r.CreateTx(tx, a); err != nil {
			return nil, err
		}
	} else {
		_, err := tx.Exec(
			"UPDATE actors SET name = ?, email = ?, school_id = ?, city = ?, region = ? WHERE id = ?",
			a.Name, a.Email, a.SchoolID, a.City, a.Region, a.ID,
		)
		if err != nil {
			return nil, err
		}

		// A student moving between schools takes their points with them:
		// school balances stay equal to the sum of their students.
		if existing.Kind == models.KindStudent && existing.SchoolID != a.SchoolID && existing.Balance != 0 {
			if existing.SchoolID != "" {
				if err := r.AddBalanceTx(tx, existing.SchoolID, -existing.Balance); err != nil {
					return nil, err
				}
			}
			if a.SchoolID != "" {
				if err := r.AddBalanceTx(tx, a.SchoolID, existing.Balance); err != nil {
					return nil, err
				}
			}
		}
	}

	updated, err := getActorIn(tx, a.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

// SumStudentState returns the total balance and latest activity across a
// school's students, the ground truth for the school's aggregate row.
func (r *ActorRepository) SumStudentState(schoolID string) (int, *time.Time, error) {
	var total int
	var lastActivity sql.NullTime
	err := r.db.QueryRow(
		"SELECT COALESCE(SUM(balance), 0), MAX(last_activity) FROM actors WHERE kind = ? AND school_id = ?",
		string(models.KindStudent), schoolID,
	).Scan(&total, &lastActivity)
	if err != nil {
		return 0, nil, err
	}
	if lastActivity.Valid {
		t := lastActivity.Time
		return total, &t, nil
	}
	return total, nil, nil
}

// ListByKind returns every actor of one kind, used to warm the rank index
// at startup.
func (r *ActorRepository) ListByKind(kind models.ActorKind) ([]models.Actor, error) {
	query := "SELECT " + actorColumns + " FROM actors WHERE kind = ?"
	rows, err := r.db.Query(query, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actors []models.Actor
	for rows.Next() {
		var a models.Actor
		var k string
		var lastActivity sql.NullTime
		err := rows.Scan(&a.ID, &k, &a.Name, &a.Email, &a.SchoolID, &a.City, &a.Region,
			&a.Balance, &a.Streak, &lastActivity, &a.CreatedAt)
		if err != nil {
			return nil, err
		}
		a.Kind = models.ActorKind(k)
		if lastActivity.Valid {
			t := lastActivity.Time
			a.LastActivity = &t
		}
		actors = append(actors, a)
	}
	return actors, rows.Err()
}
