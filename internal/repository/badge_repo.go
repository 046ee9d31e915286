package repository

import (
	"database/sql"
	"time"

	"ecopoints/internal/database"
	"ecopoints/internal/models"
)

// BadgeRepository persists badge unlock records. A record is created once
// per (actor, badge) pair and never duplicated; the composite primary key
// backstops the evaluator.
type BadgeRepository struct {
	db *database.DB
}

// NewBadgeRepository creates a new badge repository
func NewBadgeRepository(db *database.DB) *BadgeRepository {
	return &BadgeRepository{db: db}
}

// HasUnlock reports whether the actor already holds the badge.
func (r *BadgeRepository) HasUnlock(actorID, badgeID string) (bool, error) {
	var one int
	err := r.db.QueryRow(
		"SELECT 1 FROM badge_unlocks WHERE actor_id = ? AND badge_id = ?",
		actorID, badgeID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Insert creates the unlock record. Returns (false, nil) when the record
// already existed, so a concurrent double-fire degrades to a no-op.
func (r *BadgeRepository) Insert(actorID, badgeID string, at time.Time) (bool, error) {
	exists, err := r.HasUnlock(actorID, badgeID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	_, err = r.db.Exec(
		"INSERT INTO badge_unlocks (actor_id, badge_id, unlocked_at) VALUES (?, ?, ?)",
		actorID, badgeID, at.UTC(),
	)
	if err != nil {
		// Lost a race with another submit for the same actor/badge; the
		// primary key kept the record unique.
		if has, checkErr := r.HasUnlock(actorID, badgeID); checkErr == nil && has {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// UnlocksFor returns all unlock records for an actor, oldest first.
func (r *BadgeRepository) UnlocksFor(actorID string) ([]models.BadgeUnlock, error) {
	rows, err := r.db.Query(
		"SELECT actor_id, badge_id, unlocked_at FROM badge_unlocks WHERE actor_id = ? ORDER BY unlocked_at ASC, badge_id ASC",
		actorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var unlocks []models.BadgeUnlock
	for rows.Next() {
		var u models.BadgeUnlock
		if err := rows.Scan(&u.ActorID, &u.BadgeID, &u.UnlockedAt); err != nil {
			return nil, err
		}
		unlocks = append(unlocks, u)
	}
	return unlocks, rows.Err()
}
