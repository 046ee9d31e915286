package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"ecopoints/internal/badges"
	"ecopoints/internal/ledger"
	"ecopoints/internal/models"
	"ecopoints/internal/rank"
	"ecopoints/internal/repository"
)

var (
	// ErrInvalidScope rejects leaderboard queries over unknown populations.
	ErrInvalidScope = errors.New("invalid leaderboard scope")

	// ErrInvalidInput rejects malformed registration or submission input.
	ErrInvalidInput = errors.New("invalid input")
)

// Leaderboard scopes accepted by GetLeaderboard.
const (
	ScopeStudents = "students"
	ScopeSchools  = "schools"
)

// Publisher receives a nudge whenever ledger state changed, so live
// leaderboard feeds can refresh. Implementations must not block.
type Publisher interface {
	Publish()
}

// Engine is the single external-facing surface over the event log, ledger,
// rank index and badge evaluator. Presentation code talks to the Engine and
// to nothing below it.
type Engine struct {
	ledger    *ledger.Ledger
	rank      *rank.Index
	catalog   *badges.Catalog
	badgeRepo *repository.BadgeRepository
	actorRepo *repository.ActorRepository
	notifier  *Notifier
	publisher Publisher
}

// NewEngine wires the facade over its components.
func NewEngine(
	ldg *ledger.Ledger,
	rankIndex *rank.Index,
	catalog *badges.Catalog,
	badgeRepo *repository.BadgeRepository,
	actorRepo *repository.ActorRepository,
	notifier *Notifier,
) *Engine {
	// The ledger feeds the rank index itself, while still holding the
	// per-actor serialization, so the index sees applies in commit order
	// and a leaderboard read right after a submit sees that submit.
	ldg.SetOnApplied(rankIndex.Upsert)

	return &Engine{
		ledger:    ldg,
		rank:      rankIndex,
		catalog:   catalog,
		badgeRepo: badgeRepo,
		actorRepo: actorRepo,
		notifier:  notifier,
	}
}

// SetPublisher attaches a live-feed publisher. Optional.
func (s *Engine) SetPublisher(p Publisher) {
	s.publisher = p
}

// Warm loads every ledger row into the rank index. Called once at startup
// before the engine serves queries.
func (s *Engine) Warm() error {
	for _, kind := range []models.ActorKind{models.KindStudent, models.KindSchool} {
		actors, err := s.actorRepo.ListByKind(kind)
		if err != nil {
			return fmt.Errorf("failed to warm rank index: %w", err)
		}
		s.rank.Warm(actors)
	}
	return nil
}

// SubmitEventInput is one point-affecting occurrence from a task handler,
// game, or admin tool.
type SubmitEventInput struct {
	EventID    string           `json:"event_id"`
	ActorID    string           `json:"actor_id"`
	Kind       models.EventKind `json:"kind"`
	Delta      int              `json:"delta"`
	OccurredAt time.Time        `json:"occurred_at"`
	SourceRef  string           `json:"source_ref"`
}

// SubmitResult bundles everything the caller needs to render the outcome
// in one round trip: new state, rank, and any badges that just unlocked.
type SubmitResult struct {
	Summary   models.ActorSummary `json:"summary"`
	Unlocked  []badges.Badge      `json:"unlocked,omitempty"`
	Duplicate bool                `json:"duplicate"`
	Clamped   bool                `json:"clamped"`
}

// SubmitEvent applies one event: append to the log, fold into the ledger,
// evaluate badges, update the rank index, notify the live feed. A retried
// submission (same event id) returns the current state with Duplicate set
// and changes nothing.
func (s *Engine) SubmitEvent(ctx context.Context, in SubmitEventInput) (*SubmitResult, error) {
	e := &models.Event{
		ID:         in.EventID,
		ActorID:    in.ActorID,
		Kind:       in.Kind,
		Delta:      in.Delta,
		OccurredAt: in.OccurredAt,
		SourceRef:  in.SourceRef,
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	res, err := s.ledger.Apply(e)
	if err != nil {
		return nil, err
	}

	out := &SubmitResult{Duplicate: res.Duplicate, Clamped: res.Clamped}

	if !res.Duplicate {
		out.Unlocked, err = s.recordUnlocks(ctx, res.Prior, res.Actor)
		if err != nil {
			return nil, err
		}

		if s.publisher != nil {
			s.publisher.Publish()
		}
	}

	summary, err := s.summarize(&res.Actor)
	if err != nil {
		return nil, err
	}
	out.Summary = *summary
	return out, nil
}

// recordUnlocks persists newly crossed badges exactly once and kicks off
// notification emails in the background.
func (s *Engine) recordUnlocks(ctx context.Context, prior, current models.Actor) ([]badges.Badge, error) {
	var unlocked []badges.Badge
	now := time.Now().UTC()

	for _, b := range s.catalog.Evaluate(prior, current) {
		inserted, err := s.badgeRepo.Insert(current.ID, b.ID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to record badge unlock: %w", err)
		}
		if !inserted {
			continue
		}
		unlocked = append(unlocked, b)

		if s.notifier != nil && current.Email != "" {
			badge := b
			actor := current
			go func() {
				sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := s.notifier.SendBadgeUnlocked(sendCtx, actor.Email, actor.Name, badge.Name, badge.Description); err != nil {
					log.Printf("warning: badge email for %s/%s failed: %v", actor.ID, badge.ID, err)
				}
			}()
		}
	}
	return unlocked, nil
}

// GetLeaderboard returns the top n actors of a scope. Scope "students" with
// a school id restricts to that school's students.
func (s *Engine) GetLeaderboard(scope, schoolID string, n int) ([]models.LeaderboardEntry, error) {
	if n <= 0 {
		n = 10
	}

	var entries []rank.Entry
	switch scope {
	case ScopeStudents:
		if schoolID != "" {
			entries = s.rank.TopStudentsOfSchool(schoolID, n)
		} else {
			entries = s.rank.TopStudents(n)
		}
	case ScopeSchools:
		if schoolID != "" {
			return nil, fmt.Errorf("%w: school filter only applies to the students scope", ErrInvalidScope)
		}
		entries = s.rank.TopSchools(n)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}

	out := make([]models.LeaderboardEntry, len(entries))
	for i, e := range entries {
		out[i] = models.LeaderboardEntry{
			Rank:         i + 1,
			ActorID:      e.ActorID,
			Name:         e.Name,
			Balance:      e.Balance,
			Streak:       e.Streak,
			LastActivity: e.LastActivity,
		}
	}
	return out, nil
}

// GetEvent returns one recorded event from the log, for callers checking
// what a retried submission actually stored.
func (s *Engine) GetEvent(eventID string) (*models.Event, error) {
	return s.ledger.Event(eventID)
}

// GetActorSummary returns balance, streak, rank and badges for one actor.
func (s *Engine) GetActorSummary(actorID string) (*models.ActorSummary, error) {
	actor, err := s.ledger.Get(actorID)
	if err != nil {
		return nil, err
	}
	return s.summarize(actor)
}

func (s *Engine) summarize(actor *models.Actor) (*models.ActorSummary, error) {
	summary := &models.ActorSummary{
		ID:           actor.ID,
		Kind:         actor.Kind,
		Name:         actor.Name,
		SchoolID:     actor.SchoolID,
		Balance:      actor.Balance,
		Streak:       actor.Streak,
		LastActivity: actor.LastActivity,
	}

	var r int
	var err error
	if actor.Kind == models.KindSchool {
		r, err = s.rank.SchoolRank(actor.ID)
	} else {
		r, err = s.rank.StudentRank(actor.ID)
	}
	if err == nil {
		summary.Rank = r
	}

	if actor.Kind == models.KindStudent && actor.SchoolID != "" {
		if r, err := s.rank.SchoolStudentRank(actor.SchoolID, actor.ID); err == nil {
			summary.SchoolRank = r
		}
	}

	unlocks, err := s.badgeRepo.UnlocksFor(actor.ID)
	if err != nil {
		return nil, err
	}
	summary.Badges = unlocks

	return summary, nil
}

// RegisterActorInput carries the identity attributes resolved at the
// boundary: the caller states whether this is a student or a school once,
// instead of the engine guessing by trial queries.
type RegisterActorInput struct {
	ID       string           `json:"id"`
	Kind     models.ActorKind `json:"kind"`
	Name     string           `json:"name"`
	Email    string           `json:"email"`
	SchoolID string           `json:"school_id"`
	City     string           `json:"city"`
	Region   string           `json:"region"`
}

// RegisterActor creates or updates an actor's profile. Ledger state is
// untouched; a brand-new actor starts at zero.
func (s *Engine) RegisterActor(in RegisterActorInput) (*models.ActorSummary, error) {
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown actor kind %q", ErrInvalidInput, in.Kind)
	}
	if in.Kind == models.KindSchool && in.SchoolID != "" {
		return nil, fmt.Errorf("%w: a school cannot belong to a school", ErrInvalidInput)
	}
	if in.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidInput)
	}
	if in.ID == "" {
		in.ID = uuid.New().String()
	}

	// A student may name a school that has not been seen yet; create the
	// aggregate row up front so the school scope includes it immediately.
	if in.Kind == models.KindStudent && in.SchoolID != "" {
		if _, err := s.actorRepo.Get(in.SchoolID); err == repository.ErrUnknownActor {
			school, err := s.actorRepo.UpsertProfile(&models.Actor{
				ID:   in.SchoolID,
				Kind: models.KindSchool,
			})
			if err != nil {
				return nil, err
			}
			s.rank.Upsert(*school)
		} else if err != nil {
			return nil, err
		}
	}

	var oldSchoolID string
	if existing, err := s.actorRepo.Get(in.ID); err == nil {
		oldSchoolID = existing.SchoolID
	}

	actor, err := s.actorRepo.UpsertProfile(&models.Actor{
		ID:       in.ID,
		Kind:     in.Kind,
		Name:     in.Name,
		Email:    in.Email,
		SchoolID: in.SchoolID,
		City:     in.City,
		Region:   in.Region,
	})
	if err != nil {
		return nil, err
	}

	s.rank.Upsert(*actor)

	// A school move shifts aggregate balances; refresh both school entries.
	for _, schoolID := range []string{oldSchoolID, actor.SchoolID} {
		if schoolID == "" {
			continue
		}
		if school, err := s.actorRepo.Get(schoolID); err == nil {
			s.rank.Upsert(*school)
		}
	}

	return s.summarize(actor)
}

// Rebuild recomputes the actor's state from the ground truth, repairs any
// drift and refreshes the rank index. The audit/recovery path.
func (s *Engine) Rebuild(actorID string) (*models.ActorSummary, error) {
	actor, err := s.ledger.Rebuild(actorID)
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		s.publisher.Publish()
	}

	return s.summarize(actor)
}

// Badges lists the full catalog.
func (s *Engine) Badges() []badges.Badge {
	return s.catalog.All()
}

// Snapshot returns both leaderboards for live-feed consumers.
func (s *Engine) Snapshot(n int) ([]models.LeaderboardEntry, []models.LeaderboardEntry) {
	students, _ := s.GetLeaderboard(ScopeStudents, "", n)
	schools, _ := s.GetLeaderboard(ScopeSchools, "", n)
	return students, schools
}
