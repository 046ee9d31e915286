package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"ecopoints/internal/badges"
	"ecopoints/internal/database"
	"ecopoints/internal/ledger"
	"ecopoints/internal/models"
	"ecopoints/internal/rank"
	"ecopoints/internal/repository"
	"ecopoints/internal/service"
)

const testCatalog = `
badges:
  - id: first_steps
    name: First Steps
    description: Earn your first 10 points
    criterion:
      metric: balance
      at_least: 10
`

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "handlers_test.db")
	db, err := database.Open("sqlite", dbPath, "")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.RunMigrations("../../migrations"); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	catalog, err := badges.ParseCatalog([]byte(testCatalog))
	if err != nil {
		t.Fatalf("Failed to parse catalog: %v", err)
	}

	eventRepo := repository.NewEventRepository(db)
	actorRepo := repository.NewActorRepository(db)
	badgeRepo := repository.NewBadgeRepository(db)
	ldg := ledger.New(db, eventRepo, actorRepo)
	engine := service.NewEngine(ldg, rank.NewIndex(), catalog, badgeRepo, actorRepo, nil)
	if err := engine.Warm(); err != nil {
		t.Fatalf("Failed to warm engine: %v", err)
	}

	eventHandler := NewEventHandler(engine)
	actorHandler := NewActorHandler(engine)
	leaderboardHandler := NewLeaderboardHandler(engine)
	badgeHandler := NewBadgeHandler(engine)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/events", eventHandler.Submit)
	mux.HandleFunc("GET /api/events/{id}", eventHandler.Get)
	mux.HandleFunc("POST /api/actors", actorHandler.Register)
	mux.HandleFunc("GET /api/actors/{id}", actorHandler.Summary)
	mux.HandleFunc("POST /api/actors/{id}/rebuild", actorHandler.Rebuild)
	mux.HandleFunc("GET /api/leaderboard", leaderboardHandler.Get)
	mux.HandleFunc("GET /api/badges", badgeHandler.List)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body interface{}) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var resp APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return rec, resp
}

func TestSubmitEventEndpoint(t *testing.T) {
	mux := newTestMux(t)

	rec, resp := doJSON(t, mux, "POST", "/api/events", map[string]interface{}{
		"event_id":    "evt-1",
		"actor_id":    "ada",
		"kind":        "task_completion",
		"delta":       25,
		"occurred_at": time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		"source_ref":  "task-42",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !resp.Success {
		t.Fatalf("response not successful: %s", resp.Error)
	}

	data, _ := json.Marshal(resp.Data)
	var result service.SubmitResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
	if result.Summary.Balance != 25 || result.Summary.Streak != 1 {
		t.Errorf("summary = %d/%d, want 25/1", result.Summary.Balance, result.Summary.Streak)
	}
	if len(result.Unlocked) != 1 || result.Unlocked[0].ID != "first_steps" {
		t.Errorf("unlocked = %+v", result.Unlocked)
	}

	// Replaying the same event id stays a 200 and reports the duplicate.
	rec, resp = doJSON(t, mux, "POST", "/api/events", map[string]interface{}{
		"event_id":    "evt-1",
		"actor_id":    "ada",
		"kind":        "task_completion",
		"delta":       25,
		"occurred_at": time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate status = %d, want 200", rec.Code)
	}
	data, _ = json.Marshal(resp.Data)
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to decode duplicate result: %v", err)
	}
	if !result.Duplicate {
		t.Error("duplicate flag not set")
	}
	if result.Summary.Balance != 25 {
		t.Errorf("duplicate balance = %d, want 25", result.Summary.Balance)
	}
}

func TestSubmitEventRejectsBadInput(t *testing.T) {
	mux := newTestMux(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"unknown kind", map[string]interface{}{
			"event_id": "e1", "actor_id": "ada", "kind": "bribery", "delta": 5,
			"occurred_at": time.Now().UTC(),
		}},
		{"missing actor", map[string]interface{}{
			"event_id": "e2", "kind": "task_completion", "delta": 5,
			"occurred_at": time.Now().UTC(),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := doJSON(t, mux, "POST", "/api/events", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if resp.Success {
				t.Error("bad input reported success")
			}
		})
	}
}

func TestGetEventEndpoint(t *testing.T) {
	mux := newTestMux(t)

	rec, _ := doJSON(t, mux, "GET", "/api/events/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown event status = %d, want 404", rec.Code)
	}

	occurred := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	doJSON(t, mux, "POST", "/api/events", map[string]interface{}{
		"event_id": "evt-1", "actor_id": "ada", "kind": "task_completion", "delta": 25,
		"occurred_at": occurred, "source_ref": "task-42",
	})

	rec, resp := doJSON(t, mux, "GET", "/api/events/evt-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data, _ := json.Marshal(resp.Data)
	var e models.Event
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}
	if e.ID != "evt-1" || e.ActorID != "ada" || e.Delta != 25 || e.SourceRef != "task-42" {
		t.Errorf("event = %+v", e)
	}
	if !e.OccurredAt.Equal(occurred) {
		t.Errorf("occurred_at = %v, want %v", e.OccurredAt, occurred)
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	mux := newTestMux(t)

	doJSON(t, mux, "POST", "/api/actors", map[string]interface{}{
		"id": "ada", "kind": "student", "name": "Ada", "school_id": "greenfield",
	})
	doJSON(t, mux, "POST", "/api/events", map[string]interface{}{
		"event_id": "e1", "actor_id": "ada", "kind": "task_completion", "delta": 30,
		"occurred_at": time.Now().UTC(),
	})

	rec, resp := doJSON(t, mux, "GET", "/api/leaderboard?scope=students&limit=5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data, _ := json.Marshal(resp.Data)
	var entries []models.LeaderboardEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("Failed to decode entries: %v", err)
	}
	if len(entries) != 1 || entries[0].ActorID != "ada" || entries[0].Rank != 1 {
		t.Fatalf("entries = %+v", entries)
	}

	// The schools scope sees the aggregate immediately.
	rec, resp = doJSON(t, mux, "GET", "/api/leaderboard?scope=schools", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("schools status = %d", rec.Code)
	}
	data, _ = json.Marshal(resp.Data)
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("Failed to decode school entries: %v", err)
	}
	if len(entries) != 1 || entries[0].ActorID != "greenfield" || entries[0].Balance != 30 {
		t.Fatalf("school entries = %+v", entries)
	}
}

func TestLeaderboardValidation(t *testing.T) {
	mux := newTestMux(t)

	tests := []struct {
		name string
		path string
	}{
		{"limit zero", "/api/leaderboard?limit=0"},
		{"limit too large", "/api/leaderboard?limit=101"},
		{"limit not a number", "/api/leaderboard?limit=ten"},
		{"unknown scope", "/api/leaderboard?scope=planets"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := doJSON(t, mux, "GET", tt.path, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestActorSummaryEndpoint(t *testing.T) {
	mux := newTestMux(t)

	rec, _ := doJSON(t, mux, "GET", "/api/actors/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown actor status = %d, want 404", rec.Code)
	}

	doJSON(t, mux, "POST", "/api/actors", map[string]interface{}{
		"id": "ada", "kind": "student", "name": "Ada",
	})

	rec, resp := doJSON(t, mux, "GET", "/api/actors/ada", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data, _ := json.Marshal(resp.Data)
	var summary models.ActorSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("Failed to decode summary: %v", err)
	}
	if summary.ID != "ada" || summary.Balance != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestBadgeCatalogEndpoint(t *testing.T) {
	mux := newTestMux(t)

	rec, resp := doJSON(t, mux, "GET", "/api/badges", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data, _ := json.Marshal(resp.Data)
	var list []badges.Badge
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("Failed to decode badges: %v", err)
	}
	if len(list) != 1 || list[0].ID != "first_steps" {
		t.Errorf("badges = %+v", list)
	}
}
