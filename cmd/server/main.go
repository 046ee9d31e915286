package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ecopoints/internal/badges"
	"ecopoints/internal/config"
	"ecopoints/internal/database"
	"ecopoints/internal/handlers"
	"ecopoints/internal/ledger"
	"ecopoints/internal/rank"
	"ecopoints/internal/repository"
	"ecopoints/internal/security"
	"ecopoints/internal/service"
	"ecopoints/internal/ws"
)

func main() {
	// Load .env if present, then configuration
	_ = godotenv.Load()
	cfg := config.Load()

	// Initialize database (supports sqlite, postgres, mysql)
	db, err := database.Open(cfg.DatabaseType, cfg.DatabasePath, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	log.Printf("Database connection established (type: %s)", cfg.DatabaseType)

	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// A malformed badge catalog stops the server here, never mid-game
	catalog, err := badges.LoadCatalog(cfg.BadgeCatalogPath)
	if err != nil {
		log.Fatalf("Failed to load badge catalog: %v", err)
	}
	log.Printf("Badge catalog loaded: %d badges", len(catalog.All()))

	// Initialize repositories
	eventRepo := repository.NewEventRepository(db)
	actorRepo := repository.NewActorRepository(db)
	badgeRepo := repository.NewBadgeRepository(db)

	// Initialize services
	notifier, err := service.NewNotifier(cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.AppBaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize badge notifier: %v", err)
	}

	ldg := ledger.New(db, eventRepo, actorRepo)
	rankIndex := rank.NewIndex()
	engine := service.NewEngine(ldg, rankIndex, catalog, badgeRepo, actorRepo, notifier)

	if err := engine.Warm(); err != nil {
		log.Fatalf("Failed to warm rank index: %v", err)
	}

	broadcaster := ws.NewBroadcaster(engine, cfg.WSThrottle)
	engine.SetPublisher(broadcaster)

	// Initialize handlers
	if cfg.APISecret == "" {
		log.Println("WARNING: API_SECRET not set, API authentication is disabled")
	}
	limiter := security.NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
	middleware := handlers.NewMiddleware(cfg.APISecret, limiter)
	eventHandler := handlers.NewEventHandler(engine)
	actorHandler := handlers.NewActorHandler(engine)
	leaderboardHandler := handlers.NewLeaderboardHandler(engine)
	badgeHandler := handlers.NewBadgeHandler(engine)

	// Setup routes
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/events", middleware.RateLimit(middleware.RequireAuth(eventHandler.Submit)))
	mux.HandleFunc("GET /api/events/{id}", eventHandler.Get)
	mux.HandleFunc("POST /api/actors", middleware.RequireAuth(actorHandler.Register))
	mux.HandleFunc("GET /api/actors/{id}", actorHandler.Summary)
	mux.HandleFunc("POST /api/actors/{id}/rebuild", middleware.RequireAuth(actorHandler.Rebuild))
	mux.HandleFunc("GET /api/leaderboard", leaderboardHandler.Get)
	mux.HandleFunc("GET /api/badges", badgeHandler.List)
	mux.HandleFunc("GET /ws/leaderboard", broadcaster.Handler)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// No global write timeout: /ws/leaderboard connections are long-lived
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
