// Command audit replays the event log and reports drift between stored and
// recomputed ledger state. With -fix it also persists the recomputed state.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"ecopoints/internal/config"
	"ecopoints/internal/database"
	"ecopoints/internal/ledger"
	"ecopoints/internal/models"
	"ecopoints/internal/repository"
)

func main() {
	actorID := flag.String("actor", "", "audit a single actor (default: all students)")
	fix := flag.Bool("fix", false, "persist recomputed state instead of only reporting")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DatabaseType, cfg.DatabasePath, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	eventRepo := repository.NewEventRepository(db)
	actorRepo := repository.NewActorRepository(db)
	ldg := ledger.New(db, eventRepo, actorRepo)

	var targets []models.Actor
	if *actorID != "" {
		a, err := actorRepo.Get(*actorID)
		if err != nil {
			log.Fatalf("Failed to load actor %s: %v", *actorID, err)
		}
		targets = []models.Actor{*a}
	} else {
		targets, err = actorRepo.ListByKind(models.KindStudent)
		if err != nil {
			log.Fatalf("Failed to list students: %v", err)
		}
	}

	drifted := 0
	for _, stored := range targets {
		count, err := eventRepo.CountForActor(stored.ID)
		if err != nil {
			log.Fatalf("Failed to count events for %s: %v", stored.ID, err)
		}

		if *fix {
			rebuilt, err := ldg.Rebuild(stored.ID)
			if err != nil {
				log.Fatalf("Rebuild of %s failed: %v", stored.ID, err)
			}
			if rebuilt.Balance != stored.Balance || rebuilt.Streak != stored.Streak {
				drifted++
				fmt.Printf("FIXED %s: balance %d -> %d, streak %d -> %d (%d events)\n",
					stored.ID, stored.Balance, rebuilt.Balance, stored.Streak, rebuilt.Streak, count)
			}
			continue
		}

		// Report-only: fold the events without persisting
		recomputed := stored
		recomputed.Balance = 0
		recomputed.Streak = 0
		recomputed.LastActivity = nil
		err = eventRepo.ForEachByActor(stored.ID, nil, func(e models.Event) error {
			ledger.Advance(&recomputed, e)
			return nil
		})
		if err != nil {
			log.Fatalf("Replay of %s failed: %v", stored.ID, err)
		}

		if recomputed.Balance != stored.Balance || recomputed.Streak != stored.Streak {
			drifted++
			fmt.Printf("DRIFT %s: stored balance %d streak %d, recomputed balance %d streak %d (%d events)\n",
				stored.ID, stored.Balance, stored.Streak, recomputed.Balance, recomputed.Streak, count)
		}
	}

	if drifted > 0 {
		fmt.Printf("%d of %d actors drifted\n", drifted, len(targets))
		if !*fix {
			os.Exit(1)
		}
		return
	}
	fmt.Printf("all %d actors consistent\n", len(targets))
}
