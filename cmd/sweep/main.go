// Command main runs a single expiry sweep and exits. Intended for cron or
// one-off operational use.
package main

import (
	"context"
	"log"
	"time"

	"foodshare/internal/config"
	"foodshare/internal/database"
	"foodshare/internal/expiry"
	"foodshare/internal/middleware"
	"foodshare/internal/repository"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo := repository.NewListingRepository(db)
	sweeper := expiry.NewSweeper(repo, cfg.SweepInterval, middleware.Logger)
	sweeper.SweepOnce(ctx)
}
