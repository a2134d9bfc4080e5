// Command main seeds the database with demo listings.
package main

import (
	"flag"
	"log"

	"foodshare/internal/config"
	"foodshare/internal/database"
	"foodshare/internal/seed"
)

func main() {
	count := flag.Int("count", 100, "Number of listings to generate")
	centerLat := flag.Float64("lat", 43.6532, "Center latitude for generated listings")
	centerLng := flag.Float64("lng", -79.3832, "Center longitude for generated listings")
	spreadKm := flag.Float64("spread", 8, "Spread radius in kilometers")
	fixture := flag.String("fixture", "", "YAML fixture file to load instead of generating")
	shouldClean := flag.Bool("clean", true, "Clean listings before seeding")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if *shouldClean {
		if err := seed.ClearAll(db); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	if *fixture != "" {
		n, err := seed.LoadFixtures(db, *fixture)
		if err != nil {
			log.Fatalf("Fixture load failed: %v", err)
		}
		log.Printf("Loaded %d listings from %s", n, *fixture)
		return
	}

	factory := seed.NewFactory(db, seed.Options{
		CenterLat: *centerLat,
		CenterLng: *centerLng,
		SpreadKm:  *spreadKm,
	})
	listings, err := factory.CreateListings(*count)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Created %d listings around (%.4f, %.4f)", len(listings), *centerLat, *centerLng)
}
