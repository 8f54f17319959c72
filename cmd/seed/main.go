// Command main runs the show catalog seeder.
package main

import (
	"flag"
	"log"

	"github.com/egypcoder/grouptherapy-radio/internal/config"
	"github.com/egypcoder/grouptherapy-radio/internal/database"
	"github.com/egypcoder/grouptherapy-radio/internal/seed"
)

func main() {
	numShows := flag.Int("shows", 14, "Number of fake shows to generate")
	fixture := flag.String("fixture", "", "Path to a YAML lineup fixture to load first")
	shouldClean := flag.Bool("clean", true, "Clean the catalog before seeding")
	flag.Parse()

	log.Println("Show Catalog Seeder")
	log.Printf("Target: %d shows, fixture=%q, clean=%v", *numShows, *fixture, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	s := seed.NewSeeder(db)
	if err := s.Run(seed.Options{
		NumShows:    *numShows,
		ShouldClean: *shouldClean,
		FixturePath: *fixture,
	}); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Println("Seeding complete")
}
