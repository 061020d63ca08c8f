// Command main runs the database seeder for local development.
package main

import (
	"context"
	"flag"
	"log"

	"jurutani/internal/config"
	"jurutani/internal/database"
	"jurutani/internal/seed"
)

func main() {
	numProfiles := flag.Int("profiles", 20, "Number of profiles to create")
	messagesPer := flag.Int("messages", 12, "Messages per conversation")
	shouldClean := flag.Bool("clean", true, "Clean chat tables before seeding")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	s := seed.NewSeeder(db)
	if *shouldClean {
		if err := s.ClearAll(); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	profiles, err := s.Profiles(*numProfiles)
	if err != nil {
		log.Fatalf("Profile seeding failed: %v", err)
	}

	n, err := s.Conversations(context.Background(), profiles, *messagesPer)
	if err != nil {
		log.Fatalf("Conversation seeding failed: %v", err)
	}

	log.Printf("Seeded %d profiles and %d conversations", len(profiles), n)
}
