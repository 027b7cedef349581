// Command seed populates a development database with demo chat data.
package main

import (
	"flag"
	"log"

	"commons/internal/config"
	"commons/internal/database"
	"commons/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 25, "Number of users to create")
	numChannels := flag.Int("channels", 5, "Number of channels to create")
	numMessages := flag.Int("messages", 500, "Number of messages to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

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

	s := seed.NewSeeder(db, seed.Options{
		Users:    *numUsers,
		Channels: *numChannels,
		Messages: *numMessages,
		MaxDays:  30,
	})

	if *shouldClean {
		if err := s.ClearAll(); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}
	if err := s.Run(); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Println("Done. The database now holds demo chat activity.")
}
