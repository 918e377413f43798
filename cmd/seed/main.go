// Command main seeds a development database with a social graph, either from
// a YAML fixture or generated at random.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"socialgraph/internal/config"
	"socialgraph/internal/database"
	"socialgraph/internal/repository"
	"socialgraph/internal/seed"
	"socialgraph/internal/service"
)

func main() {
	fixturePath := flag.String("fixture", "", "YAML fixture to apply (overrides random generation)")
	numUsers := flag.Int("users", 50, "Number of users to generate")
	friendRatio := flag.Float64("friends", 0.1, "Chance that two generated users are friends")
	pendingRatio := flag.Float64("pending", 0.05, "Chance that two generated users have a pending request")
	seedValue := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	out := flag.String("out", "", "Write the generated fixture to this file")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	var fixture *seed.Fixture
	if *fixturePath != "" {
		fixture, err = seed.LoadFixture(*fixturePath)
		if err != nil {
			log.Fatalf("Failed to load fixture: %v", err)
		}
	} else {
		log.Printf("Generating %d users (seed %d)", *numUsers, *seedValue)
		fixture = seed.RandomFixture(seed.GraphOptions{
			Users:        *numUsers,
			FriendRatio:  *friendRatio,
			PendingRatio: *pendingRatio,
			Seed:         *seedValue,
		})
	}

	if *out != "" {
		if err := seed.WriteFixture(*out, fixture); err != nil {
			log.Fatalf("Failed to write fixture: %v", err)
		}
		log.Printf("Fixture written to %s", *out)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	friends := service.NewFriendService(repository.NewFriendRepository(db), nil)
	stats, err := seed.NewSeeder(friends).Apply(context.Background(), fixture)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Done: %d friendships, %d pending requests, %d skipped",
		stats.Friendships, stats.Pending, stats.Skipped)
}
