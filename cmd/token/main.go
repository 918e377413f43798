// Command main mints a bearer token for local testing.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"socialgraph/internal/config"
	"socialgraph/internal/middleware"
	"socialgraph/internal/models"
)

func main() {
	uid := flag.String("uid", "", "User ID to put in the token subject")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if err := models.ValidateUID(*uid); err != nil {
		log.Fatalf("Invalid -uid: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to mint tokens with a production secret")
	}

	token, err := middleware.IssueToken(cfg.JWTSecret, *uid, *ttl)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
