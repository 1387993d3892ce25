package main

import (
	"context"
	"log"
	"os"

	"atelier/internal/database"
	"atelier/internal/repository"
)

// Prunes sessions whose refresh token has expired. Meant to run on a
// schedule; sessions are otherwise only removed by logout or revocation.
func main() {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := database.Connect(databaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}

	sessions := repository.NewSessionRepository(db)
	removed, err := sessions.DeleteExpired(context.Background())
	if err != nil {
		log.Fatalf("session cleanup failed: %v", err)
	}

	log.Printf("session cleanup completed: removed=%d", removed)
}
