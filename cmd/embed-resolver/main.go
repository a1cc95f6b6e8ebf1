// Package main is the entry point for the embed resolver.
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"embed-resolver-go/internal/app"
)

func main() {
	// Optional .env for local development.
	_ = godotenv.Load()

	application, err := app.New()
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	defer application.Shutdown()

	if err := application.Run(); err != nil {
		log.Printf("server error: %v", err)
		os.Exit(1)
	}
}
