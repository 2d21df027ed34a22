// Package main provides the campus data gateway entry point.
package main

import (
	"context"
	"os"

	"github.com/garyellow/campuskit/internal/app"
	"github.com/garyellow/campuskit/internal/config"
	"github.com/garyellow/campuskit/internal/logger"
)

func main() {
	// Bootstrap logger until the configured one exists.
	log := logger.New("info")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}

	application, err := app.Initialize(context.Background(), cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize application")
	}

	if err := application.Run(); err != nil {
		os.Exit(1)
	}
}
