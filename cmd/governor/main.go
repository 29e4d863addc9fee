package main

import (
	"context"
	"log"

	"vigil-governor/internal/config"
	"vigil-governor/internal/governor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := governor.BuildLogger(cfg)
	g, err := governor.New(cfg, logger)
	if err != nil {
		logger.Error("governor initialization failed", "error", err)
		return
	}

	if err := g.Run(context.Background()); err != nil {
		logger.Error("governor runtime failed", "error", err)
	}
}
