package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/ObiAU/hnenricher/internal/app"
	"github.com/ObiAU/hnenricher/internal/config"
	"github.com/ObiAU/hnenricher/internal/observability"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	observability.InitLogger("hn-enricher", cfg.Env)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pipeline, err := app.New(cfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}

	log.Info().Str("env", cfg.Env).Msg("starting HN enricher")
	if err := pipeline.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("pipeline exited with error")
	}
	log.Info().Msg("HN enricher stopped gracefully")
}
