package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/bank-assistant/internal/api"
	"github.com/dvloznov/bank-assistant/internal/app"
	"github.com/dvloznov/bank-assistant/internal/config"
	"github.com/dvloznov/bank-assistant/internal/logger"
)

func main() {
	cfg, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log, err := logger.NewWithLevel(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create logger")
	}

	ctx := context.Background()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize assistant")
	}

	// Workers outlive request contexts; Shutdown drains them.
	if err := a.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start background workers")
	}

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.NewRouter(api.Deps{
			Assistant: a.Assistant,
			Sessions:  a.Sessions,
			Jobs:      a.Jobs,
			Archive:   a.Archive,
			Logger:    log,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GenerationTimeout*2 + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if err := a.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping background workers")
	}

	log.Info().Msg("Server exited")
}
