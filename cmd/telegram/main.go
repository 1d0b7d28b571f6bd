package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dvloznov/bank-assistant/internal/app"
	"github.com/dvloznov/bank-assistant/internal/config"
	"github.com/dvloznov/bank-assistant/internal/logger"
	"github.com/dvloznov/bank-assistant/internal/telegram"
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

	if cfg.TelegramToken == "" {
		log.Fatal().Msg("Error: --telegram-token is required (or set TELEGRAM_BOT_TOKEN)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize assistant")
	}
	if err := a.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start background workers")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Telegram bot")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := botAPI.GetUpdatesChan(u)

	bot := telegram.New(botAPI, a.Assistant, a.Sessions, cfg.TelegramAccounts(), log)
	log.Info().Str("username", botAPI.Self.UserName).Int("linked_users", len(cfg.TelegramAccounts())).Msg("Telegram bot started")

	bot.Run(ctx, updates)

	log.Info().Msg("Shutting down bot...")
	botAPI.StopReceivingUpdates()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping background workers")
	}

	log.Info().Msg("Bot exited")
}
