package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/bank-assistant/internal/archive"
	"github.com/dvloznov/bank-assistant/internal/config"
	"github.com/dvloznov/bank-assistant/internal/logger"
)

func main() {
	log := logger.New()

	startDateStr := flag.String("start-date", "", "Start date in YYYY-MM-DD format (required)")
	endDateStr := flag.String("end-date", "", "End date in YYYY-MM-DD format, inclusive (required)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")

	// Archive location and Notion credentials come from the shared
	// configuration flags.
	cfg, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if !cfg.BigQueryEnabled() && !cfg.PostgresEnabled() {
		log.Fatal().Msg("Error: --project and --dataset, or --database-url, are required")
	}
	if !cfg.NotionEnabled() {
		log.Fatal().Msg("Error: --notion-token and --notion-db-id are required")
	}

	start, end, err := parseDateRange(*startDateStr, *endDateStr)
	if err != nil {
		log.Fatal().Err(err).Msg("Error: invalid date range")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Str("start_date", *startDateStr).
		Str("end_date", *endDateStr).
		Bool("dry_run", *dryRun).
		Msg("Starting Notion sync")

	var reader archive.Reader
	if cfg.BigQueryEnabled() {
		bq, err := archive.NewBigQuerySink(ctx, cfg.GCPProject, cfg.BQDataset, cfg.BQTable)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize BigQuery archive")
		}
		defer bq.Close()
		reader = bq
	} else {
		pool, err := archive.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Postgres")
		}
		defer pool.Close()
		pg, err := archive.NewPostgresSink(pool, cfg.BQTable)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Postgres archive")
		}
		reader = pg
	}

	notion := archive.NewNotionClient(cfg.NotionToken)

	stats, err := archive.SyncTurnsToNotion(ctx, reader, notion, cfg.NotionDBID, start, end, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %d turns, %d created, %d skipped, %d failed.\n",
		stats.Total, stats.Created, stats.Skipped, stats.Failed)
}

// parseDateRange turns inclusive YYYY-MM-DD dates into a half-open UTC range.
func parseDateRange(startStr, endStr string) (time.Time, time.Time, error) {
	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, errors.New("--start-date and --end-date are required")
	}
	start, err := civil.ParseDate(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start-date: %w", err)
	}
	end, err := civil.ParseDate(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end-date: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end-date %s is before start-date %s", end, start)
	}
	return start.In(time.UTC), end.AddDays(1).In(time.UTC), nil
}
