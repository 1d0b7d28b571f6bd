package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bank-assistant/internal/archive"
	"github.com/dvloznov/bank-assistant/internal/logger"
	"github.com/rs/zerolog"
)

var (
	target        = flag.String("target", targetBigQuery, "Archive backend to migrate: bigquery or postgres")
	databaseURL   = flag.String("database-url", os.Getenv("DATABASE_URL"), "Postgres connection string (or set DATABASE_URL)")
	projectID     = flag.String("project", os.Getenv("GCP_PROJECT"), "GCP project ID (required, or set GCP_PROJECT)")
	datasetID     = flag.String("dataset", envOr("BQ_DATASET", "bank_assistant"), "BigQuery dataset ID")
	tableID       = flag.String("table", envOr("BQ_TABLE", archive.DefaultTurnsTable), "Table for archived turns")
	appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	migrationsDir = flag.String("migrations", "", "Directory of migration files (empty uses the bundled set)")
	list          = flag.Bool("list", false, "Print the migrations and exit without connecting")
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	flag.Parse()
	log := logger.New()

	migrations, err := loadMigrations(*target, *migrationsDir, map[string]string{
		"PROJECT_ID":  *projectID,
		"DATASET_ID":  *datasetID,
		"TURNS_TABLE": *tableID,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}
	log.Info().Int("count", len(migrations)).Msg("Found migration files")

	if *list {
		printMigrations(os.Stdout, migrations)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var n int
	if *target == targetPostgres {
		n, err = migratePostgres(ctx, migrations, log)
	} else {
		n, err = migrateBigQuery(ctx, migrations, log)
	}
	if err != nil {
		log.Fatal().Err(err).Int("applied", n).Msg("Migration failed")
	}

	if n == 0 {
		log.Info().Msg("No pending migrations. Database is up to date.")
		return
	}
	log.Info().Int("applied", n).Msg("All migrations applied successfully")
}

func migrateBigQuery(ctx context.Context, migrations []archive.Migration, log zerolog.Logger) (int, error) {
	if *projectID == "" {
		log.Fatal().Msg("Error: -project flag is required. Please specify your GCP project ID.")
	}

	client, err := bigquery.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	log.Info().Str("project", *projectID).Str("dataset", *datasetID).Msg("Connected to BigQuery")

	return archive.NewMigrator(client, *projectID, *datasetID, *appliedBy, log).Run(ctx, migrations)
}

func migratePostgres(ctx context.Context, migrations []archive.Migration, log zerolog.Logger) (int, error) {
	if *databaseURL == "" {
		log.Fatal().Msg("Error: -database-url flag is required for the postgres target.")
	}

	pool, err := archive.Connect(ctx, *databaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Postgres")
	}
	defer pool.Close()

	log.Info().Msg("Connected to Postgres")

	return archive.NewPostgresMigrator(pool, *appliedBy, log).Run(ctx, migrations)
}

const (
	targetBigQuery = "bigquery"
	targetPostgres = "postgres"
)

// loadMigrations reads migrations for target from dir, or the bundled set
// when dir is empty.
func loadMigrations(target, dir string, vars map[string]string) ([]archive.Migration, error) {
	var fsys fs.FS
	switch target {
	case targetBigQuery:
		fsys = archive.Migrations()
	case targetPostgres:
		fsys = archive.PostgresMigrations()
	default:
		return nil, fmt.Errorf("unknown target %q", target)
	}
	if dir != "" {
		fsys = os.DirFS(dir)
	}
	return archive.ReadMigrations(fsys, vars)
}

func printMigrations(w io.Writer, migrations []archive.Migration) {
	for _, m := range migrations {
		fmt.Fprintf(w, "%04d  %-40s  %s\n", m.Version, m.Name, m.Checksum[:12])
	}
}
