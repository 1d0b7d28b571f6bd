// Package app wires the assistant and its infrastructure from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dvloznov/bank-assistant/internal/archive"
	"github.com/dvloznov/bank-assistant/internal/assistant"
	"github.com/dvloznov/bank-assistant/internal/config"
	"github.com/dvloznov/bank-assistant/internal/format"
	"github.com/dvloznov/bank-assistant/internal/generation"
	"github.com/dvloznov/bank-assistant/internal/jobs/inmemory"
	"github.com/dvloznov/bank-assistant/internal/ledger"
	"github.com/dvloznov/bank-assistant/internal/personalize"
	"github.com/dvloznov/bank-assistant/internal/session"
	"github.com/rs/zerolog"
)

// App holds the long-lived components of a running assistant.
type App struct {
	Assistant *assistant.Assistant
	Sessions  *session.Manager
	Jobs      *inmemory.Store
	Queue     *inmemory.Queue
	// Archive is nil unless BigQuery or Postgres is configured. BigQuery
	// wins when both are.
	Archive archive.Reader

	sink    archive.Sink
	cleanup *session.CleanupService
	closers []func() error
	log     zerolog.Logger
}

// New builds an App. Nothing runs in the background until Start.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{log: log}

	repo, err := ledger.Load(ctx, cfg.LedgerSource, ledger.NewStorageFetcher())
	if err != nil {
		return nil, fmt.Errorf("New: loading ledger: %w", err)
	}
	log.Info().Strs("accounts", repo.IDs()).Str("default", repo.DefaultID()).Msg("Ledger loaded")

	domainGen, generalGen, err := newGenerators(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if domainGen == nil {
		log.Warn().Msg("No Gemini API key configured - unmatched queries will get the apology response")
	}

	sinks := archive.Multi{}
	if cfg.BigQueryEnabled() {
		bq, err := archive.NewBigQuerySink(ctx, cfg.GCPProject, cfg.BQDataset, cfg.BQTable)
		if err != nil {
			return nil, fmt.Errorf("New: %w", err)
		}
		a.closers = append(a.closers, bq.Close)
		a.Archive = bq
		sinks = append(sinks, bq)
		log.Info().Str("dataset", cfg.BQDataset).Str("table", cfg.BQTable).Msg("BigQuery archive enabled")
	}
	if cfg.PostgresEnabled() {
		pool, err := archive.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("New: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		pg, err := archive.NewPostgresSink(pool, cfg.BQTable)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("New: %w", err)
		}
		if a.Archive == nil {
			a.Archive = pg
		}
		sinks = append(sinks, pg)
		log.Info().Str("table", cfg.BQTable).Msg("Postgres archive enabled")
	}
	if cfg.NotionEnabled() {
		sinks = append(sinks, archive.NewNotionSink(archive.NewNotionClient(cfg.NotionToken), cfg.NotionDBID))
		log.Info().Msg("Notion archive enabled")
	}
	if len(sinks) == 0 {
		a.sink = archive.NewLogSink(log)
	} else {
		a.sink = sinks
	}

	a.Jobs = inmemory.NewStore()
	a.Queue = inmemory.NewQueue(cfg.QueueBuffer, a.Jobs,
		inmemory.WithWorkers(cfg.QueueWorkers),
		inmemory.WithLogger(log),
	)

	a.Sessions = session.NewManager(cfg.SessionIdle)
	a.cleanup = session.NewCleanupService(a.Sessions, session.DefaultCleanupInterval, log)

	a.Assistant = assistant.New(assistant.Config{
		Repository:   repo,
		Formatter:    format.New(cfg.CurrencySymbol, time.Now),
		Chain:        generation.NewChain(domainGen, generalGen, cfg.Params(), log),
		Personalizer: personalize.New(cfg.PersonalizationPolicy(), rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), time.Now),
		Archiver:     a.Queue,
		Window:       cfg.HistoryWindow,
		Logger:       log,
	})

	return a, nil
}

// newGenerators returns nil generators when Gemini is not configured.
func newGenerators(ctx context.Context, cfg *config.Config) (domainGen, generalGen generation.Generator, err error) {
	if !cfg.GeminiEnabled() {
		return nil, nil, nil
	}

	d, err := generation.NewGeminiGenerator(ctx, generation.GeminiConfig{
		APIKey:      cfg.GeminiAPIKey,
		Model:       cfg.DomainModel,
		Instruction: cfg.BankingInstruction(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("New: domain generator: %w", err)
	}
	g, err := generation.NewGeminiGenerator(ctx, generation.GeminiConfig{
		APIKey:      cfg.GeminiAPIKey,
		Model:       cfg.GeneralModel,
		Instruction: generation.GeneralInstruction,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("New: general generator: %w", err)
	}

	return guard(d, cfg), guard(g, cfg), nil
}

func guard(gen generation.Generator, cfg *config.Config) generation.Generator {
	if cfg.Serialize {
		return generation.NewBounded(generation.NewSerialized(gen), 1, cfg.GenerationTimeout)
	}
	return generation.NewBounded(gen, cfg.MaxConcurrent, cfg.GenerationTimeout)
}

// Start launches the archive workers and the session sweeper.
func (a *App) Start(ctx context.Context) error {
	if err := a.Queue.Start(ctx, archive.Handler(a.sink)); err != nil {
		return fmt.Errorf("Start: archive queue: %w", err)
	}
	a.cleanup.Start(ctx)
	a.log.Info().Str("sink", a.sink.Name()).Msg("Archive workers started")
	return nil
}

// Shutdown stops background work, flushing queued archive jobs, and
// releases clients.
func (a *App) Shutdown(ctx context.Context) error {
	a.cleanup.Stop()

	var errs []error
	if err := a.Queue.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping archive queue: %w", err))
	}
	if err := a.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
