package archive

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

//go:embed migrations/postgres/*.sql
var embeddedPostgresMigrations embed.FS

// PostgresMigrations returns the bundled Postgres schema migrations.
func PostgresMigrations() fs.FS {
	sub, err := fs.Sub(embeddedPostgresMigrations, "migrations/postgres")
	if err != nil {
		panic(err)
	}
	return sub
}

// PgxConn is the subset of *pgxpool.Pool used by the Postgres archive.
type PgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Connect opens a pgx pool and checks it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("Connect: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("Connect: ping: %w", err)
	}
	return pool, nil
}

// PostgresSink archives turns into a Postgres table and reads them back.
type PostgresSink struct {
	db    PgxConn
	table string
}

// NewPostgresSink creates a sink writing to table. The table name is
// interpolated into SQL, so it must be a plain identifier.
func NewPostgresSink(db PgxConn, table string) (*PostgresSink, error) {
	if table == "" {
		table = DefaultTurnsTable
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("NewPostgresSink: invalid table name %q", table)
	}
	return &PostgresSink{db: db, table: table}, nil
}

// Name implements Sink.
func (s *PostgresSink) Name() string {
	return "postgres"
}

// WriteTurns implements Sink. Rows already stored under the same turn id
// are left untouched, so retried jobs do not duplicate turns.
func (s *PostgresSink) WriteTurns(ctx context.Context, rows []*TurnRow) error {
	q := s.insertSQL()
	for _, r := range rows {
		_, err := s.db.Exec(ctx, q,
			r.TurnID, r.SessionID, r.UserID, r.TurnIndex, r.Role,
			r.Content, r.Intent, r.Matched, r.CreatedTS)
		if err != nil {
			return fmt.Errorf("WriteTurns: inserting %s: %w", r.TurnID, err)
		}
	}
	return nil
}

// ListTurns implements Reader.
func (s *PostgresSink) ListTurns(ctx context.Context, sessionID string) ([]*TurnRow, error) {
	rows, err := s.db.Query(ctx, `SELECT `+turnColumns+`
		FROM `+s.table+`
		WHERE session_id = $1
		ORDER BY turn_index, created_ts`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ListTurns: querying: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanTurn)
	if err != nil {
		return nil, fmt.Errorf("ListTurns: reading rows: %w", err)
	}
	return out, nil
}

// ListTurnsByDateRange implements Reader for [start, end).
func (s *PostgresSink) ListTurnsByDateRange(ctx context.Context, start, end time.Time) ([]*TurnRow, error) {
	rows, err := s.db.Query(ctx, `SELECT `+turnColumns+`
		FROM `+s.table+`
		WHERE created_ts >= $1 AND created_ts < $2
		ORDER BY created_ts, session_id, turn_index`, start, end)
	if err != nil {
		return nil, fmt.Errorf("ListTurnsByDateRange: querying: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanTurn)
	if err != nil {
		return nil, fmt.Errorf("ListTurnsByDateRange: reading rows: %w", err)
	}
	return out, nil
}

func (s *PostgresSink) insertSQL() string {
	return `INSERT INTO ` + s.table + ` (` + turnColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (turn_id) DO NOTHING`
}

func scanTurn(row pgx.CollectableRow) (*TurnRow, error) {
	var r TurnRow
	err := row.Scan(&r.TurnID, &r.SessionID, &r.UserID, &r.TurnIndex, &r.Role,
		&r.Content, &r.Intent, &r.Matched, &r.CreatedTS)
	return &r, err
}

// PostgresMigrator applies schema migrations to a Postgres database. Each
// migration runs in its own transaction together with its bookkeeping row.
type PostgresMigrator struct {
	db        PgxConn
	appliedBy string
	log       zerolog.Logger
}

// NewPostgresMigrator creates a migrator.
func NewPostgresMigrator(db PgxConn, appliedBy string, log zerolog.Logger) *PostgresMigrator {
	return &PostgresMigrator{db: db, appliedBy: appliedBy, log: log}
}

// Run applies every pending migration in order and returns how many ran.
func (m *PostgresMigrator) Run(ctx context.Context, migrations []Migration) (int, error) {
	_, err := m.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			checksum   TEXT,
			applied_by TEXT
		)`)
	if err != nil {
		return 0, fmt.Errorf("Run: ensuring schema_migrations: %w", err)
	}

	rows, err := m.db.Query(ctx, `
		SELECT version, name, applied_at, COALESCE(checksum, ''), COALESCE(applied_by, '')
		FROM schema_migrations
		ORDER BY version`)
	if err != nil {
		return 0, fmt.Errorf("Run: reading applied migrations: %w", err)
	}
	applied, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (AppliedMigration, error) {
		var a AppliedMigration
		err := row.Scan(&a.Version, &a.Name, &a.AppliedAt, &a.Checksum, &a.AppliedBy)
		return a, err
	})
	if err != nil {
		return 0, fmt.Errorf("Run: reading applied migrations: %w", err)
	}

	pending, err := Pending(migrations, applied)
	if err != nil {
		return 0, fmt.Errorf("Run: %w", err)
	}

	for i, mig := range pending {
		m.log.Info().Int("version", mig.Version).Str("name", mig.Name).Msg("Applying migration")
		if err := m.apply(ctx, mig); err != nil {
			return i, fmt.Errorf("Run: migration %04d_%s: %w", mig.Version, mig.Name, err)
		}
	}
	return len(pending), nil
}

func (m *PostgresMigrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, mig.SQL); err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO schema_migrations (version, name, checksum, applied_by) VALUES ($1, $2, $3, $4)`,
		mig.Version, mig.Name, mig.Checksum, m.appliedBy)
	if err != nil {
		return fmt.Errorf("recording: %w", err)
	}
	return tx.Commit(ctx)
}

var (
	_ Sink    = (*PostgresSink)(nil)
	_ Reader  = (*PostgresSink)(nil)
	_ PgxConn = (*pgxpool.Pool)(nil)
)
