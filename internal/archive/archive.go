// Package archive persists finished assistant exchanges to external sinks.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/bank-assistant/internal/domain"
	"github.com/dvloznov/bank-assistant/internal/jobs"
	"github.com/dvloznov/bank-assistant/internal/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TurnRow is one archived conversation turn.
type TurnRow struct {
	TurnID    string    `bigquery:"turn_id" json:"turn_id"`
	SessionID string    `bigquery:"session_id" json:"session_id"`
	UserID    string    `bigquery:"user_id" json:"user_id"`
	TurnIndex int64     `bigquery:"turn_index" json:"turn_index"`
	Role      string    `bigquery:"role" json:"role"`
	Content   string    `bigquery:"content" json:"content"`
	Intent    string    `bigquery:"intent" json:"intent,omitempty"`
	Matched   bool      `bigquery:"matched" json:"matched"`
	CreatedTS time.Time `bigquery:"created_ts" json:"created_ts"`
}

// Save implements bigquery.ValueSaver. TurnID doubles as the insert id so
// retried inserts are deduplicated.
func (r *TurnRow) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"turn_id":    r.TurnID,
		"session_id": r.SessionID,
		"user_id":    r.UserID,
		"turn_index": r.TurnIndex,
		"role":       r.Role,
		"content":    r.Content,
		"intent":     r.Intent,
		"matched":    r.Matched,
		"created_ts": r.CreatedTS,
	}, r.TurnID, nil
}

// Turn converts the row back to a conversation turn.
func (r TurnRow) Turn() domain.Turn {
	return domain.Turn{Role: domain.Role(r.Role), Content: r.Content}
}

// TurnID builds the id of one row of an exchange: offset 0 is the user
// turn and 1 the assistant turn. Exchange ids are unique per exchange, so
// a session id reused after a reset or expiry never collides, while a
// retried job rewrites the same ids.
func TurnID(exchangeID string, offset int64) string {
	return exchangeID + ":" + strconv.FormatInt(offset, 10)
}

// RowsFromJob expands an exchange into its user and assistant rows.
func RowsFromJob(job *jobs.ArchiveTurnsJob) []*TurnRow {
	at := job.At
	if at.IsZero() {
		at = job.CreatedAt
	}
	base := int64(job.TurnIndex)
	exchangeID := job.JobID
	if exchangeID == "" {
		exchangeID = uuid.NewString()
	}

	mk := func(offset int64, role domain.Role, content string) *TurnRow {
		return &TurnRow{
			TurnID:    TurnID(exchangeID, offset),
			SessionID: job.SessionID,
			UserID:    job.UserID,
			TurnIndex: base + offset,
			Role:      string(role),
			Content:   content,
			Intent:    job.Intent,
			Matched:   job.Matched,
			CreatedTS: at.UTC(),
		}
	}
	return []*TurnRow{
		mk(0, domain.RoleUser, job.Query),
		mk(1, domain.RoleAssistant, job.Response),
	}
}

// Sink receives archived turns.
type Sink interface {
	Name() string
	WriteTurns(ctx context.Context, rows []*TurnRow) error
}

// Reader reads archived turns back.
type Reader interface {
	ListTurns(ctx context.Context, sessionID string) ([]*TurnRow, error)
	ListTurnsByDateRange(ctx context.Context, start, end time.Time) ([]*TurnRow, error)
}

// Multi writes to every sink and joins their errors.
type Multi []Sink

// Name implements Sink.
func (m Multi) Name() string {
	return "multi"
}

// WriteTurns implements Sink. A failing sink does not stop the others.
func (m Multi) WriteTurns(ctx context.Context, rows []*TurnRow) error {
	var errs []error
	for _, s := range m {
		if err := s.WriteTurns(ctx, rows); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// LogSink writes turns to a logger. It is the sink used when no external
// archive is configured.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "archive.log").Logger()}
}

// Name implements Sink.
func (s *LogSink) Name() string {
	return "log"
}

// WriteTurns implements Sink.
func (s *LogSink) WriteTurns(ctx context.Context, rows []*TurnRow) error {
	for _, r := range rows {
		s.log.Debug().
			Str("turn_id", r.TurnID).
			Str("session_id", r.SessionID).
			Str("role", r.Role).
			Str("intent", r.Intent).
			Bool("matched", r.Matched).
			Int("content_len", len(r.Content)).
			Msg("Archived turn")
	}
	return nil
}

// Handler returns a job handler that writes archive jobs to sink.
func Handler(sink Sink) jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		j, ok := job.(*jobs.ArchiveTurnsJob)
		if !ok {
			return fmt.Errorf("archive handler: unexpected job type %s", job.GetType())
		}

		rows := RowsFromJob(j)
		if err := sink.WriteTurns(ctx, rows); err != nil {
			return fmt.Errorf("archive job %s: %w", j.JobID, err)
		}

		log := logger.FromContext(ctx)
		log.Debug().
			Str("job_id", j.JobID).
			Str("session_id", j.SessionID).
			Str("sink", sink.Name()).
			Int("rows", len(rows)).
			Msg("Archived exchange")
		return nil
	}
}
