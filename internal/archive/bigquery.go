package archive

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// DefaultTurnsTable is the table holding archived turns.
const DefaultTurnsTable = "chat_turns"

// BigQuerySink archives turns into a BigQuery table and reads them back.
type BigQuerySink struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	tableID   string
}

// NewBigQuerySink creates a sink with its own BigQuery client.
func NewBigQuerySink(ctx context.Context, projectID, datasetID, tableID string) (*BigQuerySink, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQuerySink: creating client: %w", err)
	}
	return NewBigQuerySinkWithClient(client, projectID, datasetID, tableID), nil
}

// NewBigQuerySinkWithClient creates a sink on a shared client.
func NewBigQuerySinkWithClient(client *bigquery.Client, projectID, datasetID, tableID string) *BigQuerySink {
	if tableID == "" {
		tableID = DefaultTurnsTable
	}
	return &BigQuerySink{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		tableID:   tableID,
	}
}

// Close closes the BigQuery client connection.
func (s *BigQuerySink) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Name implements Sink.
func (s *BigQuerySink) Name() string {
	return "bigquery"
}

// WriteTurns implements Sink.
func (s *BigQuerySink) WriteTurns(ctx context.Context, rows []*TurnRow) error {
	if len(rows) == 0 {
		return nil
	}

	inserter := s.client.DatasetInProject(s.projectID, s.datasetID).Table(s.tableID).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("WriteTurns: inserting rows: %w", err)
	}
	return nil
}

// ListTurns returns the archived turns of one session in order.
func (s *BigQuerySink) ListTurns(ctx context.Context, sessionID string) ([]*TurnRow, error) {
	q := s.client.Query(listTurnsSQL(s.tableRef()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "session_id", Value: sessionID},
	}

	rows, err := readTurns(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListTurns: %w", err)
	}
	return rows, nil
}

// ListTurnsByDateRange returns turns created in [start, end).
func (s *BigQuerySink) ListTurnsByDateRange(ctx context.Context, start, end time.Time) ([]*TurnRow, error) {
	q := s.client.Query(listTurnsByDateSQL(s.tableRef()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "start_ts", Value: start.UTC()},
		{Name: "end_ts", Value: end.UTC()},
	}

	rows, err := readTurns(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListTurnsByDateRange: %w", err)
	}
	return rows, nil
}

func readTurns(ctx context.Context, q *bigquery.Query) ([]*TurnRow, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query read: %w", err)
	}

	var rows []*TurnRow
	for {
		var r TurnRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}

func (s *BigQuerySink) tableRef() string {
	return fmt.Sprintf("`%s.%s.%s`", s.projectID, s.datasetID, s.tableID)
}

const turnColumns = `turn_id, session_id, user_id, turn_index, role, content, intent, matched, created_ts`

func listTurnsSQL(table string) string {
	return `SELECT ` + turnColumns + `
		FROM ` + table + `
		WHERE session_id = @session_id
		ORDER BY turn_index, created_ts`
}

func listTurnsByDateSQL(table string) string {
	return `SELECT ` + turnColumns + `
		FROM ` + table + `
		WHERE created_ts >= @start_ts
		  AND created_ts < @end_ts
		ORDER BY created_ts, session_id, turn_index`
}

var (
	_ Sink   = (*BigQuerySink)(nil)
	_ Reader = (*BigQuerySink)(nil)
)
