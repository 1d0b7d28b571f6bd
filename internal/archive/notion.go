package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/bank-assistant/internal/logger"
	"github.com/jomei/notionapi"
)

// notionTextLimit is the longest rich-text content Notion accepts.
const notionTextLimit = 2000

// NotionService is the subset of the Notion API the archive uses.
type NotionService interface {
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

// NotionClient implements NotionService with the Notion SDK.
type NotionClient struct {
	client *notionapi.Client
}

// NewNotionClient creates a new NotionClient with the provided API token.
func NewNotionClient(token string) *NotionClient {
	return &NotionClient{
		client: notionapi.NewClient(notionapi.Token(token)),
	}
}

// CreatePage creates a new page in a Notion database with the given properties.
func (n *NotionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	}

	page, err := n.client.Page.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("CreatePage: %w", err)
	}
	return page, nil
}

// QueryDatabase queries a Notion database.
func (n *NotionClient) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	resp, err := n.client.Database.Query(ctx, notionapi.DatabaseID(databaseID), req)
	if err != nil {
		return nil, fmt.Errorf("QueryDatabase: %w", err)
	}
	return resp, nil
}

// NotionSink writes each turn as a page in a Notion database.
type NotionSink struct {
	notion     NotionService
	databaseID string
}

// NewNotionSink creates a NotionSink.
func NewNotionSink(notion NotionService, databaseID string) *NotionSink {
	return &NotionSink{notion: notion, databaseID: databaseID}
}

// Name implements Sink.
func (s *NotionSink) Name() string {
	return "notion"
}

// WriteTurns implements Sink.
func (s *NotionSink) WriteTurns(ctx context.Context, rows []*TurnRow) error {
	var errs []error
	for _, r := range rows {
		if _, err := s.notion.CreatePage(ctx, s.databaseID, TurnToNotionProperties(r)); err != nil {
			errs = append(errs, fmt.Errorf("turn %s: %w", r.TurnID, err))
		}
	}
	return errors.Join(errs...)
}

// TurnToNotionProperties maps a turn onto the archive database columns.
func TurnToNotionProperties(r *TurnRow) notionapi.Properties {
	props := notionapi.Properties{
		"Turn ID": notionapi.TitleProperty{
			Title: []notionapi.RichText{richText(r.TurnID)},
		},
		"Session": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{richText(r.SessionID)},
		},
		"Role": notionapi.SelectProperty{
			Select: notionapi.Option{Name: r.Role},
		},
		"Content": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{richText(truncate(r.Content, notionTextLimit))},
		},
		"Turn": notionapi.NumberProperty{
			Number: float64(r.TurnIndex),
		},
		"Matched": notionapi.CheckboxProperty{
			Checkbox: r.Matched,
		},
	}

	if r.UserID != "" {
		props["User"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{richText(r.UserID)},
		}
	}
	if r.Intent != "" {
		props["Intent"] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: r.Intent},
		}
	}
	if !r.CreatedTS.IsZero() {
		d := notionapi.Date(r.CreatedTS)
		props["Created"] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &d},
		}
	}
	return props
}

func richText(s string) notionapi.RichText {
	return notionapi.RichText{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: s},
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

// SyncStats summarises a Notion sync run.
type SyncStats struct {
	Total   int
	Created int
	Skipped int
	Failed  int
}

// SyncTurnsToNotion copies turns archived in [start, end) from reader into a
// Notion database. Turns whose id already has a page are skipped, so the
// sync can be re-run over overlapping ranges.
func SyncTurnsToNotion(ctx context.Context, reader Reader, notion NotionService, databaseID string, start, end time.Time, dryRun bool) (SyncStats, error) {
	log := logger.FromContext(ctx)

	rows, err := reader.ListTurnsByDateRange(ctx, start, end)
	if err != nil {
		return SyncStats{}, fmt.Errorf("SyncTurnsToNotion: reading turns: %w", err)
	}
	stats := SyncStats{Total: len(rows)}
	log.Info().Int("turn_count", len(rows)).Msg("Retrieved turns from archive")

	pages, err := queryAllNotionPages(ctx, notion, databaseID)
	if err != nil {
		return stats, fmt.Errorf("SyncTurnsToNotion: %w", err)
	}

	existing := make(map[string]bool, len(pages))
	for _, p := range pages {
		if id := extractTurnID(p); id != "" {
			existing[id] = true
		}
	}

	for _, r := range rows {
		if existing[r.TurnID] {
			stats.Skipped++
			continue
		}
		if dryRun {
			log.Info().Str("turn_id", r.TurnID).Msg("[DRY RUN] Would create Notion page")
			stats.Created++
			continue
		}

		page, err := notion.CreatePage(ctx, databaseID, TurnToNotionProperties(r))
		if err != nil {
			log.Warn().Err(err).Str("turn_id", r.TurnID).Msg("Failed to create Notion page")
			stats.Failed++
			continue
		}
		log.Debug().Str("turn_id", r.TurnID).Str("page_id", string(page.ID)).Msg("Created Notion page")
		existing[r.TurnID] = true
		stats.Created++
	}

	log.Info().
		Int("total", stats.Total).
		Int("created", stats.Created).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Msg("Turn sync completed")
	return stats, nil
}

func queryAllNotionPages(ctx context.Context, notion NotionService, databaseID string) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: 100}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notion.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}
		all = append(all, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}
	return all, nil
}

func extractTurnID(page notionapi.Page) string {
	prop, ok := page.Properties["Turn ID"]
	if !ok {
		return ""
	}
	title, ok := prop.(*notionapi.TitleProperty)
	if !ok || len(title.Title) == 0 {
		return ""
	}
	if title.Title[0].PlainText != "" {
		return title.Title[0].PlainText
	}
	if title.Title[0].Text != nil {
		return title.Title[0].Text.Content
	}
	return ""
}

var _ Sink = (*NotionSink)(nil)
