package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"shoplist/internal/core"
	ports "shoplist/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultSheetName = "History"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	historySheet  string
}

var _ ports.HistoryExporter = (*Client)(nil)

// New creates a Sheets client for the given spreadsheet using service
// account credentials from the environment. sheetName defaults to "History".
func New(ctx context.Context, spreadsheetID, sheetName string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		sheetName = defaultSheetName
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, historySheet: sheetName}, nil
}

// credentialsFromEnv reads service account credentials from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS, in that order.
func credentialsFromEnv(ctx context.Context) ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); inline != "" {
		slog.DebugContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	}

	path := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	slog.DebugContext(ctx, "Reading service account credentials", "path", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	credentialsJSON, err := credentialsFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created")
	return service, nil
}

// ExportHistory writes h to the history sheet, updating the row already
// holding the same user and month or appending a new one.
func (c *Client) ExportHistory(ctx context.Context, h core.MonthlyHistory) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if h.UserID <= 0 || h.Month == "" {
		return "", core.Invalid("history", "user and month are required")
	}

	keys := fmt.Sprintf("%s!A:B", c.historySheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, keys).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", keys, err)
	}

	rows := [][]any{historyValues(h)}
	row, found := findHistoryRow(resp.Values, h.UserID, h.Month)
	if !found && len(resp.Values) == 0 {
		rows = [][]any{historyHeader, historyValues(h)}
		row = 1
	}

	last := row + len(rows) - 1
	rng := fmt.Sprintf("%s!A%d:F%d", c.historySheet, row, last)
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", rng, err)
	}

	ref := fmt.Sprintf("%s!A%d:F%d", c.historySheet, last, last)
	slog.DebugContext(ctx, "History row exported", "ref", ref, "updated", found)
	return ref, nil
}
