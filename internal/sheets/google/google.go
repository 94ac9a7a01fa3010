package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"finanzas/internal/config"
	"finanzas/internal/core"
	applog "finanzas/internal/log"
	ports "finanzas/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client writes expense exports to a Google spreadsheet. Each household and
// period gets its own tab, rewritten on every export.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base tab name; the household id and period are appended.
	sheetBase string
}

var _ ports.ExportWriter = (*Client)(nil)

// NewFromConfig builds a client from the service account credentials named
// in cfg. Inline JSON wins over a file path.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Client, error) {
	if strings.TrimSpace(cfg.GoogleSpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	creds, err := loadCredentials(cfg.GoogleServiceAccountJSON, cfg.GoogleServiceAccountFile)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets export enabled",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleExportSheetName)
	return New(svc, cfg.GoogleSpreadsheetID, cfg.GoogleExportSheetName), nil
}

// New wraps an existing service. Tests point the service at a fake endpoint.
func New(svc *gsheet.Service, spreadsheetID, sheetBase string) *Client {
	if sheetBase == "" {
		sheetBase = "Export"
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetBase: sheetBase}
}

func loadCredentials(inline, file string) ([]byte, error) {
	inline = strings.TrimSpace(inline)
	file = strings.TrimSpace(file)
	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// newHTTPClientWithPooling keeps connections to the Sheets API warm between
// exports.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// SheetName is the tab an export lands in, e.g. "Export 7 03-2024".
func (c *Client) SheetName(householdID int64, p core.Period) string {
	return fmt.Sprintf("%s %d %s", c.sheetBase, householdID, p)
}

// WriteExport replaces the contents of the export's tab with the header and
// one row per expense, creating the tab when missing. It returns the A1
// range that was written.
func (c *Client) WriteExport(ctx context.Context, export core.Export) (string, error) {
	if err := export.Period.Validate(); err != nil {
		return "", err
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialised")
	}
	sheet := c.SheetName(export.HouseholdID, export.Period)
	if err := c.ensureSheet(ctx, sheet); err != nil {
		return "", err
	}

	clearRange := fmt.Sprintf("%s!A:G", quoteSheet(sheet))
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear %s: %w", clearRange, err)
	}

	writeRange := fmt.Sprintf("%s!A1", quoteSheet(sheet))
	vr := &gsheet.ValueRange{Values: exportValues(export)}
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, writeRange, vr).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", writeRange, err)
	}
	ref := writeRange
	if resp != nil && resp.UpdatedRange != "" {
		ref = resp.UpdatedRange
	}
	slog.InfoContext(ctx, "Export written to sheet",
		applog.FieldHouseholdID, export.HouseholdID,
		applog.FieldPeriod, export.Period.String(),
		"rows", len(export.Rows),
		"range", ref)
	return ref, nil
}

func (c *Client) ensureSheet(ctx context.Context, title string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: title},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %q: %w", title, err)
	}
	return nil
}

// exportValues lays out the export as a header row followed by records.
func exportValues(export core.Export) [][]interface{} {
	values := make([][]interface{}, 0, len(export.Rows)+1)
	values = append(values, toInterfaces(core.ExportHeader))
	for _, r := range export.Rows {
		values = append(values, toInterfaces(r.Record()))
	}
	return values
}

func toInterfaces(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// quoteSheet wraps a tab name for A1 notation. Embedded quotes are doubled.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
