// Package google reads task and expense rows from Google Sheets ranges.
// Each range must start with the same header row as the CSV sources.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"personal-analytics/internal/core"
	"personal-analytics/internal/sources"
	"personal-analytics/internal/storage"
)

// Config selects the spreadsheet and the service account used to read it.
type Config struct {
	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string
}

// Client reads value ranges from one spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
}

// New creates a read-only Sheets client from service account credentials.
// CredentialsJSON wins over CredentialsFile; GOOGLE_APPLICATION_CREDENTIALS is the last resort.
func New(ctx context.Context, cfg Config) (*Client, error) {
	id := strings.TrimSpace(cfg.SpreadsheetID)
	if id == "" {
		return nil, errors.New("missing spreadsheet id")
	}

	ts, err := tokenSource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets credentials: %w", err)
	}

	svc, err := gsheet.NewService(ctx, goption.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets client ready", "spreadsheet_id", id)
	return NewWithService(svc, id), nil
}

// NewWithService wraps an existing service, e.g. one pointed at a test endpoint.
func NewWithService(svc *gsheet.Service, spreadsheetID string) *Client {
	return &Client{svc: svc, spreadsheetID: spreadsheetID}
}

func tokenSource(ctx context.Context, cfg Config) (oauth2.TokenSource, error) {
	var (
		credentialsJSON []byte
		err             error
	)

	file := strings.TrimSpace(cfg.CredentialsFile)
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case file != "":
		credentialsJSON, err = os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials")
	}

	jwt, err := goauth.JWTConfigFromJSON(credentialsJSON, gsheet.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}
	return jwt.TokenSource(ctx), nil
}

// Values returns the cells of rng as strings.
func (c *Client) Values(ctx context.Context, rng string) ([][]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get values %s: %w", rng, err)
	}

	out := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		out = append(out, toStrings(row))
	}
	return out, nil
}

// Range exposes one spreadsheet range as an ETL source.
type Range struct {
	client *Client
	rng    string
	kind   sources.Kind
}

var _ sources.Source = (*Range)(nil)

func (c *Client) Range(rng string, kind sources.Kind) *Range {
	return &Range{client: c, rng: rng, kind: kind}
}

// Name identifies the range across runs, e.g. "sheets:Tasks!A:E".
func (r *Range) Name() string { return "sheets:" + r.rng }

func (r *Range) Kind() sources.Kind { return r.kind }

func (r *Range) Read(ctx context.Context) (storage.RawBatch, error) {
	values, err := r.client.Values(ctx, r.rng)
	if err != nil {
		return storage.RawBatch{}, &core.IOError{Path: r.Name(), Err: err}
	}
	b, err := sources.Decode(r.kind, values)
	if err != nil {
		return storage.RawBatch{}, &core.IOError{Path: r.Name(), Err: err}
	}
	slog.DebugContext(ctx, "Sheets range read", "range", r.rng, "rows", b.Len())
	return b, nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
