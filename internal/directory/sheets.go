// Package directory reads the client list maintained in Google Sheets and
// mirrors new orders back to the sheet.
package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// DefaultSheetsBaseURL is the public Google Sheets API endpoint.
const DefaultSheetsBaseURL = "https://sheets.googleapis.com"

// Client is one row of the directory sheet.
type Client struct {
	Ref   string `json:"ref,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Source yields the raw directory.
type Source interface {
	Fetch(ctx context.Context) ([]Client, error)
}

// SheetsSource reads the directory through the Sheets values API.
type SheetsSource struct {
	values        *sheets.SpreadsheetsValuesService
	spreadsheetID string
	sheetRange    string
	timeout       time.Duration
}

// SheetsConfig configures a SheetsSource.
type SheetsConfig struct {
	BaseURL       string
	SpreadsheetID string
	Range         string
	APIKey        string
	Timeout       time.Duration
}

// NewSheetsSource constructs a SheetsSource. Without an API key the client
// sends unauthenticated requests, which only works for public sheets.
func NewSheetsSource(ctx context.Context, cfg SheetsConfig) (*SheetsSource, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultSheetsBaseURL
	}
	rng := cfg.Range
	if rng == "" {
		rng = "Sheet1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := []option.ClientOption{option.WithEndpoint(base + "/")}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	} else {
		opts = append(opts, option.WithoutAuthentication())
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	return &SheetsSource{
		values:        svc.Spreadsheets.Values,
		spreadsheetID: cfg.SpreadsheetID,
		sheetRange:    rng,
		timeout:       timeout,
	}, nil
}

// Fetch downloads the sheet. Row one is the header; column B holds the
// name and column C the email.
func (s *SheetsSource) Fetch(ctx context.Context) ([]Client, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.values.Get(s.spreadsheetID, s.sheetRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet values: %w", err)
	}
	if len(resp.Values) == 0 {
		return []Client{}, nil
	}
	clients := make([]Client, 0, len(resp.Values)-1)
	for _, row := range resp.Values[1:] {
		email := strings.TrimSpace(cell(row, 2))
		if email == "" {
			continue
		}
		name := strings.TrimSpace(cell(row, 1))
		if name == "" {
			name, _, _ = strings.Cut(email, "@")
		}
		clients = append(clients, Client{Ref: strings.TrimSpace(cell(row, 0)), Name: name, Email: email})
	}
	return clients, nil
}

func cell(row []interface{}, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	return fmt.Sprint(row[i])
}
