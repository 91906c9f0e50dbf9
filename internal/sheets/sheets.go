// Package sheets reads spreadsheet tabs through the Google Sheets CSV export.
package sheets

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the Google Sheets root used for CSV export.
const DefaultBaseURL = "https://docs.google.com"

// Row is one spreadsheet row keyed by its (lowercased, trimmed) header.
type Row map[string]string

// Get returns the value of column, matching headers case-insensitively.
func (r Row) Get(column string) string {
	return strings.TrimSpace(r[strings.ToLower(strings.TrimSpace(column))])
}

// Sheets is the spreadsheet collaborator.
type Sheets interface {
	// FetchRows returns all rows of the named sheet.
	FetchRows(ctx context.Context, sheet string) ([]Row, error)
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the export root (used by tests).
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client implements Sheets for one spreadsheet document.
type Client struct {
	docID   string
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the document id.
func NewClient(docID string, opts ...Option) *Client {
	c := &Client{
		docID:   docID,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchRows downloads the sheet as CSV. Rows shorter than the header are padded with empty values.
func (c *Client) FetchRows(ctx context.Context, sheet string) ([]Row, error) {
	if c.docID == "" {
		return nil, errors.New("sheets: document id is not configured")
	}
	params := url.Values{"tqx": {"out:csv"}, "sheet": {sheet}}
	endpoint := fmt.Sprintf("%s/spreadsheets/d/%s/gviz/tq?%s", c.baseURL, url.PathEscape(c.docID), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("sheets: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sheets: fetch %s: %w", sheet, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("sheets: fetch %s: status %d: %s", sheet, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	rows, err := ParseCSV(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sheets: parse %s: %w", sheet, err)
	}
	slog.Debug("Client.FetchRows: fetched", "sheet", sheet, "rows", len(rows))
	return rows, nil
}

// ParseCSV turns CSV data with a header line into rows.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(Row, len(header))
		empty := true
		for i, col := range header {
			if col == "" {
				continue
			}
			if i < len(record) {
				row[col] = record[i]
				if strings.TrimSpace(record[i]) != "" {
					empty = false
				}
			} else {
				row[col] = ""
			}
		}
		if !empty {
			rows = append(rows, row)
		}
	}
	return rows, nil
}
