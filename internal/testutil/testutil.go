// Package testutil provides common test fakes and helpers for BoardPipe tests.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/BTreeMap/BoardPipe/internal/analytics"
	"github.com/BTreeMap/BoardPipe/internal/config"
	"github.com/BTreeMap/BoardPipe/internal/models"
	"github.com/BTreeMap/BoardPipe/internal/sheets"
)

// TB is the subset of testing.TB used by the assertion helpers.
type TB interface {
	Helper()
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
}

// FakeBoard is an in-memory board.Board.
type FakeBoard struct {
	Config *config.Config
	Lists  []models.BoardList
	Cards  []models.Card
	Fields map[string]models.CustomFields // by card ID
	Err    error

	mu    sync.Mutex
	Calls int
}

// GetLists returns the configured lists.
func (b *FakeBoard) GetLists(ctx context.Context) ([]models.BoardList, error) {
	b.count()
	if b.Err != nil {
		return nil, b.Err
	}
	return b.Lists, nil
}

// GetCards returns cards whose ListID is in listIDs, or every card when none are given.
func (b *FakeBoard) GetCards(ctx context.Context, listIDs ...string) ([]models.Card, error) {
	b.count()
	if b.Err != nil {
		return nil, b.Err
	}
	if len(listIDs) == 0 {
		return append([]models.Card(nil), b.Cards...), nil
	}
	wanted := map[string]bool{}
	for _, id := range listIDs {
		wanted[id] = true
	}
	var out []models.Card
	for _, c := range b.Cards {
		if wanted[c.ListID] {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetCustomFields returns the fields registered for cardID.
func (b *FakeBoard) GetCustomFields(ctx context.Context, cardID string) (models.CustomFields, error) {
	b.count()
	if b.Err != nil {
		return models.CustomFields{}, b.Err
	}
	return b.Fields[cardID], nil
}

// GetListIDsFromAliases resolves aliases by treating each configured list name as a list ID.
func (b *FakeBoard) GetListIDsFromAliases(ctx context.Context, aliases []string) ([]string, error) {
	b.count()
	if b.Err != nil {
		return nil, b.Err
	}
	cfg := b.Config
	if cfg == nil {
		cfg = config.Default()
	}
	var ids []string
	for _, alias := range aliases {
		names, ok := cfg.ListNames(alias)
		if !ok {
			return nil, fmt.Errorf("unknown list alias: %s", alias)
		}
		ids = append(ids, names...)
	}
	return ids, nil
}

func (b *FakeBoard) count() {
	b.mu.Lock()
	b.Calls++
	b.mu.Unlock()
}

// FakeSheets serves fixed rows per sheet name.
type FakeSheets struct {
	Rows map[string][]sheets.Row
	Err  error
}

// FetchRows returns the rows of sheet or an error when the sheet is unknown.
func (s *FakeSheets) FetchRows(ctx context.Context, sheet string) ([]sheets.Row, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	rows, ok := s.Rows[sheet]
	if !ok {
		return nil, fmt.Errorf("sheet %q not found", sheet)
	}
	return rows, nil
}

// FakeSource is a fixed analytics.Source.
type FakeSource struct {
	SourceName string
	Posts      int
	Reach      int
	Err        error
}

var _ analytics.Source = (*FakeSource)(nil)

// Name returns the source name.
func (s *FakeSource) Name() string { return s.SourceName }

// NewPostsCount returns Posts or Err.
func (s *FakeSource) NewPostsCount(ctx context.Context, since, until time.Time) (int, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	return s.Posts, nil
}

// WeeklyTotalReachOfNewPosts returns Reach or Err.
func (s *FakeSource) WeeklyTotalReachOfNewPosts(ctx context.Context, endWeek time.Time) (int, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	return s.Reach, nil
}

// Recorder collects messages passed to a send callback.
type Recorder struct {
	mu       sync.Mutex
	Messages []string
	Err      error
}

// Send appends text, or returns Err when set.
func (r *Recorder) Send(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Messages = append(r.Messages, text)
	return nil
}

// All returns a copy of the recorded messages.
func (r *Recorder) All() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.Messages...)
}

// FixedClock returns a clock function that always reports t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// ErrCollaborator is a generic failure for fakes.
var ErrCollaborator = errors.New("collaborator unavailable")

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON response and validates the status field.
func AssertJSONResponse(t TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]any {
	t.Helper()
	var response map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return nil
	}
	status, ok := response["status"].(string)
	if !ok {
		t.Errorf("response missing or invalid 'status' field")
		return response
	}
	if status != expectedStatus {
		t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
	}
	return response
}
