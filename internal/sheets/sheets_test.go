package sheets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/BTreeMap/BoardPipe/internal/config"
	"github.com/BTreeMap/BoardPipe/internal/models"
)

const rosterCSV = `"Name","Telegram","Trello","Role","Status"
"Anna K","@AnnaK","anna_k","Admin","active"
"Boris","boris","","редактор",""
"No login","","x","",""
"","","","",""
"Short row","@short"
`

func TestParseCSV(t *testing.T) {
	rows, err := ParseCSV(strings.NewReader(rosterCSV))
	if err != nil {
		t.Fatalf("ParseCSV returned error: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 non-empty rows, got %d", len(rows))
	}
	if rows[0].Get("TELEGRAM") != "@AnnaK" {
		t.Errorf("header lookup should be case-insensitive, got %q", rows[0].Get("TELEGRAM"))
	}
	if rows[3].Get("role") != "" {
		t.Errorf("short row should be padded, got %q", rows[3].Get("role"))
	}
}

func TestParseRoster(t *testing.T) {
	rows, err := ParseCSV(strings.NewReader(rosterCSV))
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	members, skipped := ParseRoster(rows, config.Default().RosterColumns, now)

	if skipped != 1 {
		t.Errorf("expected 1 skipped row, got %d", skipped)
	}
	want := []models.RosterMember{
		{TelegramLogin: "annak", Name: "Anna K", TrelloLogin: "anna_k", Role: models.RoleAdmin, Status: "active", UpdatedAt: now},
		{TelegramLogin: "boris", Name: "Boris", Role: models.RoleManager, UpdatedAt: now},
		{TelegramLogin: "short", Name: "Short row", Role: models.RoleMember, UpdatedAt: now},
	}
	if diff := cmp.Diff(want, members); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}
}

func TestClientFetchRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/spreadsheets/d/doc1/gviz/tq" || r.URL.Query().Get("sheet") != "roster" || r.URL.Query().Get("tqx") != "out:csv" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(rosterCSV))
	}))
	defer srv.Close()

	c := NewClient("doc1", WithBaseURL(srv.URL))
	members, skipped, err := FetchRoster(context.Background(), c, config.Default(), time.Now())
	if err != nil {
		t.Fatalf("FetchRoster returned error: %v", err)
	}
	if len(members) != 3 || skipped != 1 {
		t.Errorf("expected 3 members and 1 skipped, got %d and %d", len(members), skipped)
	}

	if _, err := c.FetchRows(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown sheet")
	}
}

func TestClientRequiresDocument(t *testing.T) {
	if _, err := NewClient("").FetchRows(context.Background(), "roster"); err == nil {
		t.Error("expected error without document id")
	}
}
