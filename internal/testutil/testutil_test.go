package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/BoardPipe/internal/models"
)

type mockTestingT struct {
	failed bool
}

func (m *mockTestingT) Helper()                           {}
func (m *mockTestingT) Errorf(format string, args ...any) { m.failed = true }
func (m *mockTestingT) Fatalf(format string, args ...any) { m.failed = true }

func TestAssertHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		expected   int
		actual     int
		shouldFail bool
	}{
		{name: "matching status codes", expected: 200, actual: 200, shouldFail: false},
		{name: "different status codes", expected: 200, actual: 404, shouldFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}
			AssertHTTPStatus(mockT, tt.expected, tt.actual, "test context")
			if tt.shouldFail != mockT.failed {
				t.Errorf("expected failed=%v, got %v", tt.shouldFail, mockT.failed)
			}
		})
	}
}

func TestAssertJSONResponse(t *testing.T) {
	rr := httptest.NewRecorder()
	fmt.Fprint(rr.Body, `{"status":"ok","message":"fine"}`)

	mockT := &mockTestingT{}
	resp := AssertJSONResponse(mockT, rr, "ok")
	if mockT.failed || resp["message"] != "fine" {
		t.Errorf("unexpected result: failed=%v resp=%v", mockT.failed, resp)
	}

	rr = httptest.NewRecorder()
	fmt.Fprint(rr.Body, `{"status":"error"}`)
	mockT = &mockTestingT{}
	AssertJSONResponse(mockT, rr, "ok")
	if !mockT.failed {
		t.Error("expected mismatch to fail")
	}
}

func TestFakeBoardFiltersByList(t *testing.T) {
	b := &FakeBoard{Cards: []models.Card{{ID: "1", ListID: "In progress"}, {ID: "2", ListID: "Ready"}}}
	ids, err := b.GetListIDsFromAliases(context.Background(), []string{"ready"})
	if err != nil {
		t.Fatal(err)
	}
	cards, _ := b.GetCards(context.Background(), ids...)
	if len(cards) != 1 || cards[0].ID != "2" {
		t.Errorf("unexpected cards: %+v", cards)
	}
	if _, err := b.GetListIDsFromAliases(context.Background(), []string{"nope"}); err == nil {
		t.Error("expected error for unknown alias")
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Send(context.Background(), "a")
	r.Send(context.Background(), "b")
	if got := r.All(); len(got) != 2 || got[1] != "b" {
		t.Errorf("unexpected messages: %v", got)
	}
}
