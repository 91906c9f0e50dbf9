package bot

import (
	"context"
	"testing"
	"time"

	"github.com/BTreeMap/BoardPipe/internal/config"
	"github.com/BTreeMap/BoardPipe/internal/messaging"
	"github.com/BTreeMap/BoardPipe/internal/store"
	"github.com/BTreeMap/BoardPipe/internal/templates"
)

func TestBuildDependencies(t *testing.T) {
	cfg := config.Default()
	st := store.NewInMemoryStore()
	svc := messaging.NewMockService()

	t.Run("minimal", func(t *testing.T) {
		deps := buildDependencies(AppConfig{SendDelay: -1, ErrorChatID: -5}, cfg, templates.Default(), st, svc, time.UTC)
		if deps.Board != nil || deps.Sheets != nil || len(deps.Analytics) != 0 {
			t.Errorf("unconfigured collaborators should be nil: %+v", deps)
		}
		if deps.Batch.Delay != messaging.DefaultSendDelay {
			t.Errorf("negative SendDelay should keep the default, got %v", deps.Batch.Delay)
		}
		if deps.ErrorChatID != -5 || deps.Location != time.UTC {
			t.Errorf("settings not copied: %+v", deps)
		}
	})

	t.Run("all collaborators", func(t *testing.T) {
		app := AppConfig{
			TrelloKey:        "key",
			TrelloToken:      "token",
			TrelloBoardID:    "board",
			SheetsDocID:      "doc",
			AnalyticsURL:     "http://analytics.invalid",
			AnalyticsSources: []string{"vk", "telegram"},
			SendDelay:        0,
		}
		deps := buildDependencies(app, cfg, templates.Default(), st, svc, time.UTC)
		if deps.Board == nil || deps.Sheets == nil {
			t.Error("board and sheets should be configured")
		}
		if len(deps.Analytics) != 2 {
			t.Errorf("expected 2 analytics sources, got %d", len(deps.Analytics))
		}
		if deps.Batch.Delay != 0 {
			t.Errorf("SendDelay 0 should disable the pause, got %v", deps.Batch.Delay)
		}
	})
}

func TestRun_RequiresToken(t *testing.T) {
	if err := Run(context.Background(), AppConfig{}, nil, nil); err == nil {
		t.Error("expected error without a telegram token")
	}
}
