package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/BoardPipe/internal/analytics"
	"github.com/BTreeMap/BoardPipe/internal/api"
	"github.com/BTreeMap/BoardPipe/internal/board"
	"github.com/BTreeMap/BoardPipe/internal/config"
	"github.com/BTreeMap/BoardPipe/internal/flow"
	"github.com/BTreeMap/BoardPipe/internal/genai"
	"github.com/BTreeMap/BoardPipe/internal/jobs"
	"github.com/BTreeMap/BoardPipe/internal/messaging"
	"github.com/BTreeMap/BoardPipe/internal/recovery"
	"github.com/BTreeMap/BoardPipe/internal/scheduler"
	"github.com/BTreeMap/BoardPipe/internal/sheets"
	"github.com/BTreeMap/BoardPipe/internal/store"
	"github.com/BTreeMap/BoardPipe/internal/templates"
)

const shutdownTimeout = 10 * time.Second

// AppConfig holds the collaborator settings for Run.
type AppConfig struct {
	TelegramToken string
	StoreDSN      string
	ConfigPath    string
	TemplatesPath string
	Location      *time.Location
	ErrorChatID   int64
	// SendDelay overrides the pause between batched messages when non-negative.
	SendDelay time.Duration

	TrelloKey     string
	TrelloToken   string
	TrelloBoardID string

	SheetsDocID string

	AnalyticsURL     string
	AnalyticsToken   string
	AnalyticsSources []string

	// APIEnabled starts the HTTP admin API.
	APIEnabled bool
}

// Run wires every module and serves Telegram updates until ctx is cancelled.
// A nil genaiOpts disables the fallback responder.
func Run(ctx context.Context, app AppConfig, genaiOpts []genai.Option, apiOpts []api.Option, opts ...Option) error {
	if app.TelegramToken == "" {
		return errors.New("telegram bot token is required")
	}
	loc := app.Location
	if loc == nil {
		loc = time.Local
	}

	cfg, err := config.Load(app.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	tmpl, err := templates.Load(app.TemplatesPath)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	st, err := store.Open(app.StoreDSN)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("bot.Run: failed to close store", "error", err)
		}
	}()

	svc, err := messaging.NewTelegramService(app.TelegramToken)
	if err != nil {
		return err
	}

	sched := scheduler.NewScheduler(scheduler.WithLocation(loc))
	defer sched.Stop()

	deps := buildDependencies(app, cfg, tmpl, st, svc, loc)
	runner := jobs.NewRunner(ctx, sched, jobs.DefaultRegistry(), deps)

	rm := recovery.NewRecoveryManager(st)
	rm.RegisterSubscriptionRecovery(recovery.SubscriptionRecoveryHandler(runner))
	rm.RegisterRecoverable(recovery.SubscriptionRecoverable{})
	rm.RegisterRecoverable(recovery.FlowStateRecoverable{MaxAge: recovery.DefaultFlowMaxAge})
	if err := rm.RecoverAll(ctx); err != nil {
		slog.Warn("bot.Run: recovery finished with errors", "error", err)
	}
	if err := runner.ScheduleConfigured(cfg.Schedules); err != nil {
		return fmt.Errorf("failed to schedule configured reports: %w", err)
	}
	if err := runner.StartReminders(); err != nil {
		return fmt.Errorf("failed to start reminders: %w", err)
	}

	engine := flow.NewEngine(flow.NewStoreBasedStateManager(st), svc, tmpl)
	engine.Register(flow.NewReminderFlow(st, tmpl))
	engine.Register(flow.NewReportConfigFlow(st, tmpl, cfg, runner.Registry().Reports(), runner))

	if genaiOpts != nil {
		client, err := genai.NewClient(genaiOpts...)
		if err != nil {
			slog.Warn("bot.Run: fallback responder disabled", "error", err)
		} else {
			opts = append(opts, WithResponder(client))
		}
	}
	dispatcher := NewDispatcher(svc, st, engine, runner, tmpl, opts...)

	if app.APIEnabled {
		server := api.NewServer(runner, st, apiOpts...)
		server.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Error("bot.Run: API shutdown failed", "error", err)
			}
		}()
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start telegram service: %w", err)
	}
	defer svc.Stop()

	slog.Info("BoardPipe running", "scheduled", runner.Scheduled(), "location", loc.String())
	dispatcher.Run(ctx)
	return nil
}

func buildDependencies(app AppConfig, cfg *config.Config, tmpl *templates.Table, st store.Store, svc messaging.Service, loc *time.Location) *jobs.Dependencies {
	batch := messaging.DefaultBatchOptions()
	if app.SendDelay >= 0 {
		batch.Delay = app.SendDelay
	}
	deps := &jobs.Dependencies{
		Store:       st,
		Messaging:   svc,
		Templates:   tmpl,
		Config:      cfg,
		Location:    loc,
		Clock:       time.Now,
		Batch:       batch,
		ErrorChatID: app.ErrorChatID,
	}
	if app.TrelloKey != "" && app.TrelloBoardID != "" {
		deps.Board = board.NewTrelloClient(app.TrelloKey, app.TrelloToken, app.TrelloBoardID, cfg)
	} else {
		slog.Warn("bot.Run: Trello is not configured, board reports will fail")
	}
	if app.SheetsDocID != "" {
		deps.Sheets = sheets.NewClient(app.SheetsDocID)
	}
	if app.AnalyticsURL != "" {
		gateway := analytics.NewGatewayClient(app.AnalyticsURL, app.AnalyticsToken, nil)
		deps.Analytics = gateway.Sources(app.AnalyticsSources)
	}
	return deps
}
