package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/BoardPipe/internal/models"
)

// DefaultFlowMaxAge is how long an unfinished flow survives a restart.
const DefaultFlowMaxAge = 24 * time.Hour

// SubscriptionScheduler is satisfied by jobs.Runner.
type SubscriptionScheduler interface {
	Schedule(sub models.ReportSubscription) error
}

// SubscriptionRecoveryHandler provides the callback that puts a stored subscription back on the scheduler.
func SubscriptionRecoveryHandler(s SubscriptionScheduler) func(models.ReportSubscription) error {
	return func(sub models.ReportSubscription) error {
		slog.Info("Recovering subscription", "id", sub.ID, "report", sub.Report, "chatID", sub.ChatID, "cron", sub.Cron)
		if err := s.Schedule(sub); err != nil {
			return fmt.Errorf("failed to schedule subscription %d: %w", sub.ID, err)
		}
		return nil
	}
}

// SubscriptionRecoverable re-registers every stored report subscription.
type SubscriptionRecoverable struct{}

// RecoverState schedules each subscription. A failing subscription does not stop the others.
func (SubscriptionRecoverable) RecoverState(ctx context.Context, registry *RecoveryRegistry) error {
	subs, err := registry.GetStore().ListSubscriptions()
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}
	var errs []error
	for _, sub := range subs {
		if err := registry.RecoverSubscription(sub); err != nil {
			slog.Error("SubscriptionRecoverable.RecoverState: subscription not recovered", "id", sub.ID, "error", err)
			errs = append(errs, err)
		}
	}
	slog.Info("SubscriptionRecoverable.RecoverState: done", "total", len(subs), "failed", len(errs))
	return errors.Join(errs...)
}

// FlowStateRecoverable expires flow states that were last touched more than MaxAge ago.
// Younger states are left alone so the conversation resumes where it stopped.
type FlowStateRecoverable struct {
	MaxAge time.Duration
}

// RecoverState deletes stale flow states, which also clears the chat's active flow.
func (f FlowStateRecoverable) RecoverState(ctx context.Context, registry *RecoveryRegistry) error {
	maxAge := f.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultFlowMaxAge
	}
	st := registry.GetStore()
	states, err := st.ListFlowStates()
	if err != nil {
		return fmt.Errorf("failed to list flow states: %w", err)
	}
	cutoff := registry.Now().Add(-maxAge)
	expired := 0
	for _, state := range states {
		if !state.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := st.DeleteFlowState(state.ChatID, state.FlowType); err != nil {
			return fmt.Errorf("failed to expire flow state for chat %d: %w", state.ChatID, err)
		}
		expired++
	}
	slog.Info("FlowStateRecoverable.RecoverState: done", "states", len(states), "expired", expired)
	return nil
}
