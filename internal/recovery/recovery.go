// Package recovery restores runtime state after a restart.
//
// Persisted report subscriptions are put back on the scheduler and stale conversation flows
// are expired. Components register as Recoverable and receive a RecoveryRegistry that carries
// the store and the infrastructure callbacks.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/BoardPipe/internal/models"
	"github.com/BTreeMap/BoardPipe/internal/store"
)

// Recoverable defines the interface for components that can recover their state
type Recoverable interface {
	// RecoverState is called during application startup to restore component state
	RecoverState(ctx context.Context, registry *RecoveryRegistry) error
}

// RecoveryRegistry provides services that components can use during recovery
type RecoveryRegistry struct {
	store store.Store
	now   func() time.Time

	// Callback for the scheduler to register
	subscriptionRecoveryFunc func(models.ReportSubscription) error
}

// NewRecoveryRegistry creates a new recovery registry
func NewRecoveryRegistry(st store.Store) *RecoveryRegistry {
	return &RecoveryRegistry{store: st, now: time.Now}
}

// RegisterSubscriptionRecovery registers a callback that re-schedules a subscription
func (r *RecoveryRegistry) RegisterSubscriptionRecovery(fn func(models.ReportSubscription) error) {
	r.subscriptionRecoveryFunc = fn
}

// RecoverSubscription requests recovery of a subscription
func (r *RecoveryRegistry) RecoverSubscription(sub models.ReportSubscription) error {
	if r.subscriptionRecoveryFunc == nil {
		return fmt.Errorf("no subscription recovery handler registered")
	}
	return r.subscriptionRecoveryFunc(sub)
}

// GetStore provides access to the store for recovery operations
func (r *RecoveryRegistry) GetStore() store.Store {
	return r.store
}

// Now returns the registry clock.
func (r *RecoveryRegistry) Now() time.Time {
	return r.now()
}

// RecoveryManager orchestrates recovery of all registered components
type RecoveryManager struct {
	registry     *RecoveryRegistry
	recoverables []Recoverable
}

// NewRecoveryManager creates a new recovery manager
func NewRecoveryManager(st store.Store) *RecoveryManager {
	return &RecoveryManager{registry: NewRecoveryRegistry(st)}
}

// RegisterRecoverable adds a component that can be recovered
func (rm *RecoveryManager) RegisterRecoverable(r Recoverable) {
	rm.recoverables = append(rm.recoverables, r)
}

// RegisterSubscriptionRecovery registers the scheduler callback
func (rm *RecoveryManager) RegisterSubscriptionRecovery(fn func(models.ReportSubscription) error) {
	rm.registry.RegisterSubscriptionRecovery(fn)
}

// RecoverAll performs recovery of all registered components
func (rm *RecoveryManager) RecoverAll(ctx context.Context) error {
	slog.Info("Starting application recovery", "components", len(rm.recoverables))

	recoveredCount := 0
	errorCount := 0

	for _, recoverable := range rm.recoverables {
		if err := recoverable.RecoverState(ctx, rm.registry); err != nil {
			slog.Error("Component recovery failed", "error", err, "component", fmt.Sprintf("%T", recoverable))
			errorCount++
			continue
		}
		recoveredCount++
	}

	slog.Info("Application recovery completed", "recovered", recoveredCount, "errors", errorCount)

	if errorCount > 0 {
		return fmt.Errorf("recovery completed with %d errors out of %d components", errorCount, len(rm.recoverables))
	}
	return nil
}

// GetRegistry provides access to the recovery registry for infrastructure setup
func (rm *RecoveryManager) GetRegistry() *RecoveryRegistry {
	return rm.registry
}
