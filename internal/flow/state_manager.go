// Package flow provides concrete implementations of state management.
package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/BoardPipe/internal/models"
	"github.com/BTreeMap/BoardPipe/internal/store"
)

// StoreBasedStateManager implements StateManager using a Store backend.
type StoreBasedStateManager struct {
	store store.Store
	now   func() time.Time
}

// NewStoreBasedStateManager creates a new StateManager backed by a Store.
func NewStoreBasedStateManager(st store.Store) *StoreBasedStateManager {
	slog.Debug("Creating StoreBasedStateManager")
	return &StoreBasedStateManager{store: st, now: time.Now}
}

// GetState retrieves the state of a chat in a flow, or nil when there is none.
func (sm *StoreBasedStateManager) GetState(ctx context.Context, chatID int64, flowType models.FlowType) (*models.FlowState, error) {
	state, err := sm.store.GetFlowState(chatID, flowType)
	if err != nil {
		slog.Error("StateManager GetState error", "error", err, "chatID", chatID, "flowType", flowType)
		return nil, err
	}
	return state, nil
}

// SaveState persists the draft payload and next action in one write. A terminal action
// deactivates the flow for the chat.
func (sm *StoreBasedStateManager) SaveState(ctx context.Context, state models.FlowState) error {
	now := sm.now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	state.UpdatedAt = now
	if err := sm.store.SaveFlowState(state); err != nil {
		slog.Error("StateManager SaveState error", "error", err, "chatID", state.ChatID, "flowType", state.FlowType, "action", state.Action)
		return err
	}
	slog.Debug("StateManager SaveState succeeded", "chatID", state.ChatID, "flowType", state.FlowType, "action", state.Action)
	return nil
}

// ActiveFlow returns the chat's active flow, or "" when none is active.
func (sm *StoreBasedStateManager) ActiveFlow(ctx context.Context, chatID int64) (models.FlowType, error) {
	ft, err := sm.store.GetActiveFlow(chatID)
	if err != nil {
		slog.Error("StateManager ActiveFlow error", "error", err, "chatID", chatID)
		return "", err
	}
	return ft, nil
}

// ClearActive deactivates whichever flow is active for the chat.
func (sm *StoreBasedStateManager) ClearActive(ctx context.Context, chatID int64) error {
	if err := sm.store.ClearActiveFlow(chatID); err != nil {
		slog.Error("StateManager ClearActive error", "error", err, "chatID", chatID)
		return err
	}
	return nil
}

// ResetState removes all state data for a chat in a flow and deactivates it.
func (sm *StoreBasedStateManager) ResetState(ctx context.Context, chatID int64, flowType models.FlowType) error {
	slog.Debug("StateManager ResetState", "chatID", chatID, "flowType", flowType)

	if err := sm.store.DeleteFlowState(chatID, flowType); err != nil {
		slog.Error("StateManager ResetState error", "error", err, "chatID", chatID, "flowType", flowType)
		return err
	}

	slog.Info("StateManager ResetState succeeded", "chatID", chatID, "flowType", flowType)
	return nil
}
