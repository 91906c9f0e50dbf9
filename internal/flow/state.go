// Package flow drives multi-step chat commands.
//
// A flow is a small state machine persisted per chat: every step reads the user's input and the
// flow's typed draft, and returns the next action. Flows end when a step returns ActionNone.
package flow

import (
	"context"

	"github.com/BTreeMap/BoardPipe/internal/models"
)

// StateManager defines the interface for managing flow state.
type StateManager interface {
	// GetState retrieves the state of a chat in a flow, or nil when there is none
	GetState(ctx context.Context, chatID int64, flowType models.FlowType) (*models.FlowState, error)

	// SaveState stores the draft and next action and updates the active flow pointer
	SaveState(ctx context.Context, state models.FlowState) error

	// ActiveFlow returns the chat's active flow
	ActiveFlow(ctx context.Context, chatID int64) (models.FlowType, error)

	// ClearActive deactivates the chat's active flow
	ClearActive(ctx context.Context, chatID int64) error

	// ResetState removes all state data for a chat in a flow
	ResetState(ctx context.Context, chatID int64, flowType models.FlowType) error
}

var _ StateManager = (*StoreBasedStateManager)(nil)
