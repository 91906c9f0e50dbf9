package flow

import (
	"context"
	"testing"
	"time"

	"github.com/BTreeMap/BoardPipe/internal/models"
	"github.com/BTreeMap/BoardPipe/internal/store"
)

func TestStoreBasedStateManager(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	sm := NewStoreBasedStateManager(st)
	fixed := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	sm.now = func() time.Time { return fixed }

	if state, err := sm.GetState(ctx, 7, models.FlowTypeReminders); err != nil || state != nil {
		t.Fatalf("GetState on empty store = %v, %v", state, err)
	}

	err := sm.SaveState(ctx, models.FlowState{ChatID: 7, FlowType: models.FlowTypeReminders, Action: models.ActionReminderEnterName})
	if err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	state, err := sm.GetState(ctx, 7, models.FlowTypeReminders)
	if err != nil || state == nil {
		t.Fatalf("GetState = %v, %v", state, err)
	}
	if !state.CreatedAt.Equal(fixed) || !state.UpdatedAt.Equal(fixed) {
		t.Errorf("timestamps not set: %+v", state)
	}
	if ft, _ := sm.ActiveFlow(ctx, 7); ft != models.FlowTypeReminders {
		t.Errorf("ActiveFlow = %q", ft)
	}

	state.Action = models.ActionNone
	if err := sm.SaveState(ctx, *state); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if ft, _ := sm.ActiveFlow(ctx, 7); ft != "" {
		t.Errorf("terminal action left flow %q active", ft)
	}

	if err := sm.ResetState(ctx, 7, models.FlowTypeReminders); err != nil {
		t.Fatalf("ResetState: %v", err)
	}
	if state, _ := sm.GetState(ctx, 7, models.FlowTypeReminders); state != nil {
		t.Errorf("state survived reset: %+v", state)
	}
}
