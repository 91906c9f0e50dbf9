package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/BTreeMap/BoardPipe/internal/messaging"
	"github.com/BTreeMap/BoardPipe/internal/models"
	"github.com/BTreeMap/BoardPipe/internal/templates"
)

// Input is one plain-text message or button press routed into a flow.
// UserID identifies the sender; zero when the transport does not know it.
type Input struct {
	ChatID int64
	UserID int64
	Text   string
	Button models.ButtonID
}

// Choice returns the pressed button, or the trimmed lowercase text when no button was pressed.
func (in Input) Choice() string {
	if in.Button != "" {
		return string(in.Button)
	}
	return strings.ToLower(strings.TrimSpace(in.Text))
}

// Reply is one outgoing message produced by a step.
type Reply struct {
	Text    string
	Buttons [][]messaging.Button
}

// StartFunc initializes the draft of a flow and returns its first action.
type StartFunc[D any] func(ctx context.Context, in Input, args []string, draft *D) (models.ActionID, []Reply, error)

// StepFunc consumes input at one action, mutates the draft and returns the next action.
// Invalid input returns the same action with a corrective reply. Errors are reserved for
// collaborator failures.
type StepFunc[D any] func(ctx context.Context, in Input, draft *D) (models.ActionID, []Reply, error)

// Flow is a registered flow graph. Machine is the only implementation.
type Flow interface {
	Type() models.FlowType
	// Actions lists every action the flow handles.
	Actions() []models.ActionID
	start(ctx context.Context, in Input, args []string) (payload string, next models.ActionID, replies []Reply, err error)
	step(ctx context.Context, action models.ActionID, payload string, in Input) (string, models.ActionID, []Reply, error)
}

// Machine is a flow whose draft has type D. The draft is persisted as JSON between steps.
type Machine[D any] struct {
	flowType models.FlowType
	entry    StartFunc[D]
	steps    map[models.ActionID]StepFunc[D]
}

// NewMachine creates a flow with the given entry point.
func NewMachine[D any](flowType models.FlowType, entry StartFunc[D]) *Machine[D] {
	return &Machine[D]{flowType: flowType, entry: entry, steps: make(map[models.ActionID]StepFunc[D])}
}

// On registers the step handling action.
func (m *Machine[D]) On(action models.ActionID, step StepFunc[D]) *Machine[D] {
	m.steps[action] = step
	return m
}

// Type returns the flow type.
func (m *Machine[D]) Type() models.FlowType { return m.flowType }

// Actions returns the registered actions in sorted order.
func (m *Machine[D]) Actions() []models.ActionID {
	out := make([]models.ActionID, 0, len(m.steps))
	for a := range m.steps {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Machine[D]) start(ctx context.Context, in Input, args []string) (string, models.ActionID, []Reply, error) {
	var draft D
	next, replies, err := m.entry(ctx, in, args, &draft)
	if err != nil {
		return "", models.ActionNone, nil, err
	}
	payload, err := encodeDraft(draft)
	return payload, next, replies, err
}

func (m *Machine[D]) step(ctx context.Context, action models.ActionID, payload string, in Input) (string, models.ActionID, []Reply, error) {
	step, ok := m.steps[action]
	if !ok {
		return "", action, nil, fmt.Errorf("%w: %s/%s", models.ErrUnknownAction, m.flowType, action)
	}
	var draft D
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &draft); err != nil {
			return "", action, nil, fmt.Errorf("decode %s draft: %w", m.flowType, err)
		}
	}
	next, replies, err := step(ctx, in, &draft)
	if err != nil {
		return "", action, nil, err
	}
	out, err := encodeDraft(draft)
	return out, next, replies, err
}

func encodeDraft(draft any) (string, error) {
	data, err := json.Marshal(draft)
	if err != nil {
		return "", fmt.Errorf("encode draft: %w", err)
	}
	return string(data), nil
}

// Engine routes chat input to registered flows and persists their state.
type Engine struct {
	states    StateManager
	msg       messaging.Service
	templates *templates.Table
	flows     map[models.FlowType]Flow
}

// NewEngine creates an engine without flows.
func NewEngine(states StateManager, msg messaging.Service, t *templates.Table) *Engine {
	return &Engine{states: states, msg: msg, templates: t, flows: make(map[models.FlowType]Flow)}
}

// Register adds a flow, replacing any flow of the same type.
func (e *Engine) Register(f Flow) {
	e.flows[f.Type()] = f
	slog.Debug("Engine.Register: flow registered", "flowType", f.Type(), "actions", len(f.Actions()))
}

// Flow returns the registered flow of a type.
func (e *Engine) Flow(flowType models.FlowType) (Flow, bool) {
	f, ok := e.flows[flowType]
	return f, ok
}

// Start enters a flow for the chat, replacing any other active flow.
func (e *Engine) Start(ctx context.Context, in Input, flowType models.FlowType, args []string) error {
	f, ok := e.flows[flowType]
	if !ok {
		slog.Error("Engine.Start: unregistered flow", "flowType", flowType, "chatID", in.ChatID)
		return fmt.Errorf("%w: %s", models.ErrUnknownFlow, flowType)
	}
	payload, next, replies, err := f.start(ctx, in, args)
	if err != nil {
		return e.fail(ctx, in.ChatID, flowType, "", err)
	}
	state := models.FlowState{ChatID: in.ChatID, UserID: in.UserID, FlowType: flowType, Action: next, Payload: payload}
	if err := e.states.SaveState(ctx, state); err != nil {
		return e.fail(ctx, in.ChatID, flowType, next, err)
	}
	slog.Info("Engine.Start: flow started", "chatID", in.ChatID, "flowType", flowType, "action", next)
	return e.send(ctx, in.ChatID, replies)
}

// Handle routes input to the chat's active flow. It reports false when no flow is active.
// Unregistered flows or actions are logged and leave the state untouched without replying.
// Input from anyone but the user who started the flow returns models.ErrNotFlowOwner.
func (e *Engine) Handle(ctx context.Context, in Input) (bool, error) {
	flowType, err := e.states.ActiveFlow(ctx, in.ChatID)
	if err != nil {
		return false, err
	}
	if flowType == "" {
		return false, nil
	}
	f, ok := e.flows[flowType]
	if !ok {
		slog.Error("Engine.Handle: unregistered flow", "flowType", flowType, "chatID", in.ChatID)
		return true, nil
	}
	state, err := e.states.GetState(ctx, in.ChatID, flowType)
	if err != nil {
		return true, err
	}
	if !state.Active() {
		slog.Warn("Engine.Handle: active pointer without state", "flowType", flowType, "chatID", in.ChatID)
		return false, e.states.ClearActive(ctx, in.ChatID)
	}
	if !ownedBy(state, in.UserID) {
		slog.Debug("Engine.Handle: input from another user ignored", "chatID", in.ChatID, "flowType", flowType,
			"owner", state.UserID, "userID", in.UserID)
		return true, models.ErrNotFlowOwner
	}

	payload, next, replies, err := f.step(ctx, state.Action, state.Payload, in)
	if errors.Is(err, models.ErrUnknownAction) {
		slog.Error("Engine.Handle: unregistered action", "flowType", flowType, "action", state.Action, "chatID", in.ChatID)
		return true, nil
	}
	if err != nil {
		return true, e.fail(ctx, in.ChatID, flowType, state.Action, err)
	}

	state.Action = next
	state.Payload = payload
	if err := e.states.SaveState(ctx, *state); err != nil {
		return true, e.fail(ctx, in.ChatID, flowType, next, err)
	}
	slog.Debug("Engine.Handle: step done", "chatID", in.ChatID, "flowType", flowType, "next", next)
	return true, e.send(ctx, in.ChatID, replies)
}

// Cancel abandons the chat's active flow. It reports whether a flow was active.
// Only the user who started the flow may cancel it; others get models.ErrNotFlowOwner.
func (e *Engine) Cancel(ctx context.Context, chatID, userID int64) (bool, error) {
	flowType, err := e.states.ActiveFlow(ctx, chatID)
	if err != nil {
		return false, err
	}
	if flowType == "" {
		return false, nil
	}
	state, err := e.states.GetState(ctx, chatID, flowType)
	if err != nil {
		return true, err
	}
	if !ownedBy(state, userID) {
		return true, models.ErrNotFlowOwner
	}
	if err := e.states.ResetState(ctx, chatID, flowType); err != nil {
		return true, err
	}
	slog.Info("Engine.Cancel: flow cancelled", "chatID", chatID, "flowType", flowType)
	return true, nil
}

// ownedBy reports whether userID may drive the flow. Flows started without a known user are open.
func ownedBy(state *models.FlowState, userID int64) bool {
	return state == nil || state.UserID == 0 || state.UserID == userID
}

func (e *Engine) fail(ctx context.Context, chatID int64, flowType models.FlowType, action models.ActionID, cause error) error {
	slog.Error("Engine: step failed", "chatID", chatID, "flowType", flowType, "action", action, "error", cause)
	if err := e.msg.SendMessage(ctx, chatID, e.templates.Text("flow_failed")); err != nil {
		slog.Error("Engine: failed to notify chat", "chatID", chatID, "error", err)
	}
	return cause
}

func (e *Engine) send(ctx context.Context, chatID int64, replies []Reply) error {
	for _, r := range replies {
		var err error
		if len(r.Buttons) > 0 {
			err = e.msg.SendMessageWithButtons(ctx, chatID, r.Text, r.Buttons)
		} else {
			err = e.msg.SendMessage(ctx, chatID, r.Text)
		}
		if err != nil {
			return fmt.Errorf("send reply to %d: %w", chatID, err)
		}
	}
	return nil
}

func say(text string) Reply { return Reply{Text: text} }

func ask(text string, rows ...[]messaging.Button) Reply {
	return Reply{Text: text, Buttons: rows}
}

func button(label string, id models.ButtonID) messaging.Button {
	return messaging.Button{Text: label, Data: string(id)}
}
