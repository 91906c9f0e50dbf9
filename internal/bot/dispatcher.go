// Package bot routes incoming chat updates to commands, flows and the fallback responder.
package bot

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/BTreeMap/BoardPipe/internal/flow"
	"github.com/BTreeMap/BoardPipe/internal/jobs"
	"github.com/BTreeMap/BoardPipe/internal/messaging"
	"github.com/BTreeMap/BoardPipe/internal/models"
	"github.com/BTreeMap/BoardPipe/internal/store"
	"github.com/BTreeMap/BoardPipe/internal/templates"
)

// Inbound rate limit defaults per chat.
const (
	DefaultRateLimit = rate.Limit(1)
	DefaultBurst     = 5
	queueSize        = 32

	// DefaultIdleTimeout is how long a chat worker waits for updates before it is reclaimed.
	DefaultIdleTimeout = 10 * time.Minute
)

// Responder answers free text in private chats when no flow is active.
type Responder interface {
	Respond(ctx context.Context, chatID int64, text string) (string, error)
}

// Opts holds dispatcher configuration.
type Opts struct {
	Responder Responder
	Admins    []string
	RateLimit rate.Limit
	Burst     int
	Clock     func() time.Time
	Idle      time.Duration
}

// Option configures a Dispatcher.
type Option func(*Opts)

// WithResponder enables the fallback responder for private chats.
func WithResponder(r Responder) Option {
	return func(o *Opts) { o.Responder = r }
}

// WithAdmins sets the usernames allowed to run admin commands regardless of the roster.
func WithAdmins(usernames []string) Option {
	return func(o *Opts) { o.Admins = usernames }
}

// WithRateLimit sets the per-chat inbound rate limit.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(o *Opts) { o.RateLimit, o.Burst = limit, burst }
}

// WithIdleTimeout sets how long an idle chat keeps its worker, queue and limiter.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Idle = d }
}

// WithClock overrides the time source used for chat records.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// Dispatcher handles updates of each chat in order on a dedicated worker, and different chats
// concurrently.
type Dispatcher struct {
	svc       messaging.Service
	store     store.Store
	engine    *flow.Engine
	runner    *jobs.Runner
	templates *templates.Table
	responder Responder
	admins    map[string]bool
	commands  map[string]Command
	limit     rate.Limit
	burst     int
	clock     func() time.Time
	idle      time.Duration

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	limited  map[int64]bool
	queues   map[int64]chan messaging.Incoming
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the default command set.
func NewDispatcher(svc messaging.Service, st store.Store, engine *flow.Engine, runner *jobs.Runner, t *templates.Table, opts ...Option) *Dispatcher {
	cfg := Opts{RateLimit: DefaultRateLimit, Burst: DefaultBurst, Clock: time.Now, Idle: DefaultIdleTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	d := &Dispatcher{
		svc:       svc,
		store:     st,
		engine:    engine,
		runner:    runner,
		templates: t,
		responder: cfg.Responder,
		admins:    make(map[string]bool),
		limit:     cfg.RateLimit,
		burst:     cfg.Burst,
		clock:     cfg.Clock,
		idle:      cfg.Idle,
		limiters:  make(map[int64]*rate.Limiter),
		limited:   make(map[int64]bool),
		queues:    make(map[int64]chan messaging.Incoming),
	}
	if d.idle <= 0 {
		d.idle = DefaultIdleTimeout
	}
	for _, a := range cfg.Admins {
		if login := models.NormalizeLogin(a); login != "" {
			d.admins[login] = true
		}
	}
	d.commands = d.defaultCommands()
	return d
}

// Run consumes updates until the channel closes or ctx is cancelled, then waits for the
// per-chat workers to drain.
func (d *Dispatcher) Run(ctx context.Context) {
	updates := d.svc.Updates()
	defer d.shutdown()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Dispatcher.Run: context cancelled")
			return
		case in, ok := <-updates:
			if !ok {
				slog.Info("Dispatcher.Run: updates channel closed")
				return
			}
			d.enqueue(ctx, in)
		}
	}
}

// enqueue never blocks; updates for a chat whose queue is full are dropped.
func (d *Dispatcher) enqueue(ctx context.Context, in messaging.Incoming) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, ok := d.queues[in.ChatID]
	if !ok {
		q = make(chan messaging.Incoming, queueSize)
		d.queues[in.ChatID] = q
		d.wg.Add(1)
		go d.worker(ctx, in.ChatID, q)
	}
	select {
	case q <- in:
	default:
		slog.Warn("Dispatcher.enqueue: chat queue full, update dropped", "chatID", in.ChatID, "queueSize", queueSize)
	}
}

func (d *Dispatcher) worker(ctx context.Context, chatID int64, q chan messaging.Incoming) {
	defer d.wg.Done()
	slog.Debug("Dispatcher worker started", "chatID", chatID)
	idle := time.NewTimer(d.idle)
	defer idle.Stop()
	for {
		select {
		case in, ok := <-q:
			if !ok {
				return
			}
			d.Handle(ctx, in)
			idle.Reset(d.idle)
		case <-idle.C:
			if d.reclaim(chatID, q) {
				slog.Debug("Dispatcher worker reclaimed", "chatID", chatID)
				return
			}
			idle.Reset(d.idle)
		}
	}
}

// reclaim forgets an idle chat. Sends happen under d.mu, so an empty queue stays empty here.
func (d *Dispatcher) reclaim(chatID int64, q chan messaging.Incoming) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queues[chatID] != q || len(q) > 0 {
		return false
	}
	delete(d.queues, chatID)
	delete(d.limiters, chatID)
	delete(d.limited, chatID)
	return true
}

func (d *Dispatcher) shutdown() {
	d.mu.Lock()
	for id, q := range d.queues {
		close(q)
		delete(d.queues, id)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Handle processes one update synchronously. Panics are recovered and logged.
func (d *Dispatcher) Handle(ctx context.Context, in messaging.Incoming) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Dispatcher.Handle: panic recovered", "chatID", in.ChatID, "text", in.Text, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	chat := models.Chat{ID: in.ChatID, Title: in.ChatTitle, Type: in.ChatType, UpdatedAt: d.clock()}
	if err := d.store.UpsertChat(chat); err != nil {
		slog.Error("Dispatcher.Handle: failed to upsert chat", "chatID", in.ChatID, "error", err)
	}

	if !d.allow(ctx, in.ChatID) {
		return
	}

	if in.IsButton() {
		d.handleButton(ctx, in)
		return
	}

	text := strings.TrimSpace(in.Text)
	if strings.HasPrefix(text, "/") {
		d.handleCommand(ctx, in, text)
		return
	}

	handled, err := d.engine.Handle(ctx, flow.Input{ChatID: in.ChatID, UserID: in.UserID, Text: in.Text})
	if errors.Is(err, models.ErrNotFlowOwner) {
		return
	}
	if err != nil {
		slog.Error("Dispatcher.Handle: flow step failed", "chatID", in.ChatID, "error", err)
	}
	if handled {
		return
	}
	d.fallback(ctx, in)
}

// allow applies the per-chat rate limit. The first rejected update of a burst is answered.
func (d *Dispatcher) allow(ctx context.Context, chatID int64) bool {
	d.mu.Lock()
	lim, ok := d.limiters[chatID]
	if !ok {
		lim = rate.NewLimiter(d.limit, d.burst)
		d.limiters[chatID] = lim
	}
	allowed := lim.Allow()
	notify := !allowed && !d.limited[chatID]
	d.limited[chatID] = !allowed
	d.mu.Unlock()

	if notify {
		slog.Warn("Dispatcher: chat rate limited", "chatID", chatID)
		d.reply(ctx, chatID, d.templates.Text("rate_limited"))
	}
	return allowed
}

func (d *Dispatcher) handleButton(ctx context.Context, in messaging.Incoming) {
	handled, err := d.engine.Handle(ctx, flow.Input{ChatID: in.ChatID, UserID: in.UserID, Button: models.ButtonID(in.ButtonData)})
	notice := ""
	if errors.Is(err, models.ErrNotFlowOwner) {
		notice, err = d.templates.Text("flow_not_yours"), nil
	}
	if in.CallbackID != "" {
		if err := d.svc.AnswerButton(ctx, in.CallbackID, notice); err != nil {
			slog.Warn("Dispatcher: failed to answer button", "chatID", in.ChatID, "error", err)
		}
	}
	if err != nil {
		slog.Error("Dispatcher.handleButton: flow step failed", "chatID", in.ChatID, "error", err)
	}
	if !handled {
		slog.Debug("Dispatcher.handleButton: no active flow", "chatID", in.ChatID, "data", in.ButtonData)
	}
}

func (d *Dispatcher) fallback(ctx context.Context, in messaging.Incoming) {
	if !in.IsPrivate() {
		return
	}
	if d.responder != nil {
		answer, err := d.responder.Respond(ctx, in.ChatID, in.Text)
		if err == nil && strings.TrimSpace(answer) != "" {
			d.reply(ctx, in.ChatID, html.EscapeString(answer))
			return
		}
		if err != nil {
			slog.Error("Dispatcher.fallback: responder failed", "chatID", in.ChatID, "error", err)
		}
	}
	d.reply(ctx, in.ChatID, d.templates.Text("help"))
}

func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string) {
	if err := d.svc.SendMessage(ctx, chatID, text); err != nil {
		slog.Error("Dispatcher: send failed", "chatID", chatID, "error", err)
	}
}
