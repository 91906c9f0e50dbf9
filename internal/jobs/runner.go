package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BTreeMap/BoardPipe/internal/config"
	"github.com/BTreeMap/BoardPipe/internal/models"
	"github.com/BTreeMap/BoardPipe/internal/scheduler"
)

// ReminderTickCron fires the reminders job once a minute.
const ReminderTickCron = "* * * * *"

// ErrUnknownJob is returned when a job name is not registered.
var ErrUnknownJob = errors.New("unknown job")

// Runner binds jobs to chats, either on demand or through the scheduler.
type Runner struct {
	ctx      context.Context
	sched    *scheduler.Scheduler
	registry *Registry
	deps     *Dependencies

	mu   sync.Mutex
	subs map[int64]scheduler.EntryID
}

// NewRunner creates a Runner. Scheduled runs use ctx, so cancelling it aborts them.
func NewRunner(ctx context.Context, sched *scheduler.Scheduler, registry *Registry, deps *Dependencies) *Runner {
	return &Runner{
		ctx:      ctx,
		sched:    sched,
		registry: registry,
		deps:     deps,
		subs:     make(map[int64]scheduler.EntryID),
	}
}

// Registry returns the job registry.
func (r *Runner) Registry() *Registry { return r.registry }

// Deps returns the job dependencies.
func (r *Runner) Deps() *Dependencies { return r.deps }

// SendTo returns a SendFunc posting to chatID.
func (r *Runner) SendTo(chatID int64) SendFunc {
	return func(ctx context.Context, text string) error {
		return r.deps.Messaging.SendMessage(ctx, chatID, text)
	}
}

// RunNow runs the named job for chatID and reports whether it succeeded.
// Only an unknown job name is returned as an error; job failures are handled by Run.
func (r *Runner) RunNow(ctx context.Context, name string, chatID int64, args []string, calledFromHandler bool) (bool, error) {
	job, ok := r.registry.Get(name)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return Run(ctx, job, r.deps, chatID, r.SendTo(chatID), calledFromHandler, args), nil
}

func (r *Runner) schedule(expr, name string, chatID int64, args []string) (scheduler.EntryID, error) {
	job, ok := r.registry.Get(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	send := r.SendTo(chatID)
	return r.sched.AddJob(expr, func() {
		Run(r.ctx, job, r.deps, chatID, send, false, args)
	})
}

// ScheduleConfigured registers the static schedules from the configuration file.
func (r *Runner) ScheduleConfigured(schedules []config.Schedule) error {
	for _, s := range schedules {
		if _, err := r.schedule(s.Cron, s.Job, s.ChatID, s.Args); err != nil {
			return fmt.Errorf("schedule %s for chat %d: %w", s.Job, s.ChatID, err)
		}
		slog.Info("Runner: configured schedule registered", "job", s.Job, "cron", s.Cron, "chatID", s.ChatID)
	}
	return nil
}

// StartReminders schedules the per-minute reminder tick.
func (r *Runner) StartReminders() error {
	_, err := r.schedule(ReminderTickCron, JobReminders, r.deps.ErrorChatID, nil)
	return err
}

// Subscribe validates and stores a new subscription, then schedules it.
func (r *Runner) Subscribe(sub *models.ReportSubscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	if !r.isReport(sub.Report) {
		return fmt.Errorf("%w: %s", ErrUnknownJob, sub.Report)
	}
	if err := scheduler.Validate(sub.Cron); err != nil {
		return fmt.Errorf("invalid cron %q: %w", sub.Cron, err)
	}
	if err := r.deps.Store.AddSubscription(sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	if err := r.Schedule(*sub); err != nil {
		if delErr := r.deps.Store.DeleteSubscription(sub.ID); delErr != nil {
			slog.Error("Runner.Subscribe: rollback failed", "id", sub.ID, "error", delErr)
		}
		return err
	}
	return nil
}

// Schedule registers an already stored subscription with the scheduler.
func (r *Runner) Schedule(sub models.ReportSubscription) error {
	id, err := r.schedule(sub.Cron, sub.Report, sub.ChatID, sub.ListAliases)
	if err != nil {
		return err
	}
	r.mu.Lock()
	if old, ok := r.subs[sub.ID]; ok {
		r.sched.Remove(old)
	}
	r.subs[sub.ID] = id
	r.mu.Unlock()
	slog.Info("Runner: subscription scheduled", "id", sub.ID, "report", sub.Report, "chatID", sub.ChatID, "cron", sub.Cron)
	return nil
}

// Unsubscribe removes a subscription from the store and the scheduler.
func (r *Runner) Unsubscribe(id int64) error {
	if err := r.deps.Store.DeleteSubscription(id); err != nil {
		return err
	}
	r.mu.Lock()
	entry, ok := r.subs[id]
	delete(r.subs, id)
	r.mu.Unlock()
	if ok {
		r.sched.Remove(entry)
	}
	slog.Info("Runner: subscription removed", "id", id)
	return nil
}

// Scheduled reports how many subscriptions are currently scheduled.
func (r *Runner) Scheduled() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *Runner) isReport(name string) bool {
	for _, n := range r.registry.Reports() {
		if n == name {
			return true
		}
	}
	return false
}
