// Package jobs implements the report jobs and the plumbing that runs them.
//
// A job fetches records from collaborators, filters and sorts them, formats paragraphs and hands
// them to the batched sender. Jobs never panic or return errors to the scheduler: Run absorbs and
// reports every failure.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"github.com/BTreeMap/BoardPipe/internal/analytics"
	"github.com/BTreeMap/BoardPipe/internal/board"
	"github.com/BTreeMap/BoardPipe/internal/config"
	"github.com/BTreeMap/BoardPipe/internal/messaging"
	"github.com/BTreeMap/BoardPipe/internal/sheets"
	"github.com/BTreeMap/BoardPipe/internal/store"
	"github.com/BTreeMap/BoardPipe/internal/templates"
	"github.com/BTreeMap/BoardPipe/internal/util"
)

// SendFunc delivers one message to the chat the job runs for.
type SendFunc = messaging.SendFunc

// Job is one report or maintenance task.
type Job interface {
	Name() string
	// Execute runs the job. calledFromHandler is true when a user command triggered the run;
	// scheduled runs are the only ones allowed to write statistics snapshots.
	Execute(ctx context.Context, deps *Dependencies, send SendFunc, calledFromHandler bool, args []string) error
}

// Dependencies is the explicit context shared by every job.
type Dependencies struct {
	Board       board.Board
	Sheets      sheets.Sheets
	Analytics   []analytics.Source
	Store       store.Store
	Messaging   messaging.Service
	Templates   *templates.Table
	Config      *config.Config
	Location    *time.Location
	Clock       func() time.Time
	Batch       messaging.BatchOptions
	ErrorChatID int64
}

// Now returns the current time in the configured location.
func (d *Dependencies) Now() time.Time {
	now := time.Now()
	if d.Clock != nil {
		now = d.Clock()
	}
	if d.Location != nil {
		now = now.In(d.Location)
	}
	return now
}

// Loc returns the configured location or UTC.
func (d *Dependencies) Loc() *time.Location {
	if d.Location != nil {
		return d.Location
	}
	return time.UTC
}

// SendParagraphs batches paragraphs and sends them with the configured delay.
func (d *Dependencies) SendParagraphs(ctx context.Context, send SendFunc, paragraphs []string) error {
	return messaging.SendBatched(ctx, send, paragraphs, d.Batch)
}

// Run executes job and absorbs every failure, including panics.
// Handler runs tell the user that the report failed; scheduled runs log and escalate the error
// to ErrorChatID when one is configured. Run reports whether the job succeeded.
func Run(ctx context.Context, job Job, deps *Dependencies, chatID int64, send SendFunc, calledFromHandler bool, args []string) (ok bool) {
	start := time.Now()
	name := job.Name()
	runID := util.GenerateRunID()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("jobs.Run: job panicked", "job", name, "runID", runID, "chatID", chatID, "panic", r, "stack", string(debug.Stack()))
			reportFailure(ctx, deps, name, chatID, send, calledFromHandler, fmt.Errorf("panic: %v", r))
			ok = false
		}
	}()

	slog.Debug("jobs.Run: starting", "job", name, "runID", runID, "chatID", chatID, "fromHandler", calledFromHandler, "args", args)
	if err := job.Execute(ctx, deps, send, calledFromHandler, args); err != nil {
		slog.Error("jobs.Run: job failed", "job", name, "runID", runID, "chatID", chatID, "error", err, "duration", time.Since(start))
		reportFailure(ctx, deps, name, chatID, send, calledFromHandler, err)
		return false
	}
	slog.Info("jobs.Run: job finished", "job", name, "runID", runID, "chatID", chatID, "duration", time.Since(start))
	return true
}

func reportFailure(ctx context.Context, deps *Dependencies, name string, chatID int64, send SendFunc, calledFromHandler bool, cause error) {
	if calledFromHandler {
		if send == nil {
			return
		}
		if err := send(ctx, deps.Templates.Render("job_failed", map[string]any{"Job": name})); err != nil {
			slog.Error("jobs.Run: failed to notify user", "job", name, "chatID", chatID, "error", err)
		}
		return
	}
	if deps.ErrorChatID == 0 || deps.Messaging == nil {
		return
	}
	text := deps.Templates.Render("job_failed_admin", map[string]any{"Job": name, "ChatID": chatID, "Error": cause.Error()})
	if err := deps.Messaging.SendMessage(ctx, deps.ErrorChatID, text); err != nil {
		slog.Error("jobs.Run: failed to escalate error", "job", name, "errorChatID", deps.ErrorChatID, "error", err)
	}
}

// Registry maps job names to jobs.
type Registry struct {
	jobs    map[string]Job
	reports []string
}

// NewRegistry creates a registry holding jobs. Report jobs can be subscribed to from chats.
func NewRegistry(reports []Job, internal ...Job) *Registry {
	r := &Registry{jobs: make(map[string]Job)}
	for _, j := range reports {
		r.jobs[j.Name()] = j
		r.reports = append(r.reports, j.Name())
	}
	for _, j := range internal {
		r.jobs[j.Name()] = j
	}
	return r
}

// DefaultRegistry returns every BoardPipe job.
func DefaultRegistry() *Registry {
	return NewRegistry(
		[]Job{DeadlinesJob{}, PublicationPlanJob{}, UnassignedJob{}, BoardStatsJob{}, SocialStatsJob{}},
		RosterSyncJob{}, RemindersJob{},
	)
}

// Get returns the job registered under name.
func (r *Registry) Get(name string) (Job, bool) {
	j, ok := r.jobs[name]
	return j, ok
}

// Reports returns the names of report jobs in registration order.
func (r *Registry) Reports() []string {
	return append([]string(nil), r.reports...)
}

// Names returns every job name in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for n := range r.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
