// Package scheduler provides scheduling logic for BoardPipe.
//
// It allows report jobs and the reminder tick to be triggered using cron expressions.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// EntryID identifies a scheduled task.
type EntryID = cron.EntryID

// Option configures a Scheduler.
type Option func(*Opts)

// Opts holds scheduler configuration.
type Opts struct {
	Location *time.Location
}

// WithLocation evaluates cron expressions in loc instead of the local time zone.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// parser is the standard 5-field parser (min, hour, dom, month, dow) plus @daily style descriptors.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	cronOpts := []cron.Option{
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cron.DefaultLogger)),
	}
	if cfg.Location != nil {
		cronOpts = append(cronOpts, cron.WithLocation(cfg.Location))
	}
	c := cron.New(cronOpts...)
	c.Start()
	slog.Debug("Scheduler started", "location", c.Location())
	return &Scheduler{cron: c}
}

// Validate reports whether expr is a valid 5-field cron expression.
func Validate(expr string) error {
	_, err := parser.Parse(expr)
	return err
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) (EntryID, error) {
	id, err := s.cron.AddFunc(expr, task)
	if err != nil {
		slog.Error("Scheduler.AddJob: invalid expression", "expr", expr, "error", err)
		return 0, err
	}
	slog.Debug("Scheduler.AddJob: scheduled", "expr", expr, "entryID", id)
	return id, nil
}

// Remove unschedules an entry. Unknown ids are ignored.
func (s *Scheduler) Remove(id EntryID) {
	s.cron.Remove(id)
}

// Len returns the number of scheduled entries.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Next returns the next activation time of an entry, or the zero time when it is unknown.
func (s *Scheduler) Next(id EntryID) time.Time {
	return s.cron.Entry(id).Next
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
