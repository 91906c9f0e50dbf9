package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/BoardPipe/internal/config"
	"github.com/BTreeMap/BoardPipe/internal/messaging"
	"github.com/BTreeMap/BoardPipe/internal/models"
	"github.com/BTreeMap/BoardPipe/internal/scheduler"
	"github.com/BTreeMap/BoardPipe/internal/testutil"
)

func newRunner(t *testing.T) (*Runner, *Dependencies, *messaging.MockService) {
	t.Helper()
	deps, svc := newDeps(t, &testutil.FakeBoard{})
	sched := scheduler.NewScheduler()
	t.Cleanup(sched.Stop)
	return NewRunner(context.Background(), sched, DefaultRegistry(), deps), deps, svc
}

func TestRunner_RunNowSendsToChat(t *testing.T) {
	r, _, svc := newRunner(t)
	ok, err := r.RunNow(context.Background(), JobDeadlines, 42, nil, true)
	if err != nil || !ok {
		t.Fatalf("RunNow = %v, %v", ok, err)
	}
	texts := svc.Texts(42)
	if len(texts) != 1 {
		t.Errorf("expected one message to chat 42, got %v", texts)
	}
}

func TestRunner_RunNowUnknownJob(t *testing.T) {
	r, _, _ := newRunner(t)
	if _, err := r.RunNow(context.Background(), "nope", 1, nil, true); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("err = %v, want ErrUnknownJob", err)
	}
}

func TestRunner_SubscribeAndUnsubscribe(t *testing.T) {
	r, deps, _ := newRunner(t)
	sub := &models.ReportSubscription{ChatID: 7, Report: JobDeadlines, Cron: "0 10 * * 1"}
	if err := r.Subscribe(sub); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if sub.ID == 0 || r.Scheduled() != 1 {
		t.Fatalf("subscription not stored or scheduled: id=%d scheduled=%d", sub.ID, r.Scheduled())
	}
	if err := r.Unsubscribe(sub.ID); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	subs, _ := deps.Store.ListSubscriptions()
	if len(subs) != 0 || r.Scheduled() != 0 {
		t.Errorf("subscription not removed: stored=%d scheduled=%d", len(subs), r.Scheduled())
	}
	if err := r.Unsubscribe(sub.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("second Unsubscribe err = %v, want ErrNotFound", err)
	}
}

func TestRunner_SubscribeRejectsInvalid(t *testing.T) {
	r, deps, _ := newRunner(t)
	tests := []struct {
		name string
		sub  models.ReportSubscription
	}{
		{"bad cron", models.ReportSubscription{ChatID: 1, Report: JobDeadlines, Cron: "every monday"}},
		{"internal job", models.ReportSubscription{ChatID: 1, Report: JobReminders, Cron: "* * * * *"}},
		{"missing chat", models.ReportSubscription{Report: JobDeadlines, Cron: "* * * * *"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := tt.sub
			if err := r.Subscribe(&sub); err == nil {
				t.Error("expected error")
			}
		})
	}
	if subs, _ := deps.Store.ListSubscriptions(); len(subs) != 0 {
		t.Errorf("invalid subscriptions stored: %+v", subs)
	}
}

func TestRunner_ScheduleConfigured(t *testing.T) {
	r, _, _ := newRunner(t)
	err := r.ScheduleConfigured([]config.Schedule{{Job: JobBoardStats, Cron: "0 9 * * 1", ChatID: 3}})
	if err != nil {
		t.Fatalf("ScheduleConfigured: %v", err)
	}
	if err := r.ScheduleConfigured([]config.Schedule{{Job: "ghost", Cron: "0 9 * * 1", ChatID: 3}}); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("err = %v, want ErrUnknownJob", err)
	}
	if err := r.StartReminders(); err != nil {
		t.Errorf("StartReminders: %v", err)
	}
}
