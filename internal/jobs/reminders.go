package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/BoardPipe/internal/models"
)

// RemindersJob posts every reminder due at the current minute to its target chat.
// It ignores send and args: each reminder carries its own chat.
type RemindersJob struct{}

func (RemindersJob) Name() string { return JobReminders }

func (RemindersJob) Execute(ctx context.Context, deps *Dependencies, send SendFunc, calledFromHandler bool, args []string) error {
	if deps.Messaging == nil {
		return errors.New("messaging service is not configured")
	}
	reminders, err := deps.Store.ListReminders()
	if err != nil {
		return fmt.Errorf("list reminders: %w", err)
	}
	now := deps.Now()
	var errs []error
	for i := range reminders {
		r := &reminders[i]
		if !r.IsDue(now) {
			continue
		}
		if err := fireReminder(ctx, deps, r); err != nil {
			errs = append(errs, fmt.Errorf("reminder %d: %w", r.ID, err))
			continue
		}
		if err := deps.Store.MarkReminderSent(r.ID, now); err != nil {
			errs = append(errs, fmt.Errorf("mark reminder %d sent: %w", r.ID, err))
		}
	}
	return errors.Join(errs...)
}

func fireReminder(ctx context.Context, deps *Dependencies, r *models.Reminder) error {
	text := deps.Templates.Render("reminder_fired", map[string]any{"Name": r.Name, "Text": r.Text})
	if err := deps.Messaging.SendMessage(ctx, r.ChatID, text); err != nil {
		return err
	}
	if r.Poll {
		question := deps.Templates.Text("reminder_poll_question")
		options := []string{deps.Templates.Text("button_yes"), deps.Templates.Text("button_no")}
		if err := deps.Messaging.SendPoll(ctx, r.ChatID, question, options); err != nil {
			return fmt.Errorf("send poll: %w", err)
		}
	}
	slog.Info("RemindersJob: reminder sent", "id", r.ID, "chatID", r.ChatID, "poll", r.Poll)
	return nil
}
