package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BTreeMap/BoardPipe/internal/flow"
	"github.com/BTreeMap/BoardPipe/internal/jobs"
	"github.com/BTreeMap/BoardPipe/internal/messaging"
	"github.com/BTreeMap/BoardPipe/internal/models"
)

// Request is a parsed command invocation.
type Request struct {
	In      messaging.Incoming
	Command string
	Args    []string
}

// Command is a chat command with the guard evaluated before its handler.
type Command struct {
	Name   string
	Guard  Guard
	Handle func(ctx context.Context, req Request) error
}

// ParseCommand splits "/name@bot arg1 arg2" into a lowercase name and arguments.
func ParseCommand(text string) (string, []string) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), fields[1:]
}

func (d *Dispatcher) defaultCommands() map[string]Command {
	cmds := []Command{
		{Name: "start", Guard: d.public, Handle: d.text("start")},
		{Name: "help", Guard: d.public, Handle: d.text("help")},
		{Name: "cancel", Guard: d.public, Handle: d.cancel},
		{Name: jobs.JobDeadlines, Guard: d.public, Handle: d.job(jobs.JobDeadlines)},
		{Name: jobs.JobPublicationPlan, Guard: d.public, Handle: d.job(jobs.JobPublicationPlan)},
		{Name: jobs.JobUnassigned, Guard: d.public, Handle: d.job(jobs.JobUnassigned)},
		{Name: jobs.JobBoardStats, Guard: d.public, Handle: d.job(jobs.JobBoardStats)},
		{Name: jobs.JobSocialStats, Guard: d.public, Handle: d.job(jobs.JobSocialStats)},
		{Name: "sync_roster", Guard: d.admin, Handle: d.job(jobs.JobRosterSync)},
		{Name: string(models.FlowTypeReminders), Guard: d.manager, Handle: d.startFlow(models.FlowTypeReminders)},
		{Name: string(models.FlowTypeReportConfig), Guard: d.admin, Handle: d.startFlow(models.FlowTypeReportConfig)},
		{Name: "subscriptions", Guard: d.manager, Handle: d.subscriptions},
		{Name: "unsubscribe", Guard: d.admin, Handle: d.unsubscribe},
	}
	out := make(map[string]Command, len(cmds))
	for _, c := range cmds {
		out[c.Name] = c
	}
	return out
}

func (d *Dispatcher) handleCommand(ctx context.Context, in messaging.Incoming, text string) {
	name, args := ParseCommand(text)
	cmd, ok := d.commands[name]
	if !ok {
		slog.Debug("Dispatcher: unknown command", "chatID", in.ChatID, "command", name)
		if in.IsPrivate() {
			d.reply(ctx, in.ChatID, d.templates.Render("unknown_command", map[string]any{"Command": name}))
		}
		return
	}
	if err := cmd.Guard(in); err != nil {
		slog.Warn("Dispatcher: command rejected", "chatID", in.ChatID, "user", in.UserName, "command", name, "error", err)
		if errors.Is(err, models.ErrForbidden) {
			d.reply(ctx, in.ChatID, d.templates.Render("forbidden", map[string]any{"Command": name}))
		}
		return
	}

	slog.Info("Dispatcher: command", "chatID", in.ChatID, "user", in.UserName, "command", name, "args", args)
	if err := d.invoke(ctx, cmd, Request{In: in, Command: name, Args: args}); err != nil {
		slog.Error("Dispatcher: command failed", "chatID", in.ChatID, "command", name, "error", err)
	}
}

// invoke runs a handler with its own recover so one failing command cannot stop the worker.
func (d *Dispatcher) invoke(ctx context.Context, cmd Command, req Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in /%s: %v", cmd.Name, r)
		}
	}()
	return cmd.Handle(ctx, req)
}

func (d *Dispatcher) text(id string) func(context.Context, Request) error {
	return func(ctx context.Context, req Request) error {
		return d.svc.SendMessage(ctx, req.In.ChatID, d.templates.Text(id))
	}
}

func (d *Dispatcher) cancel(ctx context.Context, req Request) error {
	cancelled, err := d.engine.Cancel(ctx, req.In.ChatID, req.In.UserID)
	if errors.Is(err, models.ErrNotFlowOwner) {
		return d.svc.SendMessage(ctx, req.In.ChatID, d.templates.Text("flow_not_yours"))
	}
	if err != nil {
		return err
	}
	if !cancelled {
		return d.svc.SendMessage(ctx, req.In.ChatID, d.templates.Text("nothing_to_cancel"))
	}
	return d.svc.SendMessage(ctx, req.In.ChatID, d.templates.Text("cancelled"))
}

func (d *Dispatcher) job(name string) func(context.Context, Request) error {
	return func(ctx context.Context, req Request) error {
		_, err := d.runner.RunNow(ctx, name, req.In.ChatID, req.Args, true)
		return err
	}
}

func (d *Dispatcher) startFlow(ft models.FlowType) func(context.Context, Request) error {
	return func(ctx context.Context, req Request) error {
		return d.engine.Start(ctx, flow.Input{ChatID: req.In.ChatID, UserID: req.In.UserID}, ft, req.Args)
	}
}

func (d *Dispatcher) subscriptions(ctx context.Context, req Request) error {
	subs, err := d.store.ListSubscriptions()
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return d.svc.SendMessage(ctx, req.In.ChatID, d.templates.Text("subscriptions_empty"))
	}
	paragraphs := []string{d.templates.Text("subscriptions_header")}
	for i, s := range subs {
		chat := strconv.FormatInt(s.ChatID, 10)
		if c, err := d.store.GetChat(s.ChatID); err == nil {
			chat = c.DisplayName()
		}
		paragraphs = append(paragraphs, d.templates.Render("subscription_item", map[string]any{
			"Number": i + 1,
			"Report": s.Report,
			"Lists":  strings.Join(s.ListAliases, ", "),
			"Chat":   chat,
			"Cron":   s.Cron,
		}))
	}
	return d.runner.Deps().SendParagraphs(ctx, d.runner.SendTo(req.In.ChatID), paragraphs)
}

// unsubscribe removes the subscription numbered as in /subscriptions.
func (d *Dispatcher) unsubscribe(ctx context.Context, req Request) error {
	usage := func() error {
		return d.svc.SendMessage(ctx, req.In.ChatID, d.templates.Text("unsubscribe_usage"))
	}
	if len(req.Args) != 1 {
		return usage()
	}
	n, err := strconv.Atoi(req.Args[0])
	if err != nil {
		return usage()
	}
	subs, err := d.store.ListSubscriptions()
	if err != nil {
		return err
	}
	if n < 1 || n > len(subs) {
		return usage()
	}
	if err := d.runner.Unsubscribe(subs[n-1].ID); err != nil {
		return err
	}
	return d.svc.SendMessage(ctx, req.In.ChatID, d.templates.Render("unsubscribed", map[string]any{"Number": n}))
}
