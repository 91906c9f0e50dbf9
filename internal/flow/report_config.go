package flow

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/BTreeMap/BoardPipe/internal/config"
	"github.com/BTreeMap/BoardPipe/internal/messaging"
	"github.com/BTreeMap/BoardPipe/internal/models"
	"github.com/BTreeMap/BoardPipe/internal/scheduler"
	"github.com/BTreeMap/BoardPipe/internal/store"
	"github.com/BTreeMap/BoardPipe/internal/templates"
)

// defaultListsButton selects the report's own default lists.
const defaultListsButton models.ButtonID = "-"

// Subscriber stores a report subscription and schedules it.
type Subscriber interface {
	Subscribe(sub *models.ReportSubscription) error
}

type reportDraft struct {
	Report  string   `json:"report,omitempty"`
	Aliases []string `json:"aliases,omitempty"`
	ChatID  int64    `json:"chat_id,omitempty"`
}

type reportConfigFlow struct {
	store   store.Store
	t       *templates.Table
	cfg     *config.Config
	reports []string
	subs    Subscriber
}

// NewReportConfigFlow creates the /configure_report flow offering the given report names.
func NewReportConfigFlow(st store.Store, t *templates.Table, cfg *config.Config, reports []string, subs Subscriber) Flow {
	f := &reportConfigFlow{store: st, t: t, cfg: cfg, reports: reports, subs: subs}
	return NewMachine[reportDraft](models.FlowTypeReportConfig, f.enter).
		On(models.ActionReportChooseType, f.chooseType).
		On(models.ActionReportChooseList, f.chooseList).
		On(models.ActionReportEnterChat, f.enterChat).
		On(models.ActionReportEnterSchedule, f.enterSchedule)
}

func (f *reportConfigFlow) enter(ctx context.Context, in Input, args []string, d *reportDraft) (models.ActionID, []Reply, error) {
	return models.ActionReportChooseType, []Reply{f.typePrompt("report_choose_type")}, nil
}

func (f *reportConfigFlow) typePrompt(id string) Reply {
	rows := make([][]messaging.Button, 0, len(f.reports))
	for _, name := range f.reports {
		rows = append(rows, []messaging.Button{{Text: name, Data: name}})
	}
	return ask(f.t.Text(id), rows...)
}

func (f *reportConfigFlow) listPrompt(id string) Reply {
	rows := [][]messaging.Button{{button(f.t.Text("button_default_lists"), defaultListsButton)}}
	for _, alias := range f.cfg.AliasNames() {
		rows = append(rows, []messaging.Button{{Text: alias, Data: alias}})
	}
	return ask(f.t.Text(id), rows...)
}

func (f *reportConfigFlow) chooseType(ctx context.Context, in Input, d *reportDraft) (models.ActionID, []Reply, error) {
	choice := in.Choice()
	for _, name := range f.reports {
		if name == choice {
			d.Report = name
			return models.ActionReportChooseList, []Reply{f.listPrompt("report_choose_list")}, nil
		}
	}
	return models.ActionReportChooseType, []Reply{f.typePrompt("report_type_invalid")}, nil
}

func (f *reportConfigFlow) chooseList(ctx context.Context, in Input, d *reportDraft) (models.ActionID, []Reply, error) {
	choice := in.Choice()
	switch {
	case choice == string(defaultListsButton):
		d.Aliases = nil
	case f.isAlias(choice):
		d.Aliases = []string{choice}
	default:
		return models.ActionReportChooseList, []Reply{f.listPrompt("report_list_invalid")}, nil
	}
	return models.ActionReportEnterChat, []Reply{say(f.t.Text("report_enter_chat"))}, nil
}

func (f *reportConfigFlow) isAlias(s string) bool {
	_, ok := f.cfg.ListNames(s)
	return ok
}

func (f *reportConfigFlow) enterChat(ctx context.Context, in Input, d *reportDraft) (models.ActionID, []Reply, error) {
	text := strings.TrimSpace(in.Text)
	if strings.EqualFold(text, "here") {
		d.ChatID = in.ChatID
		return models.ActionReportEnterSchedule, []Reply{say(f.t.Text("report_enter_schedule"))}, nil
	}
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil || id == 0 {
		return models.ActionReportEnterChat, []Reply{say(f.t.Text("report_chat_invalid"))}, nil
	}
	if _, err := f.store.GetChat(id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ActionReportEnterChat, []Reply{say(f.t.Text("report_chat_invalid"))}, nil
		}
		return models.ActionReportEnterChat, nil, err
	}
	d.ChatID = id
	return models.ActionReportEnterSchedule, []Reply{say(f.t.Text("report_enter_schedule"))}, nil
}

func (f *reportConfigFlow) enterSchedule(ctx context.Context, in Input, d *reportDraft) (models.ActionID, []Reply, error) {
	expr := strings.Join(strings.Fields(in.Text), " ")
	if err := scheduler.Validate(expr); err != nil {
		return models.ActionReportEnterSchedule, []Reply{say(f.t.Render("report_schedule_invalid", map[string]any{"Error": err.Error()}))}, nil
	}
	sub := &models.ReportSubscription{ChatID: d.ChatID, Report: d.Report, ListAliases: d.Aliases, Cron: expr}
	if err := f.subs.Subscribe(sub); err != nil {
		return models.ActionReportEnterSchedule, nil, err
	}

	chat := strconv.FormatInt(d.ChatID, 10)
	if c, err := f.store.GetChat(d.ChatID); err == nil {
		chat = c.DisplayName()
	}
	return models.ActionNone, []Reply{say(f.t.Render("report_subscribed", map[string]any{
		"Report": d.Report, "Chat": chat, "Cron": expr,
	}))}, nil
}
