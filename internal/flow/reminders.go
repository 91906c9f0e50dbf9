package flow

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/BoardPipe/internal/messaging"
	"github.com/BTreeMap/BoardPipe/internal/models"
	"github.com/BTreeMap/BoardPipe/internal/store"
	"github.com/BTreeMap/BoardPipe/internal/templates"
)

// Reminder fields that can be edited.
const (
	fieldName    models.ButtonID = "name"
	fieldText    models.ButtonID = "text"
	fieldWeekday models.ButtonID = "weekday"
	fieldTime    models.ButtonID = "time"
	fieldPoll    models.ButtonID = "poll"
	fieldChat    models.ButtonID = "chat"
)

var editableFields = []models.ButtonID{fieldName, fieldText, fieldWeekday, fieldTime, fieldPoll, fieldChat}

// reminderDraft collects a new reminder, or names the reminder being edited or deleted.
type reminderDraft struct {
	ReminderID int64           `json:"reminder_id,omitempty"`
	ChatID     int64           `json:"chat_id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Text       string          `json:"text,omitempty"`
	Weekday    time.Weekday    `json:"weekday"`
	Time       string          `json:"time,omitempty"`
	Field      models.ButtonID `json:"field,omitempty"`
}

type reminderFlow struct {
	store store.Store
	t     *templates.Table
}

// NewReminderFlow creates the /manage_reminders flow. Reminders are owned by the chat that
// created them and numbered by their position in that chat's list.
func NewReminderFlow(st store.Store, t *templates.Table) Flow {
	f := &reminderFlow{store: st, t: t}
	return NewMachine[reminderDraft](models.FlowTypeReminders, f.enter).
		On(models.ActionReminderChooseMode, f.chooseMode).
		On(models.ActionReminderEnterChat, f.enterChat).
		On(models.ActionReminderEnterName, f.enterName).
		On(models.ActionReminderEnterText, f.enterText).
		On(models.ActionReminderChooseWeekday, f.chooseWeekday).
		On(models.ActionReminderEnterTime, f.enterTime).
		On(models.ActionReminderChoosePoll, f.choosePoll).
		On(models.ActionReminderChooseEdit, f.chooseEdit).
		On(models.ActionReminderChooseField, f.chooseField).
		On(models.ActionReminderEnterValue, f.enterValue).
		On(models.ActionReminderChooseDelete, f.chooseDelete).
		On(models.ActionReminderConfirmDelete, f.confirmDelete)
}

func (f *reminderFlow) enter(ctx context.Context, in Input, args []string, d *reminderDraft) (models.ActionID, []Reply, error) {
	if len(args) == 1 {
		return f.chooseMode(ctx, Input{ChatID: in.ChatID, Text: args[0]}, d)
	}
	menu, err := f.menu(in.ChatID)
	if err != nil {
		return models.ActionNone, nil, err
	}
	return models.ActionReminderChooseMode, []Reply{menu}, nil
}

func (f *reminderFlow) menu(owner int64) (Reply, error) {
	reminders, err := f.store.ListRemindersByOwner(owner)
	if err != nil {
		return Reply{}, err
	}
	newButton := button(f.t.Text("button_new"), models.ButtonNew)
	if len(reminders) == 0 {
		return ask(f.t.Text("reminder_menu_empty"), []messaging.Button{newButton}), nil
	}
	lines := []string{f.t.Render("reminder_menu", map[string]any{"Count": len(reminders)})}
	for i, r := range reminders {
		lines = append(lines, f.t.Render("reminder_list_item", map[string]any{
			"Number":  i + 1,
			"Name":    r.Name,
			"Weekday": r.Weekday.String(),
			"Time":    r.Time,
			"Chat":    f.chatName(r.ChatID),
		}))
	}
	return ask(strings.Join(lines, "\n"), []messaging.Button{
		newButton,
		button(f.t.Text("button_edit"), models.ButtonEdit),
		button(f.t.Text("button_delete"), models.ButtonDelete),
	}), nil
}

func (f *reminderFlow) chatName(id int64) string {
	chat, err := f.store.GetChat(id)
	if err != nil {
		return strconv.FormatInt(id, 10)
	}
	return chat.DisplayName()
}

// byNumber resolves a 1-based list position among the owner's reminders.
func (f *reminderFlow) byNumber(owner int64, text string) (*models.Reminder, int, error) {
	reminders, err := f.store.ListRemindersByOwner(owner)
	if err != nil {
		return nil, 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 || n > len(reminders) {
		return nil, len(reminders), nil
	}
	return &reminders[n-1], len(reminders), nil
}

func (f *reminderFlow) chooseMode(ctx context.Context, in Input, d *reminderDraft) (models.ActionID, []Reply, error) {
	switch in.Choice() {
	case string(models.ButtonNew):
		return models.ActionReminderEnterChat, []Reply{say(f.t.Text("reminder_enter_chat"))}, nil
	case string(models.ButtonEdit), string(models.ButtonDelete):
		reminders, err := f.store.ListRemindersByOwner(in.ChatID)
		if err != nil {
			return models.ActionReminderChooseMode, nil, err
		}
		if len(reminders) > 0 {
			if in.Choice() == string(models.ButtonEdit) {
				return models.ActionReminderChooseEdit, []Reply{say(f.t.Text("reminder_choose_edit"))}, nil
			}
			return models.ActionReminderChooseDelete, []Reply{say(f.t.Text("reminder_choose_delete"))}, nil
		}
	}

	if _, err := strconv.Atoi(strings.TrimSpace(in.Text)); err == nil && in.Button == "" {
		return f.pickForEdit(in, d, models.ActionReminderChooseMode)
	}
	menu, err := f.menu(in.ChatID)
	if err != nil {
		return models.ActionReminderChooseMode, nil, err
	}
	return models.ActionReminderChooseMode, []Reply{menu}, nil
}

func (f *reminderFlow) pickForEdit(in Input, d *reminderDraft, retry models.ActionID) (models.ActionID, []Reply, error) {
	r, count, err := f.byNumber(in.ChatID, in.Text)
	if err != nil {
		return retry, nil, err
	}
	if r == nil {
		return retry, []Reply{f.numberInvalid(count)}, nil
	}
	d.ReminderID = r.ID
	d.Name = r.Name
	return models.ActionReminderChooseField, []Reply{f.fieldPrompt(r.Name)}, nil
}

func (f *reminderFlow) numberInvalid(count int) Reply {
	return say(f.t.Render("reminder_number_invalid", map[string]any{"Max": count}))
}

func (f *reminderFlow) fieldPrompt(name string) Reply {
	row1 := make([]messaging.Button, 0, 3)
	row2 := make([]messaging.Button, 0, 3)
	for i, id := range editableFields {
		b := button(f.t.Text("field_"+string(id)), id)
		if i < 3 {
			row1 = append(row1, b)
		} else {
			row2 = append(row2, b)
		}
	}
	return ask(f.t.Render("reminder_choose_field", map[string]any{"Name": name}), row1, row2)
}

func (f *reminderFlow) weekdayButtons() [][]messaging.Button {
	var rows [][]messaging.Button
	var row []messaging.Button
	for _, wd := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday} {
		row = append(row, messaging.Button{Text: wd.String()[:3], Data: strconv.Itoa(int(wd))})
		if len(row) == 4 {
			rows = append(rows, row)
			row = nil
		}
	}
	return append(rows, row)
}

func (f *reminderFlow) yesNo() []messaging.Button {
	return []messaging.Button{
		button(f.t.Text("button_yes"), models.ButtonYes),
		button(f.t.Text("button_no"), models.ButtonNo),
	}
}

func (f *reminderFlow) enterChat(ctx context.Context, in Input, d *reminderDraft) (models.ActionID, []Reply, error) {
	id, reply, err := f.parseChat(in)
	if err != nil || reply != nil {
		return models.ActionReminderEnterChat, replies(reply), err
	}
	d.ChatID = id
	return models.ActionReminderEnterName, []Reply{say(f.t.Text("reminder_enter_name"))}, nil
}

// parseChat returns a known chat id, or a corrective reply.
func (f *reminderFlow) parseChat(in Input) (int64, *Reply, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(in.Text), 10, 64)
	if err != nil || id == 0 {
		r := say(f.t.Text("reminder_chat_invalid"))
		return 0, &r, nil
	}
	if _, err := f.store.GetChat(id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			r := say(f.t.Render("reminder_chat_unknown", map[string]any{"ChatID": id}))
			return 0, &r, nil
		}
		return 0, nil, err
	}
	return id, nil, nil
}

func (f *reminderFlow) enterName(ctx context.Context, in Input, d *reminderDraft) (models.ActionID, []Reply, error) {
	if err := models.ValidateReminderName(in.Text); err != nil {
		return models.ActionReminderEnterName, []Reply{f.nameInvalid()}, nil
	}
	d.Name = strings.TrimSpace(in.Text)
	return models.ActionReminderEnterText, []Reply{say(f.t.Text("reminder_enter_text"))}, nil
}

func (f *reminderFlow) nameInvalid() Reply {
	return say(f.t.Render("reminder_name_invalid", map[string]any{"Max": models.MaxReminderNameLength}))
}

func (f *reminderFlow) textInvalid() Reply {
	return say(f.t.Render("reminder_text_invalid", map[string]any{"Max": models.MaxReminderTextLength}))
}

func (f *reminderFlow) enterText(ctx context.Context, in Input, d *reminderDraft) (models.ActionID, []Reply, error) {
	if err := models.ValidateReminderText(in.Text); err != nil {
		return models.ActionReminderEnterText, []Reply{f.textInvalid()}, nil
	}
	d.Text = strings.TrimSpace(in.Text)
	return models.ActionReminderChooseWeekday, []Reply{ask(f.t.Text("reminder_choose_weekday"), f.weekdayButtons()...)}, nil
}

func (f *reminderFlow) chooseWeekday(ctx context.Context, in Input, d *reminderDraft) (models.ActionID, []Reply, error) {
	wd, ok := parseWeekday(in.Choice())
	if !ok {
		return models.ActionReminderChooseWeekday, []Reply{ask(f.t.Text("reminder_weekday_invalid"), f.weekdayButtons()...)}, nil
	}
	d.Weekday = wd
	return models.ActionReminderEnterTime, []Reply{say(f.t.Text("reminder_enter_time"))}, nil
}

func (f *reminderFlow) enterTime(ctx context.Context, in Input, d *reminderDraft) (models.ActionID, []Reply, error) {
	tod, err := models.ParseTimeOfDay(in.Text)
	if err != nil {
		return models.ActionReminderEnterTime, []Reply{say(f.t.Text("reminder_time_invalid"))}, nil
	}
	d.Time = tod
	return models.ActionReminderChoosePoll, []Reply{ask(f.t.Text("reminder_choose_poll"), f.yesNo())}, nil
}

func (f *reminderFlow) choosePoll(ctx context.Context, in Input, d *reminderDraft) (models.ActionID, []Reply, error) {
	poll, ok := parseYesNo(in.Choice())
	if !ok {
		return models.ActionReminderChoosePoll, []Reply{ask(f.t.Text("yes_no_invalid"), f.yesNo())}, nil
	}
	r := &models.Reminder{
		OwnerChatID: in.ChatID,
		ChatID:      d.ChatID,
		Name:        d.Name,
		Text:        d.Text,
		Weekday:     d.Weekday,
		Time:        d.Time,
		Poll:        poll,
	}
	if err := r.Validate(); err != nil {
		return models.ActionReminderChoosePoll, nil, err
	}
	if err := f.store.AddReminder(r); err != nil {
		return models.ActionReminderChoosePoll, nil, err
	}
	return models.ActionNone, []Reply{say(f.t.Render("reminder_created", map[string]any{
		"Name": r.Name, "Weekday": r.Weekday.String(), "Time": r.Time,
	}))}, nil
}

func (f *reminderFlow) chooseEdit(ctx context.Context, in Input, d *reminderDraft) (models.ActionID, []Reply, error) {
	return f.pickForEdit(in, d, models.ActionReminderChooseEdit)
}

func (f *reminderFlow) chooseField(ctx context.Context, in Input, d *reminderDraft) (models.ActionID, []Reply, error) {
	choice := models.ButtonID(in.Choice())
	for _, id := range editableFields {
		if id != choice {
			continue
		}
		d.Field = id
		prompt := f.t.Render("reminder_enter_value", map[string]any{"Field": f.t.Text("field_" + string(id))})
		switch id {
		case fieldWeekday:
			return models.ActionReminderEnterValue, []Reply{ask(prompt, f.weekdayButtons()...)}, nil
		case fieldPoll:
			return models.ActionReminderEnterValue, []Reply{ask(prompt, f.yesNo())}, nil
		}
		return models.ActionReminderEnterValue, []Reply{say(prompt)}, nil
	}
	return models.ActionReminderChooseField, []Reply{say(f.t.Text("reminder_field_invalid")), f.fieldPrompt(d.Name)}, nil
}

func (f *reminderFlow) enterValue(ctx context.Context, in Input, d *reminderDraft) (models.ActionID, []Reply, error) {
	r, err := f.store.GetReminder(d.ReminderID)
	if errors.Is(err, models.ErrNotFound) {
		return models.ActionNone, []Reply{say(f.t.Text("reminder_missing"))}, nil
	}
	if err != nil {
		return models.ActionReminderEnterValue, nil, err
	}

	retry := func(reply Reply) (models.ActionID, []Reply, error) {
		return models.ActionReminderEnterValue, []Reply{reply}, nil
	}
	switch d.Field {
	case fieldName:
		if models.ValidateReminderName(in.Text) != nil {
			return retry(f.nameInvalid())
		}
		r.Name = strings.TrimSpace(in.Text)
	case fieldText:
		if models.ValidateReminderText(in.Text) != nil {
			return retry(f.textInvalid())
		}
		r.Text = strings.TrimSpace(in.Text)
	case fieldWeekday:
		wd, ok := parseWeekday(in.Choice())
		if !ok {
			return retry(ask(f.t.Text("reminder_weekday_invalid"), f.weekdayButtons()...))
		}
		r.Weekday = wd
	case fieldTime:
		tod, err := models.ParseTimeOfDay(in.Text)
		if err != nil {
			return retry(say(f.t.Text("reminder_time_invalid")))
		}
		r.Time = tod
	case fieldPoll:
		poll, ok := parseYesNo(in.Choice())
		if !ok {
			return retry(ask(f.t.Text("yes_no_invalid"), f.yesNo()))
		}
		r.Poll = poll
	case fieldChat:
		id, reply, err := f.parseChat(in)
		if err != nil || reply != nil {
			return models.ActionReminderEnterValue, replies(reply), err
		}
		r.ChatID = id
	default:
		return models.ActionReminderChooseField, []Reply{f.fieldPrompt(r.Name)}, nil
	}

	if err := f.store.UpdateReminder(*r); err != nil {
		return models.ActionReminderEnterValue, nil, err
	}
	return models.ActionNone, []Reply{say(f.t.Render("reminder_updated", map[string]any{"Name": r.Name}))}, nil
}

func (f *reminderFlow) chooseDelete(ctx context.Context, in Input, d *reminderDraft) (models.ActionID, []Reply, error) {
	r, count, err := f.byNumber(in.ChatID, in.Text)
	if err != nil {
		return models.ActionReminderChooseDelete, nil, err
	}
	if r == nil {
		return models.ActionReminderChooseDelete, []Reply{f.numberInvalid(count)}, nil
	}
	d.ReminderID = r.ID
	d.Name = r.Name
	return models.ActionReminderConfirmDelete, []Reply{ask(f.t.Render("reminder_confirm_delete", map[string]any{"Name": r.Name}), f.yesNo())}, nil
}

func (f *reminderFlow) confirmDelete(ctx context.Context, in Input, d *reminderDraft) (models.ActionID, []Reply, error) {
	yes, ok := parseYesNo(in.Choice())
	switch {
	case !ok:
		return models.ActionReminderConfirmDelete, []Reply{ask(f.t.Text("yes_no_invalid"), f.yesNo())}, nil
	case !yes:
		return models.ActionNone, []Reply{say(f.t.Text("reminder_delete_aborted"))}, nil
	}
	if err := f.store.DeleteReminder(d.ReminderID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ActionNone, []Reply{say(f.t.Text("reminder_missing"))}, nil
		}
		return models.ActionReminderConfirmDelete, nil, err
	}
	return models.ActionNone, []Reply{say(f.t.Render("reminder_deleted", map[string]any{"Name": d.Name}))}, nil
}

func replies(r *Reply) []Reply {
	if r == nil {
		return nil
	}
	return []Reply{*r}
}

// parseWeekday accepts 0-6 (Sunday is 0) or an English day name or its three letter prefix.
func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n >= 0 && n <= 6 {
			return time.Weekday(n), true
		}
		return 0, false
	}
	if len(s) < 3 {
		return 0, false
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.HasPrefix(strings.ToLower(wd.String()), s) {
			return wd, true
		}
	}
	return 0, false
}

func parseYesNo(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(models.ButtonYes), "y", "да":
		return true, true
	case string(models.ButtonNo), "n", "нет":
		return false, true
	}
	return false, false
}
