// Package models defines flow type definitions to avoid circular imports.
package models

// FlowType identifies a stateful command (one conversation flow graph).
type FlowType string

// ActionID names a single step of a flow. ActionNone is terminal.
type ActionID string

// ButtonID is the opaque payload carried by an inline button press.
type ButtonID string

// Flow type constants.
const (
	FlowTypeReminders    FlowType = "manage_reminders"
	FlowTypeReportConfig FlowType = "configure_report"
)

// ActionNone marks a flow without a next step.
const ActionNone ActionID = ""

// Reminder flow actions.
const (
	ActionReminderChooseMode    ActionID = "reminder_choose_mode"
	ActionReminderEnterChat     ActionID = "reminder_enter_chat"
	ActionReminderEnterName     ActionID = "reminder_enter_name"
	ActionReminderEnterText     ActionID = "reminder_enter_text"
	ActionReminderChooseWeekday ActionID = "reminder_choose_weekday"
	ActionReminderEnterTime     ActionID = "reminder_enter_time"
	ActionReminderChoosePoll    ActionID = "reminder_choose_poll"
	ActionReminderChooseEdit    ActionID = "reminder_choose_edit"
	ActionReminderChooseField   ActionID = "reminder_choose_field"
	ActionReminderEnterValue    ActionID = "reminder_enter_value"
	ActionReminderChooseDelete  ActionID = "reminder_choose_delete"
	ActionReminderConfirmDelete ActionID = "reminder_confirm_delete"
)

// Report configuration flow actions.
const (
	ActionReportChooseType    ActionID = "report_choose_type"
	ActionReportChooseList    ActionID = "report_choose_list"
	ActionReportEnterChat     ActionID = "report_enter_chat"
	ActionReportEnterSchedule ActionID = "report_enter_schedule"
)

// Shared button payloads.
const (
	ButtonNew    ButtonID = "new"
	ButtonEdit   ButtonID = "edit"
	ButtonDelete ButtonID = "delete"
	ButtonYes    ButtonID = "yes"
	ButtonNo     ButtonID = "no"
)
