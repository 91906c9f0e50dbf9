// Package models defines the core data structures for BoardPipe.
//
// It includes board cards, chats, reminders, roster members, statistics snapshots and
// report subscriptions, which are shared across modules.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validation constants for input validation
const (
	// MaxReminderNameLength defines the maximum allowed length for a reminder name
	MaxReminderNameLength = 64
	// MaxReminderTextLength defines the maximum allowed length for a reminder text
	MaxReminderTextLength = 3000
	// TimeOfDayLayout is the layout used for reminder times
	TimeOfDayLayout = "15:04"
)

// Error variables for better error handling and testability
var (
	ErrNotFound                = errors.New("record not found")
	ErrForbidden               = errors.New("forbidden")
	ErrUnknownAction           = errors.New("unknown action")
	ErrUnknownFlow             = errors.New("unknown flow")
	ErrNotFlowOwner            = errors.New("flow was started by another user")
	ErrEmptyReminderName       = errors.New("reminder name cannot be empty")
	ErrReminderNameTooLong     = errors.New("reminder name exceeds maximum length")
	ErrEmptyReminderText       = errors.New("reminder text cannot be empty")
	ErrReminderTextTooLong     = errors.New("reminder text exceeds maximum length")
	ErrInvalidWeekday          = errors.New("weekday must be between 0 and 6")
	ErrInvalidTimeOfDay        = errors.New("time must be in HH:MM format")
	ErrMissingChat             = errors.New("chat is required")
	ErrMissingSubscriptionCron = errors.New("subscription cron expression is required")
)

// Label is a board card label.
type Label struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// BoardList is a column of the kanban board.
type BoardList struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Closed bool   `json:"closed"`
}

// Card is a board card as consumed by report jobs.
type Card struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	URL      string     `json:"url"`
	Due      *time.Time `json:"due,omitempty"`
	ListID   string     `json:"list_id"`
	ListName string     `json:"list_name,omitempty"`
	Labels   []Label    `json:"labels,omitempty"`
	Members  []string   `json:"members,omitempty"`
	// ParseError is set by collaborators when the raw record could not be fully decoded.
	ParseError string `json:"parse_error,omitempty"`
}

// HasLabel reports whether the card carries a label matching name or color (case-insensitive).
func (c Card) HasLabel(nameOrColor string) bool {
	for _, l := range c.Labels {
		if strings.EqualFold(l.Name, nameOrColor) || strings.EqualFold(l.Color, nameOrColor) {
			return true
		}
	}
	return false
}

// CustomFields holds the editorial custom fields attached to a card.
type CustomFields struct {
	Title        string   `json:"title,omitempty"`
	GoogleDoc    string   `json:"google_doc,omitempty"`
	Authors      []string `json:"authors,omitempty"`
	Editors      []string `json:"editors,omitempty"`
	Illustrators []string `json:"illustrators,omitempty"`
	Cover        string   `json:"cover,omitempty"`
}

// Field names used for required-field validation and configuration.
const (
	FieldTitle        = "title"
	FieldGoogleDoc    = "google_doc"
	FieldAuthors      = "authors"
	FieldEditors      = "editors"
	FieldIllustrators = "illustrators"
	FieldCover        = "cover"
)

// AllCustomFieldNames lists every custom field name in display order.
var AllCustomFieldNames = []string{FieldTitle, FieldGoogleDoc, FieldAuthors, FieldEditors, FieldIllustrators, FieldCover}

// IsSet reports whether the named custom field has a value.
func (f CustomFields) IsSet(name string) bool {
	switch name {
	case FieldTitle:
		return strings.TrimSpace(f.Title) != ""
	case FieldGoogleDoc:
		return strings.TrimSpace(f.GoogleDoc) != ""
	case FieldAuthors:
		return len(f.Authors) > 0
	case FieldEditors:
		return len(f.Editors) > 0
	case FieldIllustrators:
		return len(f.Illustrators) > 0
	case FieldCover:
		return strings.TrimSpace(f.Cover) != ""
	default:
		return false
	}
}

// Chat is a chat the bot has seen. ID is the natural key.
type Chat struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName returns the chat title or its id when the title is empty.
func (c Chat) DisplayName() string {
	if c.Title != "" {
		return c.Title
	}
	return fmt.Sprintf("%d", c.ID)
}

// Reminder is a weekly message posted to a chat.
type Reminder struct {
	ID          int64        `json:"id"`
	OwnerChatID int64        `json:"owner_chat_id"` // chat that manages the reminder
	ChatID      int64        `json:"chat_id"`       // chat the reminder is posted to
	Name        string       `json:"name"`
	Text        string       `json:"text"`
	Weekday     time.Weekday `json:"weekday"`
	Time        string       `json:"time"` // HH:MM in the bot's location
	Poll        bool         `json:"poll"`
	LastSentAt  *time.Time   `json:"last_sent_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Validate checks the reminder fields collected by the reminder flow.
func (r *Reminder) Validate() error {
	if r.ChatID == 0 {
		return ErrMissingChat
	}
	if err := ValidateReminderName(r.Name); err != nil {
		return err
	}
	if err := ValidateReminderText(r.Text); err != nil {
		return err
	}
	if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
		return ErrInvalidWeekday
	}
	if _, err := ParseTimeOfDay(r.Time); err != nil {
		return err
	}
	return nil
}

// IsDue reports whether the reminder should fire at now (already in the bot's location).
// A reminder fires once per matching minute.
func (r *Reminder) IsDue(now time.Time) bool {
	if now.Weekday() != r.Weekday || now.Format(TimeOfDayLayout) != r.Time {
		return false
	}
	if r.LastSentAt != nil && now.Sub(*r.LastSentAt) < time.Hour {
		return false
	}
	return true
}

// ValidateReminderName validates a reminder name.
func ValidateReminderName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyReminderName
	}
	if len([]rune(name)) > MaxReminderNameLength {
		return ErrReminderNameTooLong
	}
	return nil
}

// ValidateReminderText validates a reminder text.
func ValidateReminderText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyReminderText
	}
	if len([]rune(text)) > MaxReminderTextLength {
		return ErrReminderTextTooLong
	}
	return nil
}

// ParseTimeOfDay parses and normalizes an HH:MM string ("9:05" becomes "09:05").
func ParseTimeOfDay(s string) (string, error) {
	t, err := time.Parse(TimeOfDayLayout, strings.TrimSpace(s))
	if err != nil {
		return "", ErrInvalidTimeOfDay
	}
	return t.Format(TimeOfDayLayout), nil
}

// Role is a roster role used by access guards.
type Role string

const (
	// RoleMember is the default role.
	RoleMember Role = "member"
	// RoleManager may manage reminders and view subscriptions.
	RoleManager Role = "manager"
	// RoleAdmin may run every command.
	RoleAdmin Role = "admin"
)

// ParseRole derives a Role from a free-form sheet value.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin", "administrator", "админ":
		return RoleAdmin
	case "manager", "менеджер", "редактор", "editor":
		return RoleManager
	default:
		return RoleMember
	}
}

// AtLeast reports whether r grants at least the privileges of other.
func (r Role) AtLeast(other Role) bool {
	return r.rank() >= other.rank()
}

func (r Role) rank() int {
	switch r {
	case RoleAdmin:
		return 2
	case RoleManager:
		return 1
	default:
		return 0
	}
}

// RosterMember is a team member imported from the roster sheet. TelegramLogin is the natural key.
type RosterMember struct {
	TelegramLogin string    `json:"telegram_login"`
	Name          string    `json:"name"`
	TrelloLogin   string    `json:"trello_login,omitempty"`
	Role          Role      `json:"role"`
	Status        string    `json:"status,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NormalizeLogin lowercases a login and strips a leading "@".
func NormalizeLogin(login string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(login), "@"))
}

// StatSnapshot is a single metric value recorded by a scheduled report run.
type StatSnapshot struct {
	ID      int64     `json:"id"`
	Report  string    `json:"report"`
	Key     string    `json:"key"`
	Value   int       `json:"value"`
	TakenAt time.Time `json:"taken_at"`
}

// ReportSubscription binds a report to a chat and a cron trigger.
type ReportSubscription struct {
	ID          int64     `json:"id"`
	ChatID      int64     `json:"chat_id"`
	Report      string    `json:"report"`
	ListAliases []string  `json:"list_aliases,omitempty"`
	Cron        string    `json:"cron"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate performs basic validation on a subscription.
func (s *ReportSubscription) Validate() error {
	if s.ChatID == 0 {
		return ErrMissingChat
	}
	if strings.TrimSpace(s.Report) == "" {
		return errors.New("subscription report is required")
	}
	if strings.TrimSpace(s.Cron) == "" {
		return ErrMissingSubscriptionCron
	}
	return nil
}
