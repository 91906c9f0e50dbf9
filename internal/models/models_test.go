package models

import (
	"errors"
	"testing"
	"time"
)

func TestReminderValidate(t *testing.T) {
	valid := Reminder{ChatID: -100, Name: "standup", Text: "Post your status", Weekday: time.Monday, Time: "10:00"}

	tests := []struct {
		name   string
		mutate func(r *Reminder)
		want   error
	}{
		{"valid", func(r *Reminder) {}, nil},
		{"missing chat", func(r *Reminder) { r.ChatID = 0 }, ErrMissingChat},
		{"empty name", func(r *Reminder) { r.Name = "  " }, ErrEmptyReminderName},
		{"empty text", func(r *Reminder) { r.Text = "" }, ErrEmptyReminderText},
		{"bad weekday", func(r *Reminder) { r.Weekday = 9 }, ErrInvalidWeekday},
		{"bad time", func(r *Reminder) { r.Time = "25:61" }, ErrInvalidTimeOfDay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			if err := r.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseTimeOfDayNormalizes(t *testing.T) {
	got, err := ParseTimeOfDay(" 9:05 ")
	if err != nil {
		t.Fatalf("ParseTimeOfDay returned error: %v", err)
	}
	if got != "09:05" {
		t.Errorf("expected 09:05, got %q", got)
	}
	if _, err := ParseTimeOfDay("noon"); err == nil {
		t.Error("expected error for non-time input")
	}
}

func TestReminderIsDue(t *testing.T) {
	loc := time.UTC
	monday10 := time.Date(2026, 10, 12, 10, 0, 30, 0, loc)
	r := Reminder{Weekday: time.Monday, Time: "10:00"}

	if !r.IsDue(monday10) {
		t.Error("expected reminder to be due on Monday 10:00")
	}
	if r.IsDue(monday10.Add(time.Minute)) {
		t.Error("reminder should not be due at 10:01")
	}
	sent := monday10.Add(-10 * time.Second)
	r.LastSentAt = &sent
	if r.IsDue(monday10) {
		t.Error("reminder already sent this minute should not be due again")
	}
}

func TestRoleParsingAndOrdering(t *testing.T) {
	if ParseRole(" Admin ") != RoleAdmin {
		t.Error("expected admin role")
	}
	if ParseRole("менеджер") != RoleManager {
		t.Error("expected manager role")
	}
	if ParseRole("") != RoleMember {
		t.Error("expected member role for empty input")
	}
	if !RoleAdmin.AtLeast(RoleManager) || RoleMember.AtLeast(RoleManager) {
		t.Error("role ordering is wrong")
	}
}

func TestCardHasLabel(t *testing.T) {
	c := Card{Labels: []Label{{Name: "Urgent", Color: "red"}}}
	if !c.HasLabel("urgent") || !c.HasLabel("RED") {
		t.Error("expected label match by name and color")
	}
	if c.HasLabel("green") {
		t.Error("unexpected label match")
	}
}

func TestCustomFieldsIsSet(t *testing.T) {
	f := CustomFields{Title: "Post", Authors: []string{"anna"}}
	if !f.IsSet(FieldTitle) || !f.IsSet(FieldAuthors) {
		t.Error("expected title and authors to be set")
	}
	if f.IsSet(FieldEditors) || f.IsSet(FieldCover) || f.IsSet("unknown") {
		t.Error("expected editors, cover and unknown fields to be unset")
	}
}

func TestNormalizeLogin(t *testing.T) {
	if got := NormalizeLogin(" @AnnaK "); got != "annak" {
		t.Errorf("NormalizeLogin = %q", got)
	}
}
