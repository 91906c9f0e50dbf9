// Package report turns board and analytics records into message paragraphs.
//
// Every function here is pure: it reads its arguments and the template table and returns strings.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BTreeMap/BoardPipe/internal/models"
	"github.com/BTreeMap/BoardPipe/internal/templates"
)

// DateLayout is the due date format used in reports.
const DateLayout = "02.01.2006 15:04"

// CardErrors is a deficient card with the fields it lacks.
type CardErrors struct {
	Card    models.Card
	Missing []string
}

// FieldErrors collects deficient cards in report order.
type FieldErrors []CardErrors

// FormatCard renders a card as a link.
func FormatCard(t *templates.Table, c models.Card) string {
	return t.Render("card", map[string]any{"URL": c.URL, "Name": c.Name})
}

// FormatDeadlineCard renders a card of the deadlines report.
func FormatDeadlineCard(t *templates.Table, c models.Card, urgent bool, now time.Time, loc *time.Location) string {
	data := map[string]any{
		"URL":     c.URL,
		"Name":    c.Name,
		"Urgent":  urgent,
		"Members": strings.Join(prefixed(c.Members), ", "),
		"Due":     "",
		"Overdue": false,
	}
	if c.Due != nil {
		data["Due"] = c.Due.In(loc).Format(DateLayout)
		data["Overdue"] = c.Due.Before(now)
	}
	return t.Render("deadline_card", data)
}

// FormatPublicationCard renders a card of the publication plan with its custom fields.
func FormatPublicationCard(t *templates.Table, c models.Card, f models.CustomFields) string {
	title := f.Title
	if title == "" {
		title = c.Name
	}
	return t.Render("publication_card", map[string]any{
		"URL":          c.URL,
		"Title":        title,
		"Authors":      strings.Join(f.Authors, ", "),
		"Editors":      strings.Join(f.Editors, ", "),
		"Illustrators": strings.Join(f.Illustrators, ", "),
		"GoogleDoc":    f.GoogleDoc,
	})
}

// FormatUnassignedCard renders a card that lacks an assignee and/or a due date.
func FormatUnassignedCard(t *templates.Table, c models.Card) string {
	var missing []string
	if len(c.Members) == 0 {
		missing = append(missing, t.Text("unassigned_no_members"))
	}
	if c.Due == nil {
		missing = append(missing, t.Text("unassigned_no_due"))
	}
	return t.Render("unassigned_card", map[string]any{"URL": c.URL, "Name": c.Name, "Missing": strings.Join(missing, ", ")})
}

// FormatErrorsSummary renders a header paragraph followed by one paragraph per deficient card.
func FormatErrorsSummary(t *templates.Table, errs FieldErrors) []string {
	if len(errs) == 0 {
		return nil
	}
	paragraphs := []string{t.Text("errors_header")}
	for _, e := range errs {
		paragraphs = append(paragraphs, t.Render("errors_card", map[string]any{
			"URL":    e.Card.URL,
			"Name":   e.Card.Name,
			"Fields": strings.Join(e.Missing, ", "),
		}))
	}
	return paragraphs
}

// Metric is one named count of the board statistics report.
type Metric struct {
	Key      string
	Value    int
	Previous *int
}

// FormatBoardStats renders per-alias counts, with deltas when a previous value is known.
func FormatBoardStats(t *templates.Table, metrics []Metric) []string {
	lines := []string{t.Text("board_stats_header")}
	total := 0
	for _, m := range metrics {
		total += m.Value
		if m.Previous != nil {
			lines = append(lines, t.Render("board_stats_line_delta", map[string]any{
				"Alias": m.Key, "Count": m.Value, "Delta": signed(m.Value - *m.Previous),
			}))
			continue
		}
		lines = append(lines, t.Render("board_stats_line", map[string]any{"Alias": m.Key, "Count": m.Value}))
	}
	lines = append(lines, t.Render("board_stats_total", map[string]any{"Total": total}))
	return []string{strings.Join(lines, "\n")}
}

// SourceStats is the weekly result of one analytics source. Err is set when the source failed.
type SourceStats struct {
	Source string
	Posts  int
	Reach  int
	Err    error
}

// FormatSocialStats renders the weekly social media report.
func FormatSocialStats(t *templates.Table, weekEnd time.Time, stats []SourceStats) []string {
	lines := []string{t.Render("social_stats_header", map[string]any{"WeekEnd": weekEnd.Format("02.01.2006")})}
	for _, s := range stats {
		if s.Err != nil {
			lines = append(lines, t.Render("social_stats_failed", map[string]any{"Source": s.Source}))
			continue
		}
		lines = append(lines, t.Render("social_stats_line", map[string]any{"Source": s.Source, "Posts": s.Posts, "Reach": s.Reach}))
	}
	return []string{strings.Join(lines, "\n")}
}

// FormatRosterSync renders the result of a roster import.
func FormatRosterSync(t *templates.Table, updated, skipped int) []string {
	return []string{t.Render("roster_sync_done", map[string]any{"Updated": updated, "Skipped": skipped})}
}

// FormatParseFailures renders the skipped-records footer, or nothing when count is zero.
func FormatParseFailures(t *templates.Table, count int) []string {
	if count == 0 {
		return nil
	}
	return []string{t.Render("parse_failures", map[string]any{"Count": count})}
}

// IsUrgent reports whether the card carries one of the urgent labels.
func IsUrgent(c models.Card, urgentLabels []string) bool {
	for _, l := range urgentLabels {
		if c.HasLabel(l) {
			return true
		}
	}
	return false
}

// SortByUrgencyThenDue orders cards urgent first, then by due date ascending with undated cards
// last, then by name.
func SortByUrgencyThenDue(cards []models.Card, urgentLabels []string) {
	sort.SliceStable(cards, func(i, j int) bool {
		a, b := cards[i], cards[j]
		ua, ub := IsUrgent(a, urgentLabels), IsUrgent(b, urgentLabels)
		if ua != ub {
			return ua
		}
		switch {
		case a.Due != nil && b.Due != nil:
			if !a.Due.Equal(*b.Due) {
				return a.Due.Before(*b.Due)
			}
		case a.Due != nil:
			return true
		case b.Due != nil:
			return false
		}
		return a.Name < b.Name
	})
}

// ValidateRequired returns the names of required fields that are not set, in required order.
func ValidateRequired(f models.CustomFields, required []string) []string {
	var missing []string
	for _, name := range required {
		if !f.IsSet(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// DropMalformed removes cards with a parse error and returns how many were dropped.
func DropMalformed(cards []models.Card) ([]models.Card, int) {
	valid := make([]models.Card, 0, len(cards))
	failed := 0
	for _, c := range cards {
		if c.ParseError != "" {
			failed++
			continue
		}
		valid = append(valid, c)
	}
	return valid, failed
}

func prefixed(logins []string) []string {
	out := make([]string, len(logins))
	for i, l := range logins {
		out[i] = "@" + strings.TrimPrefix(l, "@")
	}
	return out
}

func signed(n int) string {
	if n > 0 {
		return fmt.Sprintf("+%d", n)
	}
	return fmt.Sprintf("%d", n)
}
