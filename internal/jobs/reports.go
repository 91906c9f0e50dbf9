package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/BoardPipe/internal/config"
	"github.com/BTreeMap/BoardPipe/internal/models"
	"github.com/BTreeMap/BoardPipe/internal/report"
)

// Report job names.
const (
	JobDeadlines       = "deadlines"
	JobPublicationPlan = "publication_plan"
	JobUnassigned      = "unassigned"
	JobBoardStats      = "board_stats"
	JobSocialStats     = "social_stats"
	JobRosterSync      = "roster_sync"
	JobReminders       = "reminders"
)

// aliasesOrDefault returns args when present, otherwise the default alias.
func aliasesOrDefault(args []string, def string) []string {
	if len(args) > 0 {
		return args
	}
	return []string{def}
}

// fetchCards resolves aliases to list ids and returns the cards in those lists.
// Aliases that resolve to no lists yield no cards.
func fetchCards(ctx context.Context, deps *Dependencies, aliases []string) ([]models.Card, error) {
	if deps.Board == nil {
		return nil, errors.New("board is not configured")
	}
	ids, err := deps.Board.GetListIDsFromAliases(ctx, aliases)
	if err != nil {
		return nil, fmt.Errorf("resolve aliases %v: %w", aliases, err)
	}
	if len(ids) == 0 {
		slog.Debug("jobs.fetchCards: aliases resolved to no lists", "aliases", aliases)
		return nil, nil
	}
	cards, err := deps.Board.GetCards(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("get cards: %w", err)
	}
	return cards, nil
}

// DeadlinesJob lists cards due within the configured window, urgent cards first.
type DeadlinesJob struct{}

func (DeadlinesJob) Name() string { return JobDeadlines }

func (DeadlinesJob) Execute(ctx context.Context, deps *Dependencies, send SendFunc, calledFromHandler bool, args []string) error {
	cards, err := fetchCards(ctx, deps, aliasesOrDefault(args, config.AliasInProgress))
	if err != nil {
		return err
	}
	cards, failed := report.DropMalformed(cards)

	now := deps.Now()
	days := deps.Config.DueSoonDays
	horizon := now.Add(time.Duration(days) * 24 * time.Hour)
	var due []models.Card
	for _, c := range cards {
		if c.Due != nil && !c.Due.After(horizon) {
			due = append(due, c)
		}
	}
	report.SortByUrgencyThenDue(due, deps.Config.UrgentLabels)

	var paragraphs []string
	if len(due) == 0 {
		paragraphs = append(paragraphs, deps.Templates.Render("deadlines_empty", map[string]any{"Days": days}))
	} else {
		paragraphs = append(paragraphs, deps.Templates.Render("deadlines_header", map[string]any{"Days": days}))
		for _, c := range due {
			urgent := report.IsUrgent(c, deps.Config.UrgentLabels)
			paragraphs = append(paragraphs, report.FormatDeadlineCard(deps.Templates, c, urgent, now, deps.Loc()))
		}
	}
	paragraphs = append(paragraphs, report.FormatParseFailures(deps.Templates, failed)...)
	return deps.SendParagraphs(ctx, send, paragraphs)
}

// PublicationPlanJob lists cards ready to publish. When any card misses a required field only
// the errors summary is sent.
type PublicationPlanJob struct{}

func (PublicationPlanJob) Name() string { return JobPublicationPlan }

func (PublicationPlanJob) Execute(ctx context.Context, deps *Dependencies, send SendFunc, calledFromHandler bool, args []string) error {
	cards, err := fetchCards(ctx, deps, aliasesOrDefault(args, config.AliasReady))
	if err != nil {
		return err
	}
	cards, failed := report.DropMalformed(cards)
	report.SortByUrgencyThenDue(cards, deps.Config.UrgentLabels)

	fields := make([]models.CustomFields, len(cards))
	var errs report.FieldErrors
	for i, c := range cards {
		f, err := deps.Board.GetCustomFields(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("get custom fields of card %s: %w", c.ID, err)
		}
		fields[i] = f
		if missing := report.ValidateRequired(f, deps.Config.RequiredFields); len(missing) > 0 {
			errs = append(errs, report.CardErrors{Card: c, Missing: missing})
		}
	}
	if len(errs) > 0 {
		slog.Warn("PublicationPlanJob: cards with missing fields", "count", len(errs))
		return deps.SendParagraphs(ctx, send, report.FormatErrorsSummary(deps.Templates, errs))
	}

	var paragraphs []string
	if len(cards) == 0 {
		paragraphs = append(paragraphs, deps.Templates.Text("publication_empty"))
	} else {
		paragraphs = append(paragraphs, deps.Templates.Text("publication_header"))
		for i, c := range cards {
			paragraphs = append(paragraphs, report.FormatPublicationCard(deps.Templates, c, fields[i]))
		}
	}
	paragraphs = append(paragraphs, report.FormatParseFailures(deps.Templates, failed)...)
	return deps.SendParagraphs(ctx, send, paragraphs)
}

// UnassignedJob lists cards without members or without a due date.
type UnassignedJob struct{}

func (UnassignedJob) Name() string { return JobUnassigned }

func (UnassignedJob) Execute(ctx context.Context, deps *Dependencies, send SendFunc, calledFromHandler bool, args []string) error {
	cards, err := fetchCards(ctx, deps, aliasesOrDefault(args, config.AliasInProgress))
	if err != nil {
		return err
	}
	cards, failed := report.DropMalformed(cards)
	var flagged []models.Card
	for _, c := range cards {
		if len(c.Members) == 0 || c.Due == nil {
			flagged = append(flagged, c)
		}
	}
	report.SortByUrgencyThenDue(flagged, deps.Config.UrgentLabels)

	var paragraphs []string
	if len(flagged) == 0 {
		paragraphs = append(paragraphs, deps.Templates.Text("unassigned_empty"))
	} else {
		paragraphs = append(paragraphs, deps.Templates.Text("unassigned_header"))
		for _, c := range flagged {
			paragraphs = append(paragraphs, report.FormatUnassignedCard(deps.Templates, c))
		}
	}
	paragraphs = append(paragraphs, report.FormatParseFailures(deps.Templates, failed)...)
	return deps.SendParagraphs(ctx, send, paragraphs)
}
