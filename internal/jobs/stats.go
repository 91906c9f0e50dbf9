package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/BoardPipe/internal/models"
	"github.com/BTreeMap/BoardPipe/internal/report"
	"github.com/BTreeMap/BoardPipe/internal/sheets"
)

// BoardStatsJob counts cards per alias. Scheduled runs record a snapshot so the next report can
// show how each count changed.
type BoardStatsJob struct{}

func (BoardStatsJob) Name() string { return JobBoardStats }

func (j BoardStatsJob) Execute(ctx context.Context, deps *Dependencies, send SendFunc, calledFromHandler bool, args []string) error {
	aliases := args
	if len(aliases) == 0 {
		aliases = deps.Config.StatsAliases
	}

	previous := map[string]int{}
	snaps, err := deps.Store.LatestStatSnapshots(j.Name())
	if err != nil {
		return fmt.Errorf("load previous snapshot: %w", err)
	}
	for _, s := range snaps {
		previous[s.Key] = s.Value
	}

	metrics := make([]report.Metric, 0, len(aliases))
	for _, alias := range aliases {
		cards, err := fetchCards(ctx, deps, []string{alias})
		if err != nil {
			return err
		}
		cards, _ = report.DropMalformed(cards)
		m := report.Metric{Key: alias, Value: len(cards)}
		if prev, ok := previous[alias]; ok {
			m.Previous = &prev
		}
		metrics = append(metrics, m)
	}

	if err := deps.SendParagraphs(ctx, send, report.FormatBoardStats(deps.Templates, metrics)); err != nil {
		return err
	}
	if calledFromHandler {
		return nil
	}

	now := deps.Now()
	rows := make([]models.StatSnapshot, len(metrics))
	for i, m := range metrics {
		rows[i] = models.StatSnapshot{Report: j.Name(), Key: m.Key, Value: m.Value, TakenAt: now}
	}
	if err := deps.Store.AddStatSnapshots(rows); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	slog.Debug("BoardStatsJob: snapshot saved", "metrics", len(rows))
	return nil
}

// SocialStatsJob reports new posts and their reach over the last week for every analytics source.
type SocialStatsJob struct{}

func (SocialStatsJob) Name() string { return JobSocialStats }

func (SocialStatsJob) Execute(ctx context.Context, deps *Dependencies, send SendFunc, calledFromHandler bool, args []string) error {
	if len(deps.Analytics) == 0 {
		return errors.New("no analytics sources configured")
	}
	now := deps.Now()
	since := now.Add(-7 * 24 * time.Hour)

	stats := make([]report.SourceStats, 0, len(deps.Analytics))
	for _, src := range deps.Analytics {
		s := report.SourceStats{Source: src.Name()}
		posts, err := src.NewPostsCount(ctx, since, now)
		if err == nil {
			s.Posts = posts
			s.Reach, err = src.WeeklyTotalReachOfNewPosts(ctx, now)
		}
		if err != nil {
			slog.Warn("SocialStatsJob: source failed", "source", src.Name(), "error", err)
			s.Err = err
		}
		stats = append(stats, s)
	}
	return deps.SendParagraphs(ctx, send, report.FormatSocialStats(deps.Templates, now, stats))
}

// RosterSyncJob imports the team roster sheet into the store.
type RosterSyncJob struct{}

func (RosterSyncJob) Name() string { return JobRosterSync }

func (RosterSyncJob) Execute(ctx context.Context, deps *Dependencies, send SendFunc, calledFromHandler bool, args []string) error {
	if deps.Sheets == nil {
		return errors.New("roster sheet is not configured")
	}
	members, skipped, err := sheets.FetchRoster(ctx, deps.Sheets, deps.Config, deps.Now())
	if err != nil {
		return err
	}
	updated := 0
	for _, m := range members {
		if err := deps.Store.UpsertRosterMember(m); err != nil {
			return fmt.Errorf("upsert roster member %s: %w", m.TelegramLogin, err)
		}
		updated++
	}
	slog.Info("RosterSyncJob: roster imported", "updated", updated, "skipped", skipped)
	return deps.SendParagraphs(ctx, send, report.FormatRosterSync(deps.Templates, updated, skipped))
}
