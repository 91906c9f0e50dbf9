package sheets

import (
	"context"
	"fmt"
	"time"

	"github.com/BTreeMap/BoardPipe/internal/config"
	"github.com/BTreeMap/BoardPipe/internal/models"
)

// FetchRoster reads the roster sheet named in cfg and converts it to members.
// Rows without a telegram login are skipped and counted.
func FetchRoster(ctx context.Context, s Sheets, cfg *config.Config, now time.Time) ([]models.RosterMember, int, error) {
	rows, err := s.FetchRows(ctx, cfg.RosterSheet)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch roster: %w", err)
	}
	members, skipped := ParseRoster(rows, cfg.RosterColumns, now)
	return members, skipped, nil
}

// ParseRoster maps roster rows to members using the configured column names.
func ParseRoster(rows []Row, cols config.RosterColumns, now time.Time) ([]models.RosterMember, int) {
	var (
		members []models.RosterMember
		skipped int
	)
	for _, row := range rows {
		login := models.NormalizeLogin(row.Get(cols.TelegramLogin))
		if login == "" {
			skipped++
			continue
		}
		members = append(members, models.RosterMember{
			TelegramLogin: login,
			Name:          row.Get(cols.Name),
			TrelloLogin:   models.NormalizeLogin(row.Get(cols.TrelloLogin)),
			Role:          models.ParseRole(row.Get(cols.Role)),
			Status:        row.Get(cols.Status),
			UpdatedAt:     now,
		})
	}
	return members, skipped
}
