// Package board provides access to the kanban board that report jobs read from.
package board

import (
	"context"
	"errors"

	"github.com/BTreeMap/BoardPipe/internal/models"
)

// ErrUnknownAlias is returned when a list alias is not configured.
var ErrUnknownAlias = errors.New("unknown list alias")

// Board is the read-only view of the kanban board consumed by report jobs.
type Board interface {
	// GetLists returns every open list of the board.
	GetLists(ctx context.Context) ([]models.BoardList, error)
	// GetCards returns the cards of the given lists, or of the whole board when none are given.
	GetCards(ctx context.Context, listIDs ...string) ([]models.Card, error)
	// GetCustomFields returns the editorial custom fields of a card.
	GetCustomFields(ctx context.Context, cardID string) (models.CustomFields, error)
	// GetListIDsFromAliases resolves symbolic aliases to list identifiers.
	GetListIDsFromAliases(ctx context.Context, aliases []string) ([]string, error)
}
