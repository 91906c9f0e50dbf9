// Package store provides storage backends for BoardPipe.
//
// It includes an in-memory store for tests and ephemeral runs, and SQLite and PostgreSQL
// stores for persistent deployments.
package store

import (
	"strings"
	"time"

	"github.com/BTreeMap/BoardPipe/internal/models"
)

// Store defines the persistence surface used by jobs, flows and the dispatcher.
// Implementations must be safe for concurrent use.
type Store interface {
	// UpsertChat inserts a chat or updates its title and type.
	UpsertChat(chat models.Chat) error
	// GetChat returns models.ErrNotFound when the chat is unknown.
	GetChat(id int64) (*models.Chat, error)
	ListChats() ([]models.Chat, error)

	// AddReminder inserts a reminder and sets its ID.
	AddReminder(r *models.Reminder) error
	UpdateReminder(r models.Reminder) error
	DeleteReminder(id int64) error
	GetReminder(id int64) (*models.Reminder, error)
	// ListReminders returns every reminder ordered by ID.
	ListReminders() ([]models.Reminder, error)
	// ListRemindersByOwner returns the reminders managed from a chat, ordered by ID.
	ListRemindersByOwner(ownerChatID int64) ([]models.Reminder, error)
	MarkReminderSent(id int64, at time.Time) error

	// UpsertRosterMember inserts or updates a member keyed by telegram login.
	UpsertRosterMember(m models.RosterMember) error
	GetRosterMember(login string) (*models.RosterMember, error)
	ListRoster() ([]models.RosterMember, error)

	AddStatSnapshots(snaps []models.StatSnapshot) error
	// LatestStatSnapshots returns the rows of the most recent run of report.
	LatestStatSnapshots(report string) ([]models.StatSnapshot, error)

	AddSubscription(s *models.ReportSubscription) error
	DeleteSubscription(id int64) error
	ListSubscriptions() ([]models.ReportSubscription, error)

	// SaveFlowState stores a flow state. In the same write the chat's active flow pointer is
	// set to the flow while it has a next action, and cleared when it reaches ActionNone.
	SaveFlowState(state models.FlowState) error
	// GetFlowState returns nil, nil when no state exists.
	GetFlowState(chatID int64, flowType models.FlowType) (*models.FlowState, error)
	DeleteFlowState(chatID int64, flowType models.FlowType) error
	ListFlowStates() ([]models.FlowState, error)
	// GetActiveFlow returns "" when the chat has no active flow.
	GetActiveFlow(chatID int64) (models.FlowType, error)
	ClearActiveFlow(chatID int64) error

	Close() error
}

// Opts holds configuration options for the persistent stores.
type Opts struct {
	DSN string
}

// Option defines a function that configures a store.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database path or DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") || strings.Contains(lower, "user=") {
		return "postgres"
	}
	return "sqlite3"
}

// Open returns the store selected by dsn: in-memory when empty, otherwise PostgreSQL or SQLite.
func Open(dsn string) (Store, error) {
	switch {
	case strings.TrimSpace(dsn) == "":
		return NewInMemoryStore(), nil
	case DetectDSNType(dsn) == "postgres":
		return NewPostgresStore(WithPostgresDSN(dsn))
	default:
		return NewSQLiteStore(WithSQLiteDSN(dsn))
	}
}
