package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/BTreeMap/BoardPipe/internal/models"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// scanReminder scans a reminder selected with reminderColumns.
func scanReminder(row rowScanner) (models.Reminder, error) {
	var r models.Reminder
	var weekday int
	var lastSent sql.NullTime
	err := row.Scan(&r.ID, &r.OwnerChatID, &r.ChatID, &r.Name, &r.Text, &weekday, &r.Time, &r.Poll,
		&lastSent, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	r.Weekday = time.Weekday(weekday)
	if lastSent.Valid {
		t := lastSent.Time
		r.LastSentAt = &t
	}
	return r, nil
}

// expectOneRow maps a zero-row update or delete to models.ErrNotFound.
func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
