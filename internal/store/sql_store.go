package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/BoardPipe/internal/models"
)

// sqlStore implements Store on database/sql. Queries are written with "?" placeholders and
// rebound for drivers that use numbered placeholders.
type sqlStore struct {
	db       *sql.DB
	name     string
	numbered bool
}

func (s *sqlStore) q(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) UpsertChat(chat models.Chat) error {
	if chat.UpdatedAt.IsZero() {
		chat.UpdatedAt = time.Now()
	}
	_, err := s.db.Exec(s.q(`
		INSERT INTO chats (id, title, chat_type, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET title = excluded.title, chat_type = excluded.chat_type, updated_at = excluded.updated_at`),
		chat.ID, chat.Title, chat.Type, chat.UpdatedAt)
	if err != nil {
		slog.Error(s.name+" UpsertChat failed", "error", err, "chatID", chat.ID)
		return fmt.Errorf("failed to upsert chat %d: %w", chat.ID, err)
	}
	return nil
}

func (s *sqlStore) GetChat(id int64) (*models.Chat, error) {
	var c models.Chat
	err := s.db.QueryRow(s.q(`SELECT id, title, chat_type, updated_at FROM chats WHERE id = ?`), id).
		Scan(&c.ID, &c.Title, &c.Type, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		slog.Error(s.name+" GetChat failed", "error", err, "chatID", id)
		return nil, fmt.Errorf("failed to get chat %d: %w", id, err)
	}
	return &c, nil
}

func (s *sqlStore) ListChats() ([]models.Chat, error) {
	rows, err := s.db.Query(`SELECT id, title, chat_type, updated_at FROM chats ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()
	var chats []models.Chat
	for rows.Next() {
		var c models.Chat
		if err := rows.Scan(&c.ID, &c.Title, &c.Type, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

const reminderColumns = `id, owner_chat_id, chat_id, name, text, weekday, time_of_day, poll, last_sent_at, created_at, updated_at`

func (s *sqlStore) AddReminder(r *models.Reminder) error {
	now := time.Now()
	err := s.db.QueryRow(s.q(`
		INSERT INTO reminders (owner_chat_id, chat_id, name, text, weekday, time_of_day, poll, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		r.OwnerChatID, r.ChatID, r.Name, r.Text, int(r.Weekday), r.Time, r.Poll, now, now).Scan(&r.ID)
	if err != nil {
		slog.Error(s.name+" AddReminder failed", "error", err, "chatID", r.ChatID)
		return fmt.Errorf("failed to insert reminder: %w", err)
	}
	r.CreatedAt, r.UpdatedAt = now, now
	slog.Debug(s.name+" AddReminder succeeded", "id", r.ID, "chatID", r.ChatID)
	return nil
}

func (s *sqlStore) UpdateReminder(r models.Reminder) error {
	res, err := s.db.Exec(s.q(`
		UPDATE reminders SET chat_id = ?, name = ?, text = ?, weekday = ?, time_of_day = ?, poll = ?, updated_at = ?
		WHERE id = ?`),
		r.ChatID, r.Name, r.Text, int(r.Weekday), r.Time, r.Poll, time.Now(), r.ID)
	if err != nil {
		slog.Error(s.name+" UpdateReminder failed", "error", err, "id", r.ID)
		return fmt.Errorf("failed to update reminder %d: %w", r.ID, err)
	}
	return expectOneRow(res)
}

func (s *sqlStore) DeleteReminder(id int64) error {
	res, err := s.db.Exec(s.q(`DELETE FROM reminders WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete reminder %d: %w", id, err)
	}
	return expectOneRow(res)
}

func (s *sqlStore) GetReminder(id int64) (*models.Reminder, error) {
	r, err := scanReminder(s.db.QueryRow(s.q(`SELECT `+reminderColumns+` FROM reminders WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder %d: %w", id, err)
	}
	return &r, nil
}

func (s *sqlStore) ListReminders() ([]models.Reminder, error) {
	return s.queryReminders(`SELECT ` + reminderColumns + ` FROM reminders ORDER BY id`)
}

func (s *sqlStore) ListRemindersByOwner(ownerChatID int64) ([]models.Reminder, error) {
	return s.queryReminders(s.q(`SELECT `+reminderColumns+` FROM reminders WHERE owner_chat_id = ? ORDER BY id`), ownerChatID)
}

func (s *sqlStore) queryReminders(query string, args ...any) ([]models.Reminder, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error(s.name+" reminders query failed", "error", err)
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}
	defer rows.Close()
	var out []models.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlStore) MarkReminderSent(id int64, at time.Time) error {
	res, err := s.db.Exec(s.q(`UPDATE reminders SET last_sent_at = ? WHERE id = ?`), at, id)
	if err != nil {
		return fmt.Errorf("failed to mark reminder %d sent: %w", id, err)
	}
	return expectOneRow(res)
}

func (s *sqlStore) UpsertRosterMember(m models.RosterMember) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}
	_, err := s.db.Exec(s.q(`
		INSERT INTO roster (telegram_login, name, trello_login, role, status, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (telegram_login) DO UPDATE SET name = excluded.name, trello_login = excluded.trello_login,
			role = excluded.role, status = excluded.status, updated_at = excluded.updated_at`),
		models.NormalizeLogin(m.TelegramLogin), m.Name, m.TrelloLogin, string(m.Role), m.Status, m.UpdatedAt)
	if err != nil {
		slog.Error(s.name+" UpsertRosterMember failed", "error", err, "login", m.TelegramLogin)
		return fmt.Errorf("failed to upsert roster member %s: %w", m.TelegramLogin, err)
	}
	return nil
}

func (s *sqlStore) GetRosterMember(login string) (*models.RosterMember, error) {
	var m models.RosterMember
	var role string
	err := s.db.QueryRow(s.q(`SELECT telegram_login, name, trello_login, role, status, updated_at FROM roster WHERE telegram_login = ?`),
		models.NormalizeLogin(login)).Scan(&m.TelegramLogin, &m.Name, &m.TrelloLogin, &role, &m.Status, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get roster member %s: %w", login, err)
	}
	m.Role = models.Role(role)
	return &m, nil
}

func (s *sqlStore) ListRoster() ([]models.RosterMember, error) {
	rows, err := s.db.Query(`SELECT telegram_login, name, trello_login, role, status, updated_at FROM roster ORDER BY telegram_login`)
	if err != nil {
		return nil, fmt.Errorf("failed to query roster: %w", err)
	}
	defer rows.Close()
	var out []models.RosterMember
	for rows.Next() {
		var m models.RosterMember
		var role string
		if err := rows.Scan(&m.TelegramLogin, &m.Name, &m.TrelloLogin, &role, &m.Status, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan roster row: %w", err)
		}
		m.Role = models.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqlStore) AddStatSnapshots(snaps []models.StatSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()
	stmt := s.q(`INSERT INTO stat_snapshots (report, metric_key, value, taken_at) VALUES (?, ?, ?, ?)`)
	for _, snap := range snaps {
		if _, err := tx.Exec(stmt, snap.Report, snap.Key, snap.Value, snap.TakenAt); err != nil {
			slog.Error(s.name+" AddStatSnapshots failed", "error", err, "report", snap.Report, "key", snap.Key)
			return fmt.Errorf("failed to insert snapshot %s/%s: %w", snap.Report, snap.Key, err)
		}
	}
	return tx.Commit()
}

func (s *sqlStore) LatestStatSnapshots(report string) ([]models.StatSnapshot, error) {
	rows, err := s.db.Query(s.q(`
		SELECT id, report, metric_key, value, taken_at FROM stat_snapshots
		WHERE report = ? AND taken_at = (SELECT MAX(taken_at) FROM stat_snapshots WHERE report = ?)
		ORDER BY id`), report, report)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots for %s: %w", report, err)
	}
	defer rows.Close()
	var out []models.StatSnapshot
	for rows.Next() {
		var snap models.StatSnapshot
		if err := rows.Scan(&snap.ID, &snap.Report, &snap.Key, &snap.Value, &snap.TakenAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *sqlStore) AddSubscription(sub *models.ReportSubscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	aliases, err := json.Marshal(sub.ListAliases)
	if err != nil {
		return fmt.Errorf("failed to encode list aliases: %w", err)
	}
	err = s.db.QueryRow(s.q(`
		INSERT INTO report_subscriptions (chat_id, report, list_aliases, cron, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id`),
		sub.ChatID, sub.Report, string(aliases), sub.Cron, sub.CreatedAt).Scan(&sub.ID)
	if err != nil {
		slog.Error(s.name+" AddSubscription failed", "error", err, "chatID", sub.ChatID, "report", sub.Report)
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

func (s *sqlStore) DeleteSubscription(id int64) error {
	res, err := s.db.Exec(s.q(`DELETE FROM report_subscriptions WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription %d: %w", id, err)
	}
	return expectOneRow(res)
}

func (s *sqlStore) ListSubscriptions() ([]models.ReportSubscription, error) {
	rows, err := s.db.Query(`SELECT id, chat_id, report, list_aliases, cron, created_at FROM report_subscriptions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()
	var out []models.ReportSubscription
	for rows.Next() {
		var sub models.ReportSubscription
		var aliases string
		if err := rows.Scan(&sub.ID, &sub.ChatID, &sub.Report, &aliases, &sub.Cron, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		if aliases != "" {
			if err := json.Unmarshal([]byte(aliases), &sub.ListAliases); err != nil {
				slog.Warn(s.name+" ListSubscriptions bad list_aliases", "error", err, "id", sub.ID)
			}
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *sqlStore) SaveFlowState(state models.FlowState) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin flow state transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(s.q(`
		INSERT INTO flow_states (chat_id, flow_type, user_id, action, payload, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chat_id, flow_type) DO UPDATE SET user_id = excluded.user_id, action = excluded.action,
			payload = excluded.payload, created_at = excluded.created_at, updated_at = excluded.updated_at`),
		state.ChatID, string(state.FlowType), state.UserID, string(state.Action), state.Payload, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error(s.name+" SaveFlowState failed", "error", err, "chatID", state.ChatID, "flowType", state.FlowType)
		return fmt.Errorf("failed to save flow state: %w", err)
	}

	if state.Action != models.ActionNone {
		_, err = tx.Exec(s.q(`
			INSERT INTO active_flows (chat_id, flow_type) VALUES (?, ?)
			ON CONFLICT (chat_id) DO UPDATE SET flow_type = excluded.flow_type`),
			state.ChatID, string(state.FlowType))
	} else {
		_, err = tx.Exec(s.q(`DELETE FROM active_flows WHERE chat_id = ? AND flow_type = ?`), state.ChatID, string(state.FlowType))
	}
	if err != nil {
		slog.Error(s.name+" SaveFlowState active pointer failed", "error", err, "chatID", state.ChatID)
		return fmt.Errorf("failed to update active flow: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit flow state: %w", err)
	}
	slog.Debug(s.name+" SaveFlowState succeeded", "chatID", state.ChatID, "flowType", state.FlowType, "action", state.Action)
	return nil
}

func (s *sqlStore) GetFlowState(chatID int64, flowType models.FlowType) (*models.FlowState, error) {
	var st models.FlowState
	var ft, action string
	err := s.db.QueryRow(s.q(`
		SELECT chat_id, flow_type, user_id, action, payload, created_at, updated_at FROM flow_states WHERE chat_id = ? AND flow_type = ?`),
		chatID, string(flowType)).Scan(&st.ChatID, &ft, &st.UserID, &action, &st.Payload, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" GetFlowState failed", "error", err, "chatID", chatID, "flowType", flowType)
		return nil, fmt.Errorf("failed to get flow state: %w", err)
	}
	st.FlowType, st.Action = models.FlowType(ft), models.ActionID(action)
	return &st, nil
}

func (s *sqlStore) DeleteFlowState(chatID int64, flowType models.FlowType) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(s.q(`DELETE FROM flow_states WHERE chat_id = ? AND flow_type = ?`), chatID, string(flowType)); err != nil {
		return fmt.Errorf("failed to delete flow state: %w", err)
	}
	if _, err := tx.Exec(s.q(`DELETE FROM active_flows WHERE chat_id = ? AND flow_type = ?`), chatID, string(flowType)); err != nil {
		return fmt.Errorf("failed to clear active flow: %w", err)
	}
	return tx.Commit()
}

func (s *sqlStore) ListFlowStates() ([]models.FlowState, error) {
	rows, err := s.db.Query(`SELECT chat_id, flow_type, user_id, action, payload, created_at, updated_at FROM flow_states ORDER BY chat_id, flow_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to query flow states: %w", err)
	}
	defer rows.Close()
	var out []models.FlowState
	for rows.Next() {
		var st models.FlowState
		var ft, action string
		if err := rows.Scan(&st.ChatID, &ft, &st.UserID, &action, &st.Payload, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan flow state row: %w", err)
		}
		st.FlowType, st.Action = models.FlowType(ft), models.ActionID(action)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *sqlStore) GetActiveFlow(chatID int64) (models.FlowType, error) {
	var ft string
	err := s.db.QueryRow(s.q(`SELECT flow_type FROM active_flows WHERE chat_id = ?`), chatID).Scan(&ft)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get active flow: %w", err)
	}
	return models.FlowType(ft), nil
}

func (s *sqlStore) ClearActiveFlow(chatID int64) error {
	if _, err := s.db.Exec(s.q(`DELETE FROM active_flows WHERE chat_id = ?`), chatID); err != nil {
		return fmt.Errorf("failed to clear active flow: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug("Closing database connection", "store", s.name)
	if err := s.db.Close(); err != nil {
		slog.Error("Failed to close database", "store", s.name, "error", err)
		return err
	}
	return nil
}
