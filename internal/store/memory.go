package store

import (
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/BoardPipe/internal/models"
)

type flowKey struct {
	chatID   int64
	flowType models.FlowType
}

// InMemoryStore keeps everything in process memory. Data is lost on restart.
type InMemoryStore struct {
	mu            sync.RWMutex
	chats         map[int64]models.Chat
	reminders     map[int64]models.Reminder
	roster        map[string]models.RosterMember
	snapshots     []models.StatSnapshot
	subscriptions map[int64]models.ReportSubscription
	flows         map[flowKey]models.FlowState
	active        map[int64]models.FlowType
	nextID        int64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		chats:         make(map[int64]models.Chat),
		reminders:     make(map[int64]models.Reminder),
		roster:        make(map[string]models.RosterMember),
		subscriptions: make(map[int64]models.ReportSubscription),
		flows:         make(map[flowKey]models.FlowState),
		active:        make(map[int64]models.FlowType),
	}
}

func (s *InMemoryStore) newID() int64 {
	s.nextID++
	return s.nextID
}

func (s *InMemoryStore) UpsertChat(chat models.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat.UpdatedAt.IsZero() {
		chat.UpdatedAt = time.Now()
	}
	s.chats[chat.ID] = chat
	return nil
}

func (s *InMemoryStore) GetChat(id int64) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &c, nil
}

func (s *InMemoryStore) ListChats() ([]models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) AddReminder(r *models.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	r.ID = s.newID()
	r.CreatedAt, r.UpdatedAt = now, now
	s.reminders[r.ID] = *r
	return nil
}

func (s *InMemoryStore) UpdateReminder(r models.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.reminders[r.ID]
	if !ok {
		return models.ErrNotFound
	}
	r.CreatedAt = old.CreatedAt
	r.UpdatedAt = time.Now()
	s.reminders[r.ID] = r
	return nil
}

func (s *InMemoryStore) DeleteReminder(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reminders[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.reminders, id)
	return nil
}

func (s *InMemoryStore) GetReminder(id int64) (*models.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reminders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &r, nil
}

func (s *InMemoryStore) ListReminders() ([]models.Reminder, error) {
	return s.filterReminders(func(models.Reminder) bool { return true }), nil
}

func (s *InMemoryStore) ListRemindersByOwner(ownerChatID int64) ([]models.Reminder, error) {
	return s.filterReminders(func(r models.Reminder) bool { return r.OwnerChatID == ownerChatID }), nil
}

func (s *InMemoryStore) filterReminders(keep func(models.Reminder) bool) []models.Reminder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Reminder
	for _, r := range s.reminders {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *InMemoryStore) MarkReminderSent(id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return models.ErrNotFound
	}
	r.LastSentAt = &at
	s.reminders[id] = r
	return nil
}

func (s *InMemoryStore) UpsertRosterMember(m models.RosterMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.TelegramLogin = models.NormalizeLogin(m.TelegramLogin)
	s.roster[m.TelegramLogin] = m
	return nil
}

func (s *InMemoryStore) GetRosterMember(login string) (*models.RosterMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.roster[models.NormalizeLogin(login)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &m, nil
}

func (s *InMemoryStore) ListRoster() ([]models.RosterMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.RosterMember, 0, len(s.roster))
	for _, m := range s.roster {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelegramLogin < out[j].TelegramLogin })
	return out, nil
}

func (s *InMemoryStore) AddStatSnapshots(snaps []models.StatSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range snaps {
		snap.ID = s.newID()
		s.snapshots = append(s.snapshots, snap)
	}
	return nil
}

func (s *InMemoryStore) LatestStatSnapshots(report string) ([]models.StatSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest time.Time
	for _, snap := range s.snapshots {
		if snap.Report == report && snap.TakenAt.After(latest) {
			latest = snap.TakenAt
		}
	}
	var out []models.StatSnapshot
	for _, snap := range s.snapshots {
		if snap.Report == report && snap.TakenAt.Equal(latest) {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *InMemoryStore) AddSubscription(sub *models.ReportSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID = s.newID()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	s.subscriptions[sub.ID] = *sub
	return nil
}

func (s *InMemoryStore) DeleteSubscription(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscriptions[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.subscriptions, id)
	return nil
}

func (s *InMemoryStore) ListSubscriptions() ([]models.ReportSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ReportSubscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) SaveFlowState(state models.FlowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[flowKey{state.ChatID, state.FlowType}] = state
	if state.Action != models.ActionNone {
		s.active[state.ChatID] = state.FlowType
	} else if s.active[state.ChatID] == state.FlowType {
		delete(s.active, state.ChatID)
	}
	return nil
}

func (s *InMemoryStore) GetFlowState(chatID int64, flowType models.FlowType) (*models.FlowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.flows[flowKey{chatID, flowType}]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *InMemoryStore) DeleteFlowState(chatID int64, flowType models.FlowType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flows, flowKey{chatID, flowType})
	if s.active[chatID] == flowType {
		delete(s.active, chatID)
	}
	return nil
}

func (s *InMemoryStore) ListFlowStates() ([]models.FlowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.FlowState, 0, len(s.flows))
	for _, st := range s.flows {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChatID != out[j].ChatID {
			return out[i].ChatID < out[j].ChatID
		}
		return out[i].FlowType < out[j].FlowType
	})
	return out, nil
}

func (s *InMemoryStore) GetActiveFlow(chatID int64) (models.FlowType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active[chatID], nil
}

func (s *InMemoryStore) ClearActiveFlow(chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, chatID)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
