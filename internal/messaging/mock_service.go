package messaging

import (
	"context"
	"sync"
)

// SentMessage records one outgoing call made through MockService.
type SentMessage struct {
	ChatID  int64
	Text    string
	Buttons [][]Button
	Poll    []string
}

// MockService is an in-memory Service for tests.
type MockService struct {
	mu       sync.Mutex
	Sent     []SentMessage
	Answered []string
	SendErr  error
	updates  chan Incoming
	stopOnce sync.Once
}

// NewMockService creates a MockService with a buffered updates channel.
func NewMockService() *MockService {
	return &MockService{updates: make(chan Incoming, DefaultChannelBufferSize)}
}

// SendMessage records a plain message.
func (m *MockService) SendMessage(ctx context.Context, chatID int64, text string) error {
	return m.record(SentMessage{ChatID: chatID, Text: text})
}

// SendMessageWithButtons records a message with buttons.
func (m *MockService) SendMessageWithButtons(ctx context.Context, chatID int64, text string, rows [][]Button) error {
	return m.record(SentMessage{ChatID: chatID, Text: text, Buttons: rows})
}

// SendPoll records a poll.
func (m *MockService) SendPoll(ctx context.Context, chatID int64, question string, options []string) error {
	return m.record(SentMessage{ChatID: chatID, Text: question, Poll: options})
}

// AnswerButton records an acknowledged callback.
func (m *MockService) AnswerButton(ctx context.Context, callbackID string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Answered = append(m.Answered, callbackID)
	return nil
}

func (m *MockService) record(msg SentMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.Sent = append(m.Sent, msg)
	return nil
}

// Start is a no-op.
func (m *MockService) Start(ctx context.Context) error { return nil }

// Stop closes the updates channel.
func (m *MockService) Stop() error {
	m.stopOnce.Do(func() { close(m.updates) })
	return nil
}

// Updates returns the updates channel fed by Push.
func (m *MockService) Updates() <-chan Incoming { return m.updates }

// Push enqueues an incoming update.
func (m *MockService) Push(in Incoming) {
	m.updates <- in
}

// Messages returns a copy of everything sent so far.
func (m *MockService) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.Sent))
	copy(out, m.Sent)
	return out
}

// Texts returns the text of every sent message for chatID.
func (m *MockService) Texts(chatID int64) []string {
	var out []string
	for _, s := range m.Messages() {
		if s.ChatID == chatID {
			out = append(out, s.Text)
		}
	}
	return out
}

// Last returns the most recent message, or false when nothing was sent.
func (m *MockService) Last() (SentMessage, bool) {
	msgs := m.Messages()
	if len(msgs) == 0 {
		return SentMessage{}, false
	}
	return msgs[len(msgs)-1], true
}

// Reset forgets recorded messages.
func (m *MockService) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = nil
	m.Answered = nil
}
