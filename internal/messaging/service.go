package messaging

import (
	"context"
	"time"
)

// Button is an inline button. Data is the opaque payload delivered back when pressed.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// Incoming is a chat update normalized by a Service.
type Incoming struct {
	ChatID     int64     `json:"chat_id"`
	ChatTitle  string    `json:"chat_title,omitempty"`
	ChatType   string    `json:"chat_type,omitempty"` // private, group, supergroup or channel
	UserID     int64     `json:"user_id,omitempty"`
	UserName   string    `json:"user_name,omitempty"`
	Text       string    `json:"text,omitempty"`
	ButtonData string    `json:"button_data,omitempty"`
	CallbackID string    `json:"callback_id,omitempty"`
	Time       time.Time `json:"time"`
}

// IsButton reports whether the update is a button press.
func (in Incoming) IsButton() bool {
	return in.CallbackID != "" || in.ButtonData != ""
}

// IsPrivate reports whether the update came from a one-to-one chat.
func (in Incoming) IsPrivate() bool {
	return in.ChatType == "" || in.ChatType == "private"
}

// Service defines a pluggable chat transport.
// Implementations deliver updates of one chat in order; different chats may be delivered concurrently.
type Service interface {
	// SendMessage sends an HTML formatted text message to a chat.
	SendMessage(ctx context.Context, chatID int64, text string) error

	// SendMessageWithButtons sends a message with rows of inline buttons.
	SendMessageWithButtons(ctx context.Context, chatID int64, text string, rows [][]Button) error

	// SendPoll sends a non-anonymous poll.
	SendPoll(ctx context.Context, chatID int64, question string, options []string) error

	// AnswerButton acknowledges a button press so the client stops its spinner.
	AnswerButton(ctx context.Context, callbackID string, text string) error

	// Start begins any background processing (e.g., polling for updates).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Updates returns the channel of incoming updates.
	Updates() <-chan Incoming
}
