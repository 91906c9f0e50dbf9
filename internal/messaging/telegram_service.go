package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// Constants for TelegramService configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for the updates channel
	DefaultChannelBufferSize = 100
	// DefaultPollTimeout is the long polling timeout in seconds
	DefaultPollTimeout = 60
	// DefaultSendRate is the outgoing message budget per second across all chats
	DefaultSendRate = 25
)

// BotAPI is the subset of *tgbotapi.BotAPI used by TelegramService.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// TelegramService implements Service on top of the Telegram Bot API using long polling.
type TelegramService struct {
	bot      BotAPI
	limiter  *rate.Limiter
	updates  chan Incoming
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewTelegramService creates a TelegramService for the given bot token.
func NewTelegramService(token string) (*TelegramService, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	slog.Info("TelegramService authorized", "username", bot.Self.UserName)
	return NewTelegramServiceWithAPI(bot), nil
}

// NewTelegramServiceWithAPI wraps an existing BotAPI implementation.
func NewTelegramServiceWithAPI(bot BotAPI) *TelegramService {
	return &TelegramService{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(DefaultSendRate), DefaultSendRate),
		updates: make(chan Incoming, DefaultChannelBufferSize),
		done:    make(chan struct{}),
	}
}

// Start begins long polling in the background.
func (s *TelegramService) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = DefaultPollTimeout
	raw := s.bot.GetUpdatesChan(u)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.updates)
		for {
			select {
			case <-ctx.Done():
				slog.Debug("TelegramService polling stopped by context")
				return
			case <-s.done:
				slog.Debug("TelegramService polling stopped")
				return
			case upd, ok := <-raw:
				if !ok {
					return
				}
				in, ok := toIncoming(upd)
				if !ok {
					slog.Debug("TelegramService ignoring unsupported update", "updateID", upd.UpdateID)
					continue
				}
				select {
				case s.updates <- in:
				case <-s.done:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	slog.Info("TelegramService started")
	return nil
}

// Stop stops polling and closes the updates channel.
func (s *TelegramService) Stop() error {
	s.stopOnce.Do(func() {
		s.bot.StopReceivingUpdates()
		close(s.done)
	})
	s.wg.Wait()
	slog.Info("TelegramService stopped")
	return nil
}

// Updates returns the channel of incoming updates.
func (s *TelegramService) Updates() <-chan Incoming {
	return s.updates
}

// SendMessage sends an HTML formatted message.
func (s *TelegramService) SendMessage(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	return s.send(ctx, chatID, msg)
}

// SendMessageWithButtons sends a message with an inline keyboard.
func (s *TelegramService) SendMessageWithButtons(ctx context.Context, chatID int64, text string, rows [][]Button) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if len(rows) > 0 {
		msg.ReplyMarkup = inlineKeyboard(rows)
	}
	return s.send(ctx, chatID, msg)
}

// SendPoll sends a non-anonymous poll.
func (s *TelegramService) SendPoll(ctx context.Context, chatID int64, question string, options []string) error {
	poll := tgbotapi.NewPoll(chatID, question, options...)
	poll.IsAnonymous = false
	return s.send(ctx, chatID, poll)
}

// AnswerButton acknowledges a callback query.
func (s *TelegramService) AnswerButton(ctx context.Context, callbackID string, text string) error {
	if callbackID == "" {
		return nil
	}
	if _, err := s.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		slog.Warn("TelegramService AnswerButton failed", "error", err, "callbackID", callbackID)
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}

func (s *TelegramService) send(ctx context.Context, chatID int64, c tgbotapi.Chattable) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := s.bot.Send(c); err != nil {
		slog.Error("TelegramService send failed", "error", err, "chatID", chatID)
		return fmt.Errorf("failed to send to chat %d: %w", chatID, err)
	}
	slog.Debug("TelegramService sent", "chatID", chatID)
	return nil
}

func inlineKeyboard(rows [][]Button) tgbotapi.InlineKeyboardMarkup {
	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		keyboard = append(keyboard, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// toIncoming converts a raw update into an Incoming. Updates without a chat are ignored.
func toIncoming(upd tgbotapi.Update) (Incoming, bool) {
	switch {
	case upd.CallbackQuery != nil:
		cq := upd.CallbackQuery
		if cq.Message == nil || cq.Message.Chat == nil {
			return Incoming{}, false
		}
		in := Incoming{
			ChatID:     cq.Message.Chat.ID,
			ChatTitle:  chatTitle(cq.Message.Chat),
			ChatType:   cq.Message.Chat.Type,
			ButtonData: cq.Data,
			CallbackID: cq.ID,
			Time:       time.Now(),
		}
		if cq.From != nil {
			in.UserID, in.UserName = cq.From.ID, cq.From.UserName
		}
		return in, true
	case upd.Message != nil:
		m := upd.Message
		if m.Chat == nil {
			return Incoming{}, false
		}
		in := Incoming{
			ChatID:    m.Chat.ID,
			ChatTitle: chatTitle(m.Chat),
			ChatType:  m.Chat.Type,
			Text:      m.Text,
			Time:      m.Time(),
		}
		if m.From != nil {
			in.UserID, in.UserName = m.From.ID, m.From.UserName
		}
		return in, true
	default:
		return Incoming{}, false
	}
}

func chatTitle(c *tgbotapi.Chat) string {
	if c.Title != "" {
		return c.Title
	}
	if c.UserName != "" {
		return "@" + c.UserName
	}
	return c.FirstName
}
