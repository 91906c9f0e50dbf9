package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeBotAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	sendErr  error
	updates  chan tgbotapi.Update
	stopped  bool
}

func newFakeBotAPI() *fakeBotAPI {
	return &fakeBotAPI{updates: make(chan tgbotapi.Update, 10)}
}

func (f *fakeBotAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeBotAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBotAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeBotAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func TestTelegramServiceSendMessageUsesHTML(t *testing.T) {
	api := newFakeBotAPI()
	svc := NewTelegramServiceWithAPI(api)

	if err := svc.SendMessage(context.Background(), 42, "<b>hi</b>"); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	msg, ok := api.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("expected MessageConfig, got %T", api.sent[0])
	}
	if msg.ChatID != 42 || msg.Text != "<b>hi</b>" || msg.ParseMode != tgbotapi.ModeHTML {
		t.Errorf("unexpected message config: %+v", msg)
	}
}

func TestTelegramServiceButtons(t *testing.T) {
	api := newFakeBotAPI()
	svc := NewTelegramServiceWithAPI(api)

	rows := [][]Button{{{Text: "New", Data: "new"}, {Text: "Edit", Data: "edit"}}}
	if err := svc.SendMessageWithButtons(context.Background(), 7, "Pick", rows); err != nil {
		t.Fatalf("SendMessageWithButtons returned error: %v", err)
	}
	msg := api.sent[0].(tgbotapi.MessageConfig)
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("expected inline keyboard, got %T", msg.ReplyMarkup)
	}
	if len(markup.InlineKeyboard) != 1 || len(markup.InlineKeyboard[0]) != 2 {
		t.Fatalf("unexpected keyboard shape: %+v", markup.InlineKeyboard)
	}
	if data := markup.InlineKeyboard[0][1].CallbackData; data == nil || *data != "edit" {
		t.Errorf("expected callback data 'edit', got %v", data)
	}
}

func TestTelegramServicePollAndAnswer(t *testing.T) {
	api := newFakeBotAPI()
	svc := NewTelegramServiceWithAPI(api)

	if err := svc.SendPoll(context.Background(), 5, "Coming?", []string{"yes", "no"}); err != nil {
		t.Fatalf("SendPoll returned error: %v", err)
	}
	poll, ok := api.sent[0].(tgbotapi.SendPollConfig)
	if !ok {
		t.Fatalf("expected SendPollConfig, got %T", api.sent[0])
	}
	if poll.IsAnonymous || len(poll.Options) != 2 {
		t.Errorf("unexpected poll config: %+v", poll)
	}

	if err := svc.AnswerButton(context.Background(), "cb-1", ""); err != nil {
		t.Fatalf("AnswerButton returned error: %v", err)
	}
	if len(api.requests) != 1 {
		t.Errorf("expected 1 callback request, got %d", len(api.requests))
	}
	if err := svc.AnswerButton(context.Background(), "", ""); err != nil || len(api.requests) != 1 {
		t.Error("empty callback id should be a no-op")
	}
}

func TestTelegramServiceSendError(t *testing.T) {
	api := newFakeBotAPI()
	api.sendErr = errors.New("flood")
	svc := NewTelegramServiceWithAPI(api)

	if err := svc.SendMessage(context.Background(), 1, "x"); err == nil {
		t.Error("expected error from failing transport")
	}
}

func TestTelegramServiceUpdates(t *testing.T) {
	api := newFakeBotAPI()
	svc := NewTelegramServiceWithAPI(api)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	api.updates <- tgbotapi.Update{UpdateID: 1}
	api.updates <- tgbotapi.Update{
		UpdateID: 2,
		Message: &tgbotapi.Message{
			Text: "/deadlines",
			Date: int(time.Now().Unix()),
			Chat: &tgbotapi.Chat{ID: -100, Type: "supergroup", Title: "Editors"},
			From: &tgbotapi.User{ID: 77, UserName: "anna"},
		},
	}
	api.updates <- tgbotapi.Update{
		UpdateID: 3,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb",
			Data:    "new",
			From:    &tgbotapi.User{ID: 77, UserName: "anna"},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 9, Type: "private", UserName: "anna"}},
		},
	}

	first := receive(t, svc.Updates())
	if first.ChatID != -100 || first.Text != "/deadlines" || first.UserName != "anna" || first.UserID != 77 || first.IsPrivate() {
		t.Errorf("unexpected message update: %+v", first)
	}
	second := receive(t, svc.Updates())
	if !second.IsButton() || second.ButtonData != "new" || second.UserID != 77 || second.ChatTitle != "@anna" || !second.IsPrivate() {
		t.Errorf("unexpected button update: %+v", second)
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if _, ok := <-svc.Updates(); ok {
		t.Error("expected updates channel to be closed after Stop")
	}
	if !api.stopped {
		t.Error("expected StopReceivingUpdates to be called")
	}
}

func receive(t *testing.T, ch <-chan Incoming) Incoming {
	t.Helper()
	select {
	case in := <-ch:
		return in
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
	return Incoming{}
}
