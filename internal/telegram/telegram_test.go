package telegram

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"server_monitor_bot/internal/config"
	"server_monitor_bot/internal/router"
)

type fakeBot struct {
	startedWith context.Context
	sent        []*bot.SendMessageParams
	answered    []*bot.AnswerCallbackQueryParams
	sendErr     error
}

func (f *fakeBot) Start(ctx context.Context) {
	f.startedWith = ctx
}

func (f *fakeBot) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.sent = append(f.sent, params)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &models.Message{}, nil
}

func (f *fakeBot) AnswerCallbackQuery(_ context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	f.answered = append(f.answered, params)
	return true, nil
}

type fakeDispatcher struct {
	requests []router.Request
	resp     router.Response
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req router.Request) router.Response {
	f.requests = append(f.requests, req)
	return f.resp
}

type fakeContacts struct {
	callers []int64
	texts   []string
}

func (f *fakeContacts) SaveContact(_ context.Context, callerID int64, text string) router.Response {
	f.callers = append(f.callers, callerID)
	f.texts = append(f.texts, text)
	return router.Response{Text: "saved"}
}

func newTestClient(t *testing.T) (*Client, *fakeBot, *fakeDispatcher, *fakeContacts) {
	t.Helper()

	hookLogger, _ := logtest.NewNullLogger()
	b := &fakeBot{}
	dispatcher := &fakeDispatcher{resp: router.Response{Text: "reply"}}
	contacts := &fakeContacts{}

	return &Client{
		bot:        b,
		dispatcher: dispatcher,
		contacts:   contacts,
		logger:     logrus.NewEntry(hookLogger),
	}, b, dispatcher, contacts
}

func TestNewClientCreatesBot(t *testing.T) {
	origCreateBot := createBot
	defer func() { createBot = origCreateBot }()

	var gotToken string
	var gotOptions []bot.Option
	b := &fakeBot{}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		gotToken = token
		gotOptions = options
		return b, nil
	}

	cfg := config.Config{TelegramToken: "token-123"}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	client, err := NewClient(cfg, &fakeDispatcher{}, &fakeContacts{}, logrus.NewEntry(logger))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	if client == nil || client.bot == nil {
		t.Fatalf("expected client and bot to be initialized")
	}

	if gotToken != cfg.TelegramToken {
		t.Fatalf("expected token %q, got %q", cfg.TelegramToken, gotToken)
	}

	if len(gotOptions) != 3 {
		t.Fatalf("expected 3 bot options (allowed updates, default handler, error handler), got %d", len(gotOptions))
	}
}

func TestNewClientPropagatesBotError(t *testing.T) {
	origCreateBot := createBot
	defer func() { createBot = origCreateBot }()

	expected := errors.New("boom")
	createBot = func(string, ...bot.Option) (botAPI, error) {
		return nil, expected
	}

	_, err := NewClient(config.Config{TelegramToken: "token"}, &fakeDispatcher{}, &fakeContacts{}, nil)
	if !errors.Is(err, expected) {
		t.Fatalf("expected error %v, got %v", expected, err)
	}
}

func TestNewClientValidatesDependencies(t *testing.T) {
	cfg := config.Config{TelegramToken: "token"}

	if _, err := NewClient(config.Config{}, &fakeDispatcher{}, &fakeContacts{}, nil); err == nil {
		t.Fatalf("expected error for missing token")
	}
	if _, err := NewClient(cfg, nil, &fakeContacts{}, nil); err == nil {
		t.Fatalf("expected error for missing dispatcher")
	}
	if _, err := NewClient(cfg, &fakeDispatcher{}, nil, nil); err == nil {
		t.Fatalf("expected error for missing contact saver")
	}
}

func TestClientStartLogsAndUsesContext(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	fb := &fakeBot{}
	client := &Client{
		bot:    fb,
		logger: logrus.NewEntry(hookLogger),
	}

	ctx := context.Background()
	client.Start(ctx)

	if fb.startedWith != ctx {
		t.Fatalf("expected bot to start with provided context")
	}

	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries (start/stop), got %d", len(entries))
	}

	if entries[0].Data["event"] != "telegram_listen" {
		t.Fatalf("expected start log event, got %v", entries[0].Data["event"])
	}
	if entries[1].Data["event"] != "telegram_stopped" {
		t.Fatalf("expected stop log event, got %v", entries[1].Data["event"])
	}
}

func TestHandleUpdateDispatchesCommands(t *testing.T) {
	client, b, dispatcher, contacts := newTestClient(t)

	client.handleUpdate(context.Background(), nil, &models.Update{
		Message: &models.Message{
			From: &models.User{ID: 10},
			Chat: models.Chat{ID: 20},
			Text: "/Status@MonitorBot",
		},
	})

	if len(dispatcher.requests) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(dispatcher.requests))
	}
	req := dispatcher.requests[0]
	if req.CallerID != 10 || req.ChatID != 20 || req.Command != "status" || req.Source != router.SourceCommand {
		t.Fatalf("unexpected request: %+v", req)
	}
	if len(contacts.texts) != 0 {
		t.Fatalf("expected commands not to be registered as contacts")
	}
	if len(b.sent) != 1 || b.sent[0].ChatID != int64(20) || b.sent[0].Text != "reply" {
		t.Fatalf("expected reply to chat 20, got %+v", b.sent)
	}
	if b.sent[0].ReplyMarkup != nil {
		t.Fatalf("expected no keyboard without buttons")
	}
}

func TestHandleUpdateSavesFreeText(t *testing.T) {
	client, b, dispatcher, contacts := newTestClient(t)

	client.handleUpdate(context.Background(), nil, &models.Update{
		Message: &models.Message{
			From: &models.User{ID: 5},
			Chat: models.Chat{ID: 5},
			Text: "  Alice  ",
		},
	})

	if len(dispatcher.requests) != 0 {
		t.Fatalf("expected free text not to be dispatched")
	}
	if len(contacts.callers) != 1 || contacts.callers[0] != 5 || contacts.texts[0] != "Alice" {
		t.Fatalf("expected contact save for 5, got %v %v", contacts.callers, contacts.texts)
	}
	if len(b.sent) != 1 || b.sent[0].Text != "saved" {
		t.Fatalf("expected saved reply, got %+v", b.sent)
	}
}

func TestHandleUpdateIgnoresEmptyMessages(t *testing.T) {
	client, b, dispatcher, contacts := newTestClient(t)

	client.handleUpdate(context.Background(), nil, &models.Update{
		Message: &models.Message{From: &models.User{ID: 5}, Chat: models.Chat{ID: 5}},
	})
	client.handleUpdate(context.Background(), nil, &models.Update{})
	client.handleUpdate(context.Background(), nil, nil)

	if len(dispatcher.requests) != 0 || len(contacts.texts) != 0 || len(b.sent) != 0 {
		t.Fatalf("expected no activity, got dispatch=%d contacts=%d sent=%d", len(dispatcher.requests), len(contacts.texts), len(b.sent))
	}
}

func TestHandleUpdateRoutesButtons(t *testing.T) {
	client, b, dispatcher, _ := newTestClient(t)
	dispatcher.resp = router.Response{
		Text:    "menu",
		Buttons: [][]router.Button{{{Label: "📊 Status", Data: "status"}}},
	}

	client.handleUpdate(context.Background(), nil, &models.Update{
		CallbackQuery: &models.CallbackQuery{
			ID:   "cb-1",
			From: models.User{ID: 12},
			Data: "reboot",
			Message: models.MaybeInaccessibleMessage{
				Type:    models.MaybeInaccessibleMessageTypeMessage,
				Message: &models.Message{Chat: models.Chat{ID: 22}},
			},
		},
	})

	if len(dispatcher.requests) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(dispatcher.requests))
	}
	req := dispatcher.requests[0]
	if req.CallerID != 12 || req.Command != "reboot" || req.Source != router.SourceButton {
		t.Fatalf("unexpected request: %+v", req)
	}
	if len(b.answered) != 1 || b.answered[0].CallbackQueryID != "cb-1" {
		t.Fatalf("expected callback to be answered, got %+v", b.answered)
	}
	if len(b.sent) != 1 || b.sent[0].ChatID != int64(22) {
		t.Fatalf("expected reply to chat 22, got %+v", b.sent)
	}

	markup, ok := b.sent[0].ReplyMarkup.(*models.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("expected inline keyboard, got %T", b.sent[0].ReplyMarkup)
	}
	if len(markup.InlineKeyboard) != 1 || markup.InlineKeyboard[0][0].CallbackData != "status" {
		t.Fatalf("unexpected keyboard: %+v", markup.InlineKeyboard)
	}
}

func TestHandleUpdateLogsSendFailures(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	b := &fakeBot{sendErr: errors.New("network down")}
	client := &Client{
		bot:        b,
		dispatcher: &fakeDispatcher{resp: router.Response{Text: "pong"}},
		contacts:   &fakeContacts{},
		logger:     logrus.NewEntry(hookLogger),
	}

	update := &models.Update{
		Message: &models.Message{From: &models.User{ID: 1}, Chat: models.Chat{ID: 1}, Text: "/ping"},
	}
	client.handleUpdate(context.Background(), nil, update)
	client.handleUpdate(context.Background(), nil, update)

	if len(b.sent) != 2 {
		t.Fatalf("expected later updates to be handled after a send failure, got %d sends", len(b.sent))
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "telegram_send_failed" {
		t.Fatalf("expected telegram_send_failed log entry, got %v", entry)
	}
}

func TestExtractUpdateMeta(t *testing.T) {
	tests := []struct {
		name   string
		update *models.Update
		want   updateMeta
	}{
		{
			name: "message",
			update: &models.Update{
				Message: &models.Message{
					From: &models.User{ID: 10},
					Chat: models.Chat{ID: 20},
					Text: " hello ",
				},
			},
			want: updateMeta{userID: 10, chatID: 20, text: "hello", updateType: "message"},
		},
		{
			name: "message without sender",
			update: &models.Update{
				Message: &models.Message{
					Chat: models.Chat{ID: 30},
					Text: "/ping",
				},
			},
			want: updateMeta{chatID: 30, text: "/ping", updateType: "message"},
		},
		{
			name: "callback query",
			update: &models.Update{
				CallbackQuery: &models.CallbackQuery{
					ID:   "q",
					From: models.User{ID: 12},
					Data: "choice",
					Message: models.MaybeInaccessibleMessage{
						Type: models.MaybeInaccessibleMessageTypeMessage,
						Message: &models.Message{
							Chat: models.Chat{ID: 22},
						},
					},
				},
			},
			want: updateMeta{userID: 12, chatID: 22, text: "choice", callbackID: "q", updateType: "callback_query"},
		},
		{
			name:   "unknown",
			update: &models.Update{},
			want:   updateMeta{updateType: "unknown"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := extractUpdateMeta(tt.update)
			if got != tt.want {
				t.Fatalf("extractUpdateMeta() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestUpdateMetaFallsBackToChatID(t *testing.T) {
	meta := updateMeta{chatID: 30}
	if meta.callerID() != 30 {
		t.Fatalf("expected caller id to fall back to chat id, got %d", meta.callerID())
	}

	meta = updateMeta{userID: 12}
	if meta.replyChatID() != 12 {
		t.Fatalf("expected reply chat to fall back to user id, got %d", meta.replyChatID())
	}
}

func TestHandleUpdateLogsUpdate(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	client := &Client{
		bot:        &fakeBot{},
		dispatcher: &fakeDispatcher{},
		contacts:   &fakeContacts{},
		logger:     logrus.NewEntry(hookLogger),
	}

	client.handleUpdate(context.Background(), nil, &models.Update{
		Message: &models.Message{
			From: &models.User{ID: 99},
			Chat: models.Chat{ID: 199},
			Text: "ping",
		},
	})

	entry := hook.AllEntries()[0]
	if entry.Data["event"] != "telegram_update" {
		t.Fatalf("expected event=telegram_update, got %v", entry.Data["event"])
	}
	if entry.Data["user_id"] != int64(99) || entry.Data["chat_id"] != int64(199) {
		t.Fatalf("expected user_id=99 and chat_id=199, got user_id=%v chat_id=%v", entry.Data["user_id"], entry.Data["chat_id"])
	}
	if entry.Data["text"] != "ping" {
		t.Fatalf("expected text=ping, got %v", entry.Data["text"])
	}
	if entry.Data["update_type"] != "message" {
		t.Fatalf("expected update_type=message, got %v", entry.Data["update_type"])
	}
}
