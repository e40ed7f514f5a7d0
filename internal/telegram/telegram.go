// Package telegram hosts the Telegram client and turns updates into router
// invocations.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"server_monitor_bot/internal/config"
	"server_monitor_bot/internal/logging"
	"server_monitor_bot/internal/router"
)

type botAPI interface {
	Start(ctx context.Context)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// Dispatcher runs a gated command invocation.
type Dispatcher interface {
	Dispatch(ctx context.Context, req router.Request) router.Response
}

// ContactSaver handles free text that is not a command.
type ContactSaver interface {
	SaveContact(ctx context.Context, callerID int64, text string) router.Response
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"callback_query",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}
)

// Client wraps the Telegram bot instance and routes updates to the command
// router.
type Client struct {
	bot        botAPI
	dispatcher Dispatcher
	contacts   ContactSaver
	logger     *logrus.Entry
}

// NewClient initializes the Telegram bot with long polling.
func NewClient(cfg config.Config, dispatcher Dispatcher, contacts ContactSaver, logger *logrus.Entry) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if dispatcher == nil {
		return nil, errors.New("command dispatcher is required")
	}
	if contacts == nil {
		return nil, errors.New("contact saver is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	client := &Client{
		dispatcher: dispatcher,
		contacts:   contacts,
		logger:     logger,
	}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(client.handleUpdate),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}
	client.bot = tgBot

	return client, nil
}

// Start begins receiving updates via long polling until the context is canceled.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

type updateMeta struct {
	userID     int64
	chatID     int64
	text       string
	callbackID string
	updateType string
}

// callerID falls back to the chat id, which equals the user id in private
// chats.
func (m updateMeta) callerID() int64 {
	if m.userID != 0 {
		return m.userID
	}
	return m.chatID
}

func (m updateMeta) replyChatID() int64 {
	if m.chatID != 0 {
		return m.chatID
	}
	return m.userID
}

func (c *Client) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil {
		return
	}

	meta := extractUpdateMeta(update)
	c.logUpdate(meta)

	switch meta.updateType {
	case "message":
		if meta.text == "" {
			return
		}
		c.reply(ctx, meta, c.handleText(ctx, meta))
	case "callback_query":
		resp := c.dispatcher.Dispatch(ctx, router.Request{
			CallerID: meta.callerID(),
			ChatID:   meta.replyChatID(),
			Command:  meta.text,
			Source:   router.SourceButton,
		})
		c.answerCallback(ctx, meta)
		c.reply(ctx, meta, resp)
	}
}

func (c *Client) handleText(ctx context.Context, meta updateMeta) router.Response {
	if name, ok := router.ParseCommand(meta.text); ok {
		return c.dispatcher.Dispatch(ctx, router.Request{
			CallerID: meta.callerID(),
			ChatID:   meta.replyChatID(),
			Command:  name,
			Source:   router.SourceCommand,
		})
	}
	return c.contacts.SaveContact(ctx, meta.callerID(), meta.text)
}

func (c *Client) reply(ctx context.Context, meta updateMeta, resp router.Response) {
	chat := meta.replyChatID()
	if chat == 0 || resp.Text == "" {
		return
	}

	params := &bot.SendMessageParams{
		ChatID: chat,
		Text:   resp.Text,
	}
	if markup := inlineKeyboard(resp.Buttons); markup != nil {
		params.ReplyMarkup = markup
	}

	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "telegram_send_failed",
			"chat_id": chat,
		}).WithError(err).Warn("failed to send reply")
	}
}

func (c *Client) answerCallback(ctx context.Context, meta updateMeta) {
	if meta.callbackID == "" {
		return
	}

	if _, err := c.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: meta.callbackID,
	}); err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "telegram_callback_answer_failed",
			"user_id": meta.userID,
		}).WithError(err).Warn("failed to answer callback query")
	}
}

func (c *Client) logUpdate(meta updateMeta) {
	fields := logging.Fields{
		"event":       "telegram_update",
		"update_type": meta.updateType,
	}

	if meta.text != "" {
		fields["text"] = meta.text
	}
	if meta.userID != 0 {
		fields["user_id"] = meta.userID
	}
	if meta.chatID != 0 {
		fields["chat_id"] = meta.chatID
	}

	c.logger.WithFields(fields).Info("telegram update received")
}

func inlineKeyboard(rows [][]router.Button) *models.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}

	keyboard := make([][]models.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]models.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, models.InlineKeyboardButton{
				Text:         b.Label,
				CallbackData: b.Data,
			})
		}
		keyboard = append(keyboard, buttons)
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: keyboard}
}

func extractUpdateMeta(update *models.Update) updateMeta {
	switch {
	case update.Message != nil:
		return updateMeta{
			userID:     userID(update.Message.From),
			chatID:     chatID(&update.Message.Chat),
			text:       strings.TrimSpace(update.Message.Text),
			updateType: "message",
		}
	case update.CallbackQuery != nil:
		return updateMeta{
			userID:     userID(&update.CallbackQuery.From),
			chatID:     messageChatID(update.CallbackQuery.Message),
			text:       strings.TrimSpace(update.CallbackQuery.Data),
			callbackID: update.CallbackQuery.ID,
			updateType: "callback_query",
		}
	default:
		return updateMeta{updateType: "unknown"}
	}
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}

func chatID(chat *models.Chat) int64 {
	if chat == nil {
		return 0
	}

	return chat.ID
}

func messageChatID(msg models.MaybeInaccessibleMessage) int64 {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0
		}
		return chatID(&msg.Message.Chat)
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage == nil {
			return 0
		}
		return chatID(&msg.InaccessibleMessage.Chat)
	default:
		return 0
	}
}
