package telegram

import (
	"bond-alert-bot/internal/commands"
	"bond-alert-bot/internal/types"
	"bond-alert-bot/lib/translation"
	"context"
	"runtime/debug"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const parseMode = tgbotapi.ModeMarkdownV2

// Bot telegram interaction client
type Bot struct {
	api      sender
	bot      *tgbotapi.BotAPI
	Config   BotConfig
	handler  *commands.Handler
	metrics  Metrics
	commands map[Command]commandFunc
}

type commandFunc func(ctx context.Context, m *tgbotapi.Message) (commands.Reply, error)

// NewBot creates new telegram bot
func NewBot(c BotConfig, handler *commands.Handler, metrics Metrics) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(c.Token)
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}

	bot.Debug = c.Debug
	log.Infof("Authorized on account %s", bot.Self.UserName)

	b := newBot(bot, c, handler, metrics)
	b.bot = bot
	return b, nil
}

func newBot(api sender, c BotConfig, handler *commands.Handler, metrics Metrics) *Bot {
	b := &Bot{
		api:     api,
		Config:  c,
		handler: handler,
		metrics: metrics,
	}

	b.commands = map[Command]commandFunc{
		CommandStart: func(ctx context.Context, m *tgbotapi.Message) (commands.Reply, error) {
			return handler.Start(ctx, userOf(m))
		},
		CommandHelp: func(context.Context, *tgbotapi.Message) (commands.Reply, error) {
			return handler.Help(), nil
		},
		CommandPrice: func(ctx context.Context, m *tgbotapi.Message) (commands.Reply, error) {
			return handler.Price(ctx, m.CommandArguments())
		},
		CommandAlert: func(ctx context.Context, m *tgbotapi.Message) (commands.Reply, error) {
			return handler.CreateAlert(ctx, m.From.ID, m.CommandArguments())
		},
		CommandAlerts: func(ctx context.Context, m *tgbotapi.Message) (commands.Reply, error) {
			return handler.ListAlerts(ctx, m.From.ID)
		},
		CommandDeleteAlerts: func(ctx context.Context, m *tgbotapi.Message) (commands.Reply, error) {
			return handler.ConfirmDeleteAll(ctx, m.From.ID)
		},
		CommandChart: func(ctx context.Context, m *tgbotapi.Message) (commands.Reply, error) {
			return handler.Chart(ctx, m.CommandArguments())
		},
	}

	return b
}

// GetUpdatesChannel gets new updates updates
func (b *Bot) GetUpdatesChannel() (tgbotapi.UpdatesChannel, error) {
	if b.bot == nil {
		return nil, errors.New("bot is not connected")
	}
	updatesConfig := tgbotapi.NewUpdate(0)
	if b.Config.UpdatesTimeout > 0 {
		updatesConfig.Timeout = b.Config.UpdatesTimeout
	}
	return b.bot.GetUpdatesChan(updatesConfig), nil
}

// StopReceivingUpdates closes the updates channel
func (b *Bot) StopReceivingUpdates() {
	if b.bot != nil {
		b.bot.StopReceivingUpdates()
	}
}

// RegisterMenu publishes the command list shown by Telegram clients
func (b *Bot) RegisterMenu() error {
	menu := make([]tgbotapi.BotCommand, 0, len(Commands))
	for _, c := range Commands {
		menu = append(menu, tgbotapi.BotCommand{
			Command:     string(c),
			Description: translation.Translate("menu_" + string(c)),
		})
	}
	_, err := b.api.Request(tgbotapi.NewSetMyCommands(menu...))
	return errors.Wrap(err, "could not register command menu")
}

// Notify sends text to the private chat of userID
func (b *Bot) Notify(ctx context.Context, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return &DeliveryError{ChatID: userID, Err: err}
	}
	if err := b.SendMessage(Message{ChatID: userID, Text: text}, nil); err != nil {
		return &DeliveryError{ChatID: userID, Err: err}
	}
	return nil
}

// SendMessage sends a telegram message
func (b *Bot) SendMessage(m Message, buttons [][]commands.Button) error {
	msg := tgbotapi.NewMessage(m.ChatID, m.Text)
	msg.ReplyToMessageID = m.MessageID
	msg.DisableWebPagePreview = true
	msg.ParseMode = parseMode
	if markup := keyboard(buttons); markup != nil {
		msg.ReplyMarkup = *markup
	}
	_, err := b.api.Send(msg)
	return errors.Wrapf(err, "could not send message to chat %d", m.ChatID)
}

// EditMessage replaces text and buttons of a message sent by the bot
func (b *Bot) EditMessage(m Message, buttons [][]commands.Button) error {
	edit := tgbotapi.NewEditMessageText(m.ChatID, m.MessageID, m.Text)
	edit.ParseMode = parseMode
	edit.DisableWebPagePreview = true
	edit.ReplyMarkup = keyboard(buttons)
	_, err := b.api.Send(edit)
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return errors.Wrapf(err, "could not edit message %d", m.MessageID)
}

// SendPhoto sends a PNG with a MarkdownV2 caption
func (b *Bot) SendPhoto(m Message, png []byte, buttons [][]commands.Button) error {
	photo := tgbotapi.NewPhoto(m.ChatID, tgbotapi.FileBytes{
		Name:  "chart.png",
		Bytes: png,
	})
	photo.Caption = m.Text
	photo.ParseMode = parseMode
	photo.ReplyToMessageID = m.MessageID
	if markup := keyboard(buttons); markup != nil {
		photo.ReplyMarkup = *markup
	}
	_, err := b.api.Send(photo)
	return errors.Wrapf(err, "could not send photo to chat %d", m.ChatID)
}

// HandleUpdate processes Telegram updates
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Recovered from panic: %v\nStack trace: %s", r, debug.Stack())
		}
	}()

	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil && u.Message.IsCommand():
		b.handleCommand(ctx, u.Message)
	default:
		log.Debug("Received non-message or non-command")
	}
}

func (b *Bot) handleCommand(ctx context.Context, m *tgbotapi.Message) {
	if b.metrics != nil {
		b.metrics.MessageHandled()
	}

	command := Command(m.Command())
	log.Debugf("received command: %s", command)

	run, ok := b.commands[command]
	if !ok {
		command = CommandHelp
		run = b.commands[CommandHelp]
	}

	if _, err := b.api.Request(tgbotapi.NewChatAction(m.Chat.ID, tgbotapi.ChatTyping)); err != nil {
		log.Debugf("could not send chat action: %v", err)
	}

	reply, err := run(ctx, m)
	if err != nil {
		log.Errorf("command /%s failed: %v", command, err)
		reply = commands.ErrorReply(err)
	}

	out := Message{ChatID: m.Chat.ID, MessageID: m.MessageID, Text: reply.Text}
	if reply.Photo != nil {
		err = b.SendPhoto(out, reply.Photo, reply.Buttons)
	} else {
		err = b.SendMessage(out, reply.Buttons)
	}

	if err != nil {
		log.Errorf("Failed to send message: %v", err)
		return
	}
	if b.metrics != nil {
		b.metrics.CommandProcessed(string(command))
	}
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		log.Debugf("could not answer callback %s: %v", q.ID, err)
	}

	if q.From == nil {
		return
	}

	reply, err := b.handler.HandleCallback(ctx, q.From.ID, q.Data)
	if err != nil {
		log.Errorf("callback %q failed: %v", q.Data, err)
		reply = commands.ErrorReply(err)
	}

	switch {
	case q.Message == nil:
		err = b.SendMessage(Message{ChatID: q.From.ID, Text: reply.Text}, reply.Buttons)
	case reply.Photo != nil:
		err = b.SendPhoto(Message{ChatID: q.Message.Chat.ID, Text: reply.Text}, reply.Photo, reply.Buttons)
	default:
		err = b.EditMessage(Message{ChatID: q.Message.Chat.ID, MessageID: q.Message.MessageID, Text: reply.Text}, reply.Buttons)
	}
	if err != nil {
		log.Errorf("Failed to answer callback: %v", err)
	}
}

func keyboard(buttons [][]commands.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, row := range buttons {
		var r []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			r = append(r, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(r...))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func userOf(m *tgbotapi.Message) types.User {
	user := types.User{TelegramID: m.Chat.ID}
	if m.From == nil {
		return user
	}
	user.TelegramID = m.From.ID
	user.Name = strings.TrimSpace(m.From.FirstName + " " + m.From.LastName)
	if m.From.UserName != "" {
		handle := m.From.UserName
		user.Username = &handle
	}
	return user
}
