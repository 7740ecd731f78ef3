package telegram

import (
	"bond-alert-bot/internal/commands"
	"bond-alert-bot/internal/database"
	"bond-alert-bot/internal/price"
	"bond-alert-bot/internal/types"
	"bond-alert-bot/lib/translation"
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	translation.Configure("../../locales", "en")
	os.Exit(m.Run())
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	sendErr  error
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return tgbotapi.Message{}, s.sendErr
	}
	s.sent = append(s.sent, c)
	return tgbotapi.Message{MessageID: len(s.sent)}, nil
}

func (s *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

type fakePrices struct{}

func (fakePrices) FetchPrice(_ context.Context, isin string) (*types.PriceQuote, error) {
	if isin != "IT0005648149" {
		return nil, errors.Wrap(price.ErrInstrumentNotFound, isin)
	}
	return &types.PriceQuote{ISIN: isin, Label: "BTP Italia 2032", Price: 99.5}, nil
}

type countingMetrics struct {
	messages int
	commands map[string]int
}

func (m *countingMetrics) MessageHandled() {
	m.messages++
}

func (m *countingMetrics) CommandProcessed(command string) {
	if m.commands == nil {
		m.commands = map[string]int{}
	}
	m.commands[command]++
}

func newTestBot(t *testing.T) (*Bot, *fakeSender, *countingMetrics, database.Store) {
	store, err := database.Open("buntdb", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	api := &fakeSender{}
	metrics := &countingMetrics{}
	handler := commands.NewHandler(store, fakePrices{}, nil)
	return newBot(api, BotConfig{}, handler, metrics), api, metrics, store
}

func commandUpdate(userID int64, text string) tgbotapi.Update {
	command := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: userID, FirstName: "Anna", UserName: "anna_b"},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command)}},
	}}
}

func callbackUpdate(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{MessageID: 99, Chat: &tgbotapi.Chat{ID: userID}},
		Data:    data,
	}}
}

func TestNotify(t *testing.T) {
	bot, api, _, _ := newTestBot(t)

	require.NoError(t, bot.Notify(context.Background(), 42, "price crossed"))
	require.Len(t, api.sent, 1)
	msg := api.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "price crossed", msg.Text)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, msg.ParseMode)
	assert.Nil(t, msg.ReplyMarkup)
}

func TestNotify_DeliveryError(t *testing.T) {
	bot, api, _, _ := newTestBot(t)
	api.sendErr = errors.New("Forbidden: bot was blocked by the user")

	err := bot.Notify(context.Background(), 42, "price crossed")
	var delivery *DeliveryError
	require.True(t, errors.As(err, &delivery))
	assert.Equal(t, int64(42), delivery.ChatID)
	assert.Contains(t, err.Error(), "blocked by the user")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = bot.Notify(ctx, 42, "late")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRegisterMenu(t *testing.T) {
	bot, api, _, _ := newTestBot(t)

	require.NoError(t, bot.RegisterMenu())
	require.Len(t, api.requests, 1)
	menu := api.requests[0].(tgbotapi.SetMyCommandsConfig)
	require.Len(t, menu.Commands, len(Commands))
	assert.Equal(t, "start", menu.Commands[0].Command)
	assert.Equal(t, "delete_alerts", menu.Commands[5].Command)
	assert.Equal(t, "Create a price alert", menu.Commands[3].Description)
}

func TestHandleUpdate_Price(t *testing.T) {
	bot, api, metrics, _ := newTestBot(t)

	bot.HandleUpdate(context.Background(), commandUpdate(42, "/price it0005648149"))

	require.Len(t, api.requests, 1)
	assert.IsType(t, tgbotapi.ChatActionConfig{}, api.requests[0])

	require.Len(t, api.sent, 1)
	msg := api.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, 7, msg.ReplyToMessageID)
	assert.Contains(t, msg.Text, "BTP Italia 2032")

	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Equal(t, "current_price:isin:IT0005648149", *markup.InlineKeyboard[0][0].CallbackData)

	assert.Equal(t, 1, metrics.messages)
	assert.Equal(t, 1, metrics.commands["price"])
}

func TestHandleUpdate_CommandErrors(t *testing.T) {
	bot, api, metrics, store := newTestBot(t)
	ctx := context.Background()

	bot.HandleUpdate(ctx, commandUpdate(42, "/alert IT0005648149 99,5"))
	bot.HandleUpdate(ctx, commandUpdate(42, "/alert XS0000000009 99"))
	bot.HandleUpdate(ctx, commandUpdate(42, "/unknown"))

	require.Len(t, api.sent, 3)
	assert.Contains(t, api.sent[0].(tgbotapi.MessageConfig).Text, "is not a valid price")
	assert.Contains(t, api.sent[1].(tgbotapi.MessageConfig).Text, "No price available")
	assert.Contains(t, api.sent[2].(tgbotapi.MessageConfig).Text, "/delete\\_alerts")
	assert.Equal(t, 2, metrics.commands["alert"])
	assert.Equal(t, 1, metrics.commands["help"])

	alerts, err := store.ListAllAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestHandleUpdate_StartAndAlerts(t *testing.T) {
	bot, api, _, store := newTestBot(t)
	ctx := context.Background()

	bot.HandleUpdate(ctx, commandUpdate(42, "/start"))
	bot.HandleUpdate(ctx, commandUpdate(42, "/alert IT0005648149 100"))
	bot.HandleUpdate(ctx, commandUpdate(42, "/alerts"))

	n, err := store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.Len(t, api.sent, 3)
	assert.Contains(t, api.sent[0].(tgbotapi.MessageConfig).Text, "Hi Anna")
	list := api.sent[2].(tgbotapi.MessageConfig)
	markup := list.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.Len(t, markup.InlineKeyboard, 2)
	assert.True(t, strings.HasPrefix(*markup.InlineKeyboard[0][0].CallbackData, "list:single:"))
}

func TestHandleUpdate_CallbackEditsInPlace(t *testing.T) {
	bot, api, _, store := newTestBot(t)
	ctx := context.Background()

	bot.HandleUpdate(ctx, commandUpdate(42, "/alert IT0005648149 100"))
	api.sent = nil
	api.requests = nil

	bot.HandleUpdate(ctx, callbackUpdate(42, "pre_delete:all"))
	bot.HandleUpdate(ctx, callbackUpdate(42, "delete:all"))

	require.Len(t, api.requests, 2)
	answer := api.requests[0].(tgbotapi.CallbackConfig)
	assert.Equal(t, "cb1", answer.CallbackQueryID)

	require.Len(t, api.sent, 2)
	confirm := api.sent[0].(tgbotapi.EditMessageTextConfig)
	assert.Equal(t, 99, confirm.MessageID)
	assert.Contains(t, confirm.Text, "Delete all your 1 alerts?")
	require.NotNil(t, confirm.ReplyMarkup)
	assert.Equal(t, "delete:all", *confirm.ReplyMarkup.InlineKeyboard[0][0].CallbackData)

	done := api.sent[1].(tgbotapi.EditMessageTextConfig)
	assert.Contains(t, done.Text, "1 alerts deleted")
	assert.Nil(t, done.ReplyMarkup)

	alerts, err := store.ListAllAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestHandleUpdate_InvalidCallback(t *testing.T) {
	bot, api, _, _ := newTestBot(t)

	bot.HandleUpdate(context.Background(), callbackUpdate(42, "alert_select|1|100"))

	require.Len(t, api.sent, 1)
	assert.Contains(t, api.sent[0].(tgbotapi.EditMessageTextConfig).Text, "Unknown action")
}

func TestHandleUpdate_RecoversPanic(t *testing.T) {
	bot, _, _, _ := newTestBot(t)
	update := commandUpdate(42, "/help")
	update.Message.Chat = nil

	assert.NotPanics(t, func() { bot.HandleUpdate(context.Background(), update) })
}

func TestHandleUpdate_IgnoresPlainText(t *testing.T) {
	bot, api, metrics, _ := newTestBot(t)

	bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Text: "hello",
		Chat: &tgbotapi.Chat{ID: 42},
	}})

	assert.Empty(t, api.sent)
	assert.Zero(t, metrics.messages)
}
