package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotConfig configuration of the bot
type BotConfig struct {
	Token          string
	Debug          bool
	UpdatesTimeout int
}

// sender is the part of *tgbotapi.BotAPI the bot talks through
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Metrics counts handled traffic
type Metrics interface {
	MessageHandled()
	CommandProcessed(command string)
}

// Message a telegram message struct
type Message struct {
	ChatID    int64
	MessageID int
	Text      string
}

// DeliveryError is returned when a message could not be delivered to a chat
type DeliveryError struct {
	ChatID int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("could not deliver message to chat %d: %v", e.ChatID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Command is one of the commands the bot answers to
type Command string

const (
	CommandStart        Command = "start"
	CommandHelp         Command = "help"
	CommandPrice        Command = "price"
	CommandAlert        Command = "alert"
	CommandAlerts       Command = "alerts"
	CommandDeleteAlerts Command = "delete_alerts"
	CommandChart        Command = "chart"
)

// Commands in the order they appear in the Telegram menu
var Commands = []Command{
	CommandStart,
	CommandHelp,
	CommandPrice,
	CommandAlert,
	CommandAlerts,
	CommandDeleteAlerts,
	CommandChart,
}
