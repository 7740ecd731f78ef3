package commands

import (
	"bond-alert-bot/internal/types"
	"bond-alert-bot/lib/translation"
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrAlertExists is returned when the user already watches the same ISIN at the same price
	ErrAlertExists = errors.New("alert already exists")
	// ErrNothingToDelete is returned by DeleteAllAlerts when the user has no alerts.
	// It is a no-op signal, not a failure.
	ErrNothingToDelete = errors.New("nothing to delete")
)

// Store is the part of the alert store the commands use
type Store interface {
	UpsertUser(ctx context.Context, user types.User) (bool, error)
	CountUsers(ctx context.Context) (int64, error)
	CreateAlert(ctx context.Context, alert *types.Alert) error
	ListAlertsByUser(ctx context.Context, userID int64) ([]types.Alert, error)
	FindAlertByID(ctx context.Context, id string) (*types.Alert, error)
	DeleteAlert(ctx context.Context, id string) error
	DeleteAllAlertsByUser(ctx context.Context, userID int64) (int64, error)
}

type PriceFetcher interface {
	FetchPrice(ctx context.Context, isin string) (*types.PriceQuote, error)
}

// UserObserver is told the current number of users after a /start
type UserObserver interface {
	SetUsers(n int64)
}

// Button is one inline keyboard button carrying callback data
type Button struct {
	Text string
	Data string
}

// Reply is what a command answers with. Text is MarkdownV2, Photo is a PNG
// sent with Text as caption.
type Reply struct {
	Text    string
	Buttons [][]Button
	Photo   []byte
}

type Handler struct {
	store  Store
	prices PriceFetcher
	users  UserObserver
	charts *chartCache
}

func NewHandler(store Store, prices PriceFetcher, users UserObserver) *Handler {
	return &Handler{
		store:  store,
		prices: prices,
		users:  users,
		charts: newChartCache(5 * time.Minute),
	}
}

// Start registers or refreshes the user and greets them
func (h *Handler) Start(ctx context.Context, user types.User) (Reply, error) {
	created, err := h.store.UpsertUser(ctx, user)
	if err != nil {
		return Reply{}, errors.Wrapf(err, "could not save user %d", user.TelegramID)
	}

	if created {
		log.Infof("New user %d (%s)", user.TelegramID, user.Name)
		if h.users != nil {
			if n, err := h.store.CountUsers(ctx); err == nil {
				h.users.SetUsers(n)
			}
		}
	}

	name := user.Name
	if name == "" && user.Username != nil {
		name = *user.Username
	}

	return Reply{
		Text: translation.Markdown("start_greeting", name) + "\n\n" + helpMessage(),
	}, nil
}

func (h *Handler) Help() Reply {
	return Reply{Text: helpMessage()}
}

func helpMessage() string {
	return translation.Markdown("help_message")
}

// ErrorReply turns an error returned by a command into the message shown to the user
func ErrorReply(err error) Reply {
	var validation *ValidationError
	switch {
	case errors.As(err, &validation):
		return Reply{Text: validation.Message()}
	case errors.Is(err, ErrAlertExists):
		return Reply{Text: translation.Markdown("alert_exists")}
	case errors.Is(err, ErrNothingToDelete):
		return Reply{Text: translation.Markdown("nothing_to_delete")}
	case errors.Is(err, ErrAlertNotFound):
		return Reply{Text: translation.Markdown("alert_not_found")}
	case errors.Is(err, ErrInvalidCallback):
		return Reply{Text: translation.Markdown("invalid_action")}
	case isUnresolved(err):
		return Reply{Text: translation.Markdown("price_not_found")}
	}
	return Reply{Text: translation.Markdown("generic_error")}
}
