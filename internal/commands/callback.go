package commands

import (
	"bond-alert-bot/lib/translation"
	"context"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrInvalidCallback is returned for callback data that does not decode to a known action
var ErrInvalidCallback = errors.New("invalid callback data")

type CallbackAction string

const (
	ActionList         CallbackAction = "list"
	ActionPreDelete    CallbackAction = "pre_delete"
	ActionDelete       CallbackAction = "delete"
	ActionCancelDelete CallbackAction = "cancel_delete"
	ActionCurrentPrice CallbackAction = "current_price"
)

type CallbackScope string

const (
	ScopeSingle CallbackScope = "single"
	ScopeAll    CallbackScope = "all"
	ScopeISIN   CallbackScope = "isin"
)

// Callback is the decoded data of an inline keyboard button: action:scope[:arg]
type Callback struct {
	Action CallbackAction
	Scope  CallbackScope
	Arg    string
}

func (c Callback) Encode() string {
	data := string(c.Action) + ":" + string(c.Scope)
	if c.Arg != "" {
		data += ":" + c.Arg
	}
	return data
}

type callbackKey struct {
	action CallbackAction
	scope  CallbackScope
}

type callbackFunc func(h *Handler, ctx context.Context, userID int64, arg string) (Reply, error)

var callbackHandlers = map[callbackKey]callbackFunc{
	{ActionList, ScopeAll}: func(h *Handler, ctx context.Context, userID int64, _ string) (Reply, error) {
		return h.ListAlerts(ctx, userID)
	},
	{ActionList, ScopeSingle}:      (*Handler).AlertDetail,
	{ActionPreDelete, ScopeSingle}: (*Handler).ConfirmDelete,
	{ActionPreDelete, ScopeAll}: func(h *Handler, ctx context.Context, userID int64, _ string) (Reply, error) {
		return h.ConfirmDeleteAll(ctx, userID)
	},
	{ActionDelete, ScopeSingle}: (*Handler).DeleteAlert,
	{ActionDelete, ScopeAll}: func(h *Handler, ctx context.Context, userID int64, _ string) (Reply, error) {
		return h.DeleteAllAlerts(ctx, userID)
	},
	{ActionCancelDelete, ScopeSingle}: (*Handler).AlertDetail,
	{ActionCancelDelete, ScopeAll}: func(*Handler, context.Context, int64, string) (Reply, error) {
		return Reply{Text: translation.Markdown("delete_cancelled")}, nil
	},
	{ActionCurrentPrice, ScopeISIN}: func(h *Handler, ctx context.Context, _ int64, isin string) (Reply, error) {
		return h.currentPrice(ctx, isin)
	},
}

// ParseCallback decodes button data, rejecting unknown actions, scopes and
// combinations, and malformed arguments.
func ParseCallback(data string) (Callback, error) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) < 2 {
		return Callback{}, errors.Wrap(ErrInvalidCallback, data)
	}

	c := Callback{Action: CallbackAction(parts[0]), Scope: CallbackScope(parts[1])}
	if len(parts) == 3 {
		c.Arg = parts[2]
	}

	if _, ok := callbackHandlers[callbackKey{c.Action, c.Scope}]; !ok {
		return Callback{}, errors.Wrap(ErrInvalidCallback, data)
	}

	switch c.Scope {
	case ScopeAll:
		if c.Arg != "" {
			return Callback{}, errors.Wrap(ErrInvalidCallback, data)
		}
	case ScopeSingle:
		if c.Arg == "" {
			return Callback{}, errors.Wrap(ErrInvalidCallback, data)
		}
	case ScopeISIN:
		isin, err := ParseISIN(c.Arg)
		if err != nil {
			return Callback{}, errors.Wrap(ErrInvalidCallback, data)
		}
		c.Arg = isin
	}

	return c, nil
}

// HandleCallback runs the action encoded in a button press of userID
func (h *Handler) HandleCallback(ctx context.Context, userID int64, data string) (Reply, error) {
	c, err := ParseCallback(data)
	if err != nil {
		log.Warnf("Rejected callback from user %d: %v", userID, err)
		return Reply{}, err
	}

	log.Debugf("processing callback %s for user %d", c.Encode(), userID)
	return callbackHandlers[callbackKey{c.Action, c.Scope}](h, ctx, userID, c.Arg)
}
