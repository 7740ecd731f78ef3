package commands

import (
	"bond-alert-bot/internal/alert"
	"bond-alert-bot/internal/database"
	"bond-alert-bot/internal/types"
	"bond-alert-bot/lib/helpers"
	"bond-alert-bot/lib/translation"
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// ErrAlertNotFound is returned when an alert does not exist or belongs to another user
var ErrAlertNotFound = errors.New("alert not found")

// CreateAlert answers /alert <ISIN> <price>
func (h *Handler) CreateAlert(ctx context.Context, userID int64, args string) (Reply, error) {
	log.Debugf("processing command /alert with argument: %s", args)

	isin, target, err := parseAlertArgs(args)
	if err != nil {
		return Reply{}, err
	}

	a, err := h.RegisterAlert(ctx, userID, isin, target)
	if err != nil {
		return Reply{}, err
	}

	return Reply{
		Text: translation.Markdown("alert_created",
			labelOf(*a), a.ISIN, helpers.FormatPrice(a.TargetPrice), helpers.FormatPrice(a.LastCheckPrice)),
		Buttons: [][]Button{{
			{Text: translation.Translate("button_my_alerts"), Data: Callback{Action: ActionList, Scope: ScopeAll}.Encode()},
		}},
	}, nil
}

// RegisterAlert stores a new alert once the ISIN resolves to a price. The
// starting condition is the current price relative to target, so the first
// evaluation only notifies on a real crossing.
func (h *Handler) RegisterAlert(ctx context.Context, userID int64, isin string, target float64) (*types.Alert, error) {
	quote, err := h.prices.FetchPrice(ctx, isin)
	if err != nil {
		return nil, err
	}

	a := &types.Alert{
		UserID:         userID,
		ISIN:           isin,
		Label:          quote.Label,
		TargetPrice:    target,
		LastCondition:  alert.Classify(quote.Price, target),
		LastCheckPrice: quote.Price,
	}

	if err := h.store.CreateAlert(ctx, a); err != nil {
		if errors.Is(err, database.ErrDuplicateAlert) {
			return nil, ErrAlertExists
		}
		return nil, errors.Wrapf(err, "could not save alert for %s", isin)
	}

	log.Infof("Alert %s created for user %d: %s at %v", a.ID, userID, isin, target)
	return a, nil
}

// SortAlerts orders alerts by ISIN ascending, then by target price descending
func SortAlerts(alerts []types.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].ISIN != alerts[j].ISIN {
			return alerts[i].ISIN < alerts[j].ISIN
		}
		return alerts[i].TargetPrice > alerts[j].TargetPrice
	})
}

// ListAlerts answers /alerts with one button per alert
func (h *Handler) ListAlerts(ctx context.Context, userID int64) (Reply, error) {
	alerts, err := h.store.ListAlertsByUser(ctx, userID)
	if err != nil {
		return Reply{}, errors.Wrapf(err, "could not list alerts of user %d", userID)
	}

	if len(alerts) == 0 {
		return Reply{Text: translation.Markdown("no_active_alerts")}, nil
	}

	SortAlerts(alerts)

	var list strings.Builder
	list.WriteString(bold(translation.Markdown("active_alerts_header", len(alerts))))
	list.WriteString("\n")

	buttons := lo.Map(alerts, func(a types.Alert, _ int) []Button {
		list.WriteString("\n")
		list.WriteString(translation.Markdown("alert_list_item", a.ISIN, labelOf(a), helpers.FormatPrice(a.TargetPrice)))
		return []Button{{
			Text: translation.Translate("alert_button", a.ISIN, helpers.FormatPrice(a.TargetPrice)),
			Data: Callback{Action: ActionList, Scope: ScopeSingle, Arg: a.ID}.Encode(),
		}}
	})
	buttons = append(buttons, []Button{{
		Text: translation.Translate("button_delete_all"),
		Data: Callback{Action: ActionPreDelete, Scope: ScopeAll}.Encode(),
	}})

	return Reply{Text: list.String(), Buttons: buttons}, nil
}

// AlertDetail shows one alert of the user with its actions
func (h *Handler) AlertDetail(ctx context.Context, userID int64, id string) (Reply, error) {
	a, err := h.ownAlert(ctx, userID, id)
	if err != nil {
		return Reply{}, err
	}

	text := bold(helpers.EscapeMarkdownV2(labelOf(*a))) + "\n" +
		translation.Markdown("alert_detail",
			a.ISIN,
			helpers.FormatPrice(a.TargetPrice),
			helpers.FormatPrice(a.LastCheckPrice),
			conditionText(a.LastCondition),
			helpers.FormatAge(a.CreatedAt),
		)

	return Reply{
		Text: text,
		Buttons: [][]Button{
			{{Text: translation.Translate("button_current_price"), Data: Callback{Action: ActionCurrentPrice, Scope: ScopeISIN, Arg: a.ISIN}.Encode()}},
			{{Text: translation.Translate("button_delete"), Data: Callback{Action: ActionPreDelete, Scope: ScopeSingle, Arg: a.ID}.Encode()}},
			{{Text: translation.Translate("button_back"), Data: Callback{Action: ActionList, Scope: ScopeAll}.Encode()}},
		},
	}, nil
}

// ConfirmDelete asks before removing a single alert
func (h *Handler) ConfirmDelete(ctx context.Context, userID int64, id string) (Reply, error) {
	a, err := h.ownAlert(ctx, userID, id)
	if err != nil {
		return Reply{}, err
	}

	return Reply{
		Text: translation.Markdown("confirm_delete_single", a.ISIN, helpers.FormatPrice(a.TargetPrice)),
		Buttons: [][]Button{{
			{Text: translation.Translate("button_yes"), Data: Callback{Action: ActionDelete, Scope: ScopeSingle, Arg: a.ID}.Encode()},
			{Text: translation.Translate("button_no"), Data: Callback{Action: ActionCancelDelete, Scope: ScopeSingle, Arg: a.ID}.Encode()},
		}},
	}, nil
}

// DeleteAlert removes one alert of the user and shows the remaining ones
func (h *Handler) DeleteAlert(ctx context.Context, userID int64, id string) (Reply, error) {
	a, err := h.ownAlert(ctx, userID, id)
	if err != nil {
		return Reply{}, err
	}

	if err := h.store.DeleteAlert(ctx, a.ID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return Reply{}, ErrAlertNotFound
		}
		return Reply{}, errors.Wrapf(err, "could not delete alert %s", a.ID)
	}
	log.Infof("Alert %s deleted by user %d", a.ID, userID)

	list, err := h.ListAlerts(ctx, userID)
	if err != nil {
		return Reply{}, err
	}
	list.Text = translation.Markdown("alert_deleted") + "\n\n" + list.Text
	return list, nil
}

// ConfirmDeleteAll answers /delete_alerts with a yes/no question
func (h *Handler) ConfirmDeleteAll(ctx context.Context, userID int64) (Reply, error) {
	alerts, err := h.store.ListAlertsByUser(ctx, userID)
	if err != nil {
		return Reply{}, errors.Wrapf(err, "could not list alerts of user %d", userID)
	}
	if len(alerts) == 0 {
		return Reply{}, ErrNothingToDelete
	}

	return Reply{
		Text: translation.Markdown("confirm_delete_all", len(alerts)),
		Buttons: [][]Button{{
			{Text: translation.Translate("button_yes"), Data: Callback{Action: ActionDelete, Scope: ScopeAll}.Encode()},
			{Text: translation.Translate("button_no"), Data: Callback{Action: ActionCancelDelete, Scope: ScopeAll}.Encode()},
		}},
	}, nil
}

// DeleteAllAlerts removes every alert of the user. Zero alerts yields
// ErrNothingToDelete and leaves the store untouched.
func (h *Handler) DeleteAllAlerts(ctx context.Context, userID int64) (Reply, error) {
	n, err := h.store.DeleteAllAlertsByUser(ctx, userID)
	if err != nil {
		return Reply{}, errors.Wrapf(err, "could not delete alerts of user %d", userID)
	}
	if n == 0 {
		return Reply{}, ErrNothingToDelete
	}

	log.Infof("%d alerts deleted by user %d", n, userID)
	return Reply{Text: translation.Markdown("alerts_deleted", n)}, nil
}

func (h *Handler) ownAlert(ctx context.Context, userID int64, id string) (*types.Alert, error) {
	a, err := h.store.FindAlertByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrAlertNotFound
	} else if err != nil {
		return nil, errors.Wrapf(err, "could not load alert %s", id)
	}
	if a.UserID != userID {
		return nil, ErrAlertNotFound
	}
	return a, nil
}
