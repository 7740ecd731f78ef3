package commands

import (
	"bond-alert-bot/internal/price"
	"bond-alert-bot/internal/types"
	"bond-alert-bot/lib/helpers"
	"bond-alert-bot/lib/translation"
	"context"

	log "github.com/sirupsen/logrus"
)

func isUnresolved(err error) bool {
	return price.IsUnresolved(err)
}

// Price answers /price <ISIN> with the latest quote
func (h *Handler) Price(ctx context.Context, args string) (Reply, error) {
	log.Debugf("processing command /price with argument: %s", args)

	isin, err := requireISIN("price", args)
	if err != nil {
		return Reply{}, err
	}
	return h.currentPrice(ctx, isin)
}

func (h *Handler) currentPrice(ctx context.Context, isin string) (Reply, error) {
	quote, err := h.prices.FetchPrice(ctx, isin)
	if err != nil {
		return Reply{}, err
	}

	return Reply{
		Text: priceText(quote),
		Buttons: [][]Button{{
			{Text: translation.Translate("button_refresh"), Data: Callback{Action: ActionCurrentPrice, Scope: ScopeISIN, Arg: isin}.Encode()},
		}},
	}, nil
}

func priceText(q *types.PriceQuote) string {
	label := q.Label
	if label == "" {
		label = q.ISIN
	}
	text := bold(helpers.EscapeMarkdownV2(label)) + "\n" +
		translation.Markdown("price_isin_line", q.ISIN) + "\n" +
		translation.Markdown("price_value_line", helpers.FormatPrice(q.Price))
	if q.Currency != "" {
		text += " " + helpers.EscapeMarkdownV2(q.Currency)
	}
	if n := len(q.Points); n > 0 && !q.Points[n-1].Time.IsZero() {
		text += "\n" + translation.Markdown("price_time_line", q.Points[n-1].Time.Format("02/01/2006 15:04"))
	}
	return text
}
