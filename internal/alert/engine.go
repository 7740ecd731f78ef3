package alert

import (
	"bond-alert-bot/internal/price"
	"bond-alert-bot/internal/types"
	"bond-alert-bot/lib/helpers"
	"bond-alert-bot/lib/translation"
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 30

// AlertStore is the part of the store the engine reads and writes
type AlertStore interface {
	ListAllAlerts(ctx context.Context) ([]types.Alert, error)
	UpdateAlert(ctx context.Context, id string, condition types.Condition, lastCheckPrice float64) error
}

type PriceFetcher interface {
	FetchPrice(ctx context.Context, isin string) (*types.PriceQuote, error)
}

// Notifier delivers a text message to a user
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// CycleObserver receives the outcome of every cycle, e.g. for metrics
type CycleObserver interface {
	ObserveCycle(report types.CycleReport)
}

type EngineConfig struct {
	Store       AlertStore
	Prices      PriceFetcher
	Notifier    Notifier
	Observer    CycleObserver
	Concurrency int
}

// Engine refreshes prices for all alerts and notifies threshold crossings.
// It keeps no state between cycles.
type Engine struct {
	store       AlertStore
	prices      PriceFetcher
	notifier    Notifier
	observer    CycleObserver
	concurrency int
}

func NewEngine(c EngineConfig) *Engine {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return &Engine{
		store:       c.Store,
		prices:      c.Prices,
		notifier:    c.Notifier,
		observer:    c.Observer,
		concurrency: c.Concurrency,
	}
}

type fetchResult struct {
	isin  string
	quote *types.PriceQuote
	err   error
}

// RunCycle evaluates every stored alert once. Failures of single instruments
// or alerts are logged and counted, only a failure to load the alerts is
// returned.
func (e *Engine) RunCycle(ctx context.Context) (types.CycleReport, error) {
	start := time.Now()
	var report types.CycleReport

	log.Info("🔄 Checking alerts...")

	alerts, err := e.store.ListAllAlerts(ctx)
	if err != nil {
		return report, errors.Wrap(err, "could not load alerts")
	}
	report.Alerts = len(alerts)
	if len(alerts) == 0 {
		log.Debug("No alerts to check")
		e.finish(&report, start)
		return report, nil
	}

	isins := lo.Uniq(lo.Map(alerts, func(a types.Alert, _ int) string { return a.ISIN }))
	report.Instruments = len(isins)

	results := e.fetchAll(ctx, isins)

	prices := make(map[string]float64, len(results))
	for _, r := range results {
		switch {
		case r.err == nil:
			prices[r.isin] = r.quote.Price
			report.Resolved++
		case price.IsUnresolved(r.err):
			log.Warnf("⚠️ No price for %s: %v", r.isin, r.err)
			report.Unresolved++
		default:
			log.Errorf("❌ Failed to fetch price for %s: %v", r.isin, r.err)
			report.Failed++
		}
	}

	log.WithFields(log.Fields{
		"instruments": report.Instruments,
		"resolved":    report.Resolved,
		"unresolved":  report.Unresolved,
		"failed":      report.Failed,
	}).Info("Price refresh completed")

	for _, a := range alerts {
		e.evaluate(ctx, a, prices, &report)
	}

	e.finish(&report, start)

	log.WithFields(log.Fields{
		"alerts":        report.Alerts,
		"notified":      report.Notified,
		"notify_failed": report.NotifyFailed,
		"updated":       report.Updated,
		"update_failed": report.UpdateFailed,
		"skipped":       report.Skipped,
		"duration":      report.Duration,
	}).Info("✅ Alert check completed.")

	return report, nil
}

// fetchAll fetches every isin once with at most e.concurrency requests in flight
func (e *Engine) fetchAll(ctx context.Context, isins []string) []fetchResult {
	results := make([]fetchResult, len(isins))

	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for i, isin := range isins {
		i, isin := i, isin
		g.Go(func() error {
			results[i] = e.fetchOne(ctx, isin)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *Engine) fetchOne(ctx context.Context, isin string) (res fetchResult) {
	res.isin = isin
	defer func() {
		if r := recover(); r != nil {
			res.quote = nil
			res.err = errors.Errorf("panic while fetching %s: %v", isin, r)
		}
	}()

	quote, err := e.prices.FetchPrice(ctx, isin)
	if err == nil && quote == nil {
		err = errors.Wrap(price.ErrNoPriceData, isin)
	}
	res.quote, res.err = quote, err
	return res
}

func (e *Engine) evaluate(ctx context.Context, a types.Alert, prices map[string]float64, report *types.CycleReport) {
	current, ok := prices[a.ISIN]
	if !ok {
		report.Skipped++
		return
	}

	next := Classify(current, a.TargetPrice)

	log.Debugf("🔍 Checking alert ID: %s | ISIN: %s | Target: %v | Current: %v | %s -> %s",
		a.ID, a.ISIN, a.TargetPrice, current, a.LastCondition, next)

	// rows without a valid previous condition are refreshed without notifying
	if a.LastCondition.Valid() && ShouldNotify(a.LastCondition, next) {
		if err := e.notifier.Notify(ctx, a.UserID, NotificationMessage(a, current, next)); err != nil {
			log.Errorf("❌ Failed to send alert notification for %s to user %d: %v", a.ID, a.UserID, err)
			report.NotifyFailed++
		} else {
			log.Infof("✅ Alert notification sent to user %d for %s", a.UserID, a.ISIN)
			report.Notified++
		}
	}

	if err := e.store.UpdateAlert(ctx, a.ID, next, current); err != nil {
		log.Errorf("❌ Failed to update alert %s: %v", a.ID, err)
		report.UpdateFailed++
		return
	}
	report.Updated++
}

func (e *Engine) finish(report *types.CycleReport, start time.Time) {
	report.Duration = time.Since(start)
	if e.observer != nil {
		e.observer.ObserveCycle(*report)
	}
}

// NotificationMessage renders the MarkdownV2 text sent when an alert crosses its target
func NotificationMessage(a types.Alert, current float64, next types.Condition) string {
	msgID := "alert_crossed_above"
	if next == types.ConditionBelow {
		msgID = "alert_crossed_below"
	}

	label := a.Label
	if label == "" {
		label = a.ISIN
	}

	return translation.Markdown(msgID, label, a.ISIN, helpers.FormatPrice(a.TargetPrice), helpers.FormatPrice(current))
}
