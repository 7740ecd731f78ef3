package metrics

import (
	"bond-alert-bot/internal/types"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
)

const (
	namespace = "bond_alert"
	subsystem = "telegram_bot"
)

// Persister is the part of the store metrics are saved to and restored from
type Persister interface {
	SaveMetric(metricName, labelKey, labelValue string, value float64) error
	GetMetric(metricName string) (float64, error)
	GetMetricsWithLabels(metricName string) (map[string]map[string]float64, error)
}

type BotMetrics struct {
	CommandsProcessed  *prometheus.CounterVec
	MessagesHandled    prometheus.Counter
	UsersCount         prometheus.Gauge
	Cycles             prometheus.Counter
	SkippedCycles      prometheus.Counter
	PriceFetches       *prometheus.CounterVec
	NotificationsSent  prometheus.Counter
	NotificationsError prometheus.Counter
	UpdateFailures     prometheus.Counter
	CycleDuration      prometheus.Histogram
	Mutex              sync.Mutex
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// NewBotMetrics creates the collectors and registers them on reg
func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		CommandsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "commands_processed",
			Help:      "The total number of processed commands",
		}, []string{"command"}),
		MessagesHandled: counter("messages_handled", "The total number of handled messages"),
		UsersCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "users_count",
			Help:      "The number of users that started the bot",
		}),
		Cycles:        counter("alert_cycles", "The total number of completed alert cycles"),
		SkippedCycles: counter("alert_cycles_skipped", "Scheduled alert cycles skipped because one was still running"),
		PriceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "price_fetches",
			Help:      "Price fetches by outcome",
		}, []string{"outcome"}),
		NotificationsSent:  counter("notifications_sent", "Alert notifications delivered"),
		NotificationsError: counter("notifications_failed", "Alert notifications that could not be delivered"),
		UpdateFailures:     counter("alert_update_failures", "Alert state updates that could not be persisted"),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "alert_cycle_duration_seconds",
			Help:      "Duration of alert cycles",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
	}

	reg.MustRegister(
		m.CommandsProcessed,
		m.MessagesHandled,
		m.UsersCount,
		m.Cycles,
		m.SkippedCycles,
		m.PriceFetches,
		m.NotificationsSent,
		m.NotificationsError,
		m.UpdateFailures,
		m.CycleDuration,
	)

	return m
}

// ObserveCycle records the outcome of one alert cycle
func (m *BotMetrics) ObserveCycle(r types.CycleReport) {
	m.Cycles.Inc()
	m.PriceFetches.WithLabelValues("resolved").Add(float64(r.Resolved))
	m.PriceFetches.WithLabelValues("unresolved").Add(float64(r.Unresolved))
	m.PriceFetches.WithLabelValues("failed").Add(float64(r.Failed))
	m.NotificationsSent.Add(float64(r.Notified))
	m.NotificationsError.Add(float64(r.NotifyFailed))
	m.UpdateFailures.Add(float64(r.UpdateFailed))
	m.CycleDuration.Observe(r.Duration.Seconds())
}

func (m *BotMetrics) CycleSkipped() {
	m.SkippedCycles.Inc()
}

func (m *BotMetrics) CommandProcessed(command string) {
	m.CommandsProcessed.WithLabelValues(command).Inc()
}

func (m *BotMetrics) MessageHandled() {
	m.MessagesHandled.Inc()
}

func (m *BotMetrics) SetUsers(n int64) {
	m.UsersCount.Set(float64(n))
}

// plain lists the unlabeled counters that survive restarts
func (m *BotMetrics) plain() map[string]prometheus.Counter {
	return map[string]prometheus.Counter{
		"messages_handled":      m.MessagesHandled,
		"alert_cycles":          m.Cycles,
		"alert_cycles_skipped":  m.SkippedCycles,
		"notifications_sent":    m.NotificationsSent,
		"notifications_failed":  m.NotificationsError,
		"alert_update_failures": m.UpdateFailures,
	}
}

func (m *BotMetrics) labeled() map[string]*prometheus.CounterVec {
	return map[string]*prometheus.CounterVec{
		"commands_processed": m.CommandsProcessed,
		"price_fetches":      m.PriceFetches,
	}
}

// LoadFromDB restores the persisted counter values
func (m *BotMetrics) LoadFromDB(p Persister) {
	m.Mutex.Lock()
	defer m.Mutex.Unlock()

	for name, c := range m.plain() {
		v, err := p.GetMetric(name)
		if err != nil {
			log.Errorf("Failed to load metric %s: %v", name, err)
			continue
		}
		c.Add(v)
	}

	for name, vec := range m.labeled() {
		values, err := p.GetMetricsWithLabels(name)
		if err != nil {
			log.Errorf("Failed to load metric %s: %v", name, err)
			continue
		}
		for labelKey, labelValues := range values {
			for labelValue, v := range labelValues {
				c, err := vec.GetMetricWith(prometheus.Labels{labelKey: labelValue})
				if err != nil {
					log.Warnf("Skipping stored metric %s{%s=%q}: %v", name, labelKey, labelValue, err)
					continue
				}
				c.Add(v)
			}
		}
	}

	log.Info("Metrics loaded from database.")
}

// SaveToDB writes the current counter values
func (m *BotMetrics) SaveToDB(p Persister) {
	m.Mutex.Lock()
	defer m.Mutex.Unlock()

	for name, c := range m.plain() {
		if err := p.SaveMetric(name, "", "", GetMetricValue(c)); err != nil {
			log.Errorf("Failed to save metric %s: %v", name, err)
		}
	}

	for name, vec := range m.labeled() {
		metricChan := make(chan prometheus.Metric)
		go func() {
			vec.Collect(metricChan)
			close(metricChan)
		}()

		for metric := range metricChan {
			metricProto := &dto.Metric{}
			if err := metric.Write(metricProto); err != nil {
				log.Errorf("Failed to read %s metric: %v", name, err)
				continue
			}
			for _, label := range metricProto.GetLabel() {
				if err := p.SaveMetric(name, label.GetName(), label.GetValue(), metricProto.GetCounter().GetValue()); err != nil {
					log.Errorf("Failed to save metric %s: %v", name, err)
				}
			}
		}
	}

	log.Info("Metrics saved to database.")
}

// GetMetricValue reads the current value of a single counter or gauge
func GetMetricValue(metric prometheus.Collector) float64 {
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	metricProto := &dto.Metric{}
	if err := (<-metricChan).Write(metricProto); err != nil {
		log.Errorf("Failed to read metric value: %v", err)
		return 0
	}

	switch {
	case metricProto.Counter != nil:
		return metricProto.Counter.GetValue()
	case metricProto.Gauge != nil:
		return metricProto.Gauge.GetValue()
	}
	return 0
}
