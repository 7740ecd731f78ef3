package metrics

import (
	"bond-alert-bot/internal/types"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryPersister struct {
	plain   map[string]float64
	labeled map[string]map[string]map[string]float64
}

func newMemoryPersister() *memoryPersister {
	return &memoryPersister{
		plain:   map[string]float64{},
		labeled: map[string]map[string]map[string]float64{},
	}
}

func (p *memoryPersister) SaveMetric(name, labelKey, labelValue string, value float64) error {
	if labelKey == "" {
		p.plain[name] = value
		return nil
	}
	if p.labeled[name] == nil {
		p.labeled[name] = map[string]map[string]float64{}
	}
	if p.labeled[name][labelKey] == nil {
		p.labeled[name][labelKey] = map[string]float64{}
	}
	p.labeled[name][labelKey][labelValue] = value
	return nil
}

func (p *memoryPersister) GetMetric(name string) (float64, error) {
	return p.plain[name], nil
}

func (p *memoryPersister) GetMetricsWithLabels(name string) (map[string]map[string]float64, error) {
	return p.labeled[name], nil
}

func TestObserveCycle(t *testing.T) {
	m := NewBotMetrics(prometheus.NewRegistry())

	m.ObserveCycle(types.CycleReport{Resolved: 5, Unresolved: 1, Failed: 2, Notified: 3, NotifyFailed: 1, UpdateFailed: 1, Duration: time.Second})
	m.ObserveCycle(types.CycleReport{Resolved: 4})
	m.CycleSkipped()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Cycles))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SkippedCycles))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.PriceFetches.WithLabelValues("resolved")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PriceFetches.WithLabelValues("failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.NotificationsSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsError))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpdateFailures))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CycleDuration))
}

func TestSaveAndLoad(t *testing.T) {
	p := newMemoryPersister()

	before := NewBotMetrics(prometheus.NewRegistry())
	before.CommandProcessed("alert")
	before.CommandProcessed("alert")
	before.CommandProcessed("price")
	before.MessageHandled()
	before.ObserveCycle(types.CycleReport{Resolved: 7, Notified: 2})
	before.SaveToDB(p)

	assert.Equal(t, 1.0, p.plain["messages_handled"])
	assert.Equal(t, 2.0, p.labeled["commands_processed"]["command"]["alert"])

	after := NewBotMetrics(prometheus.NewRegistry())
	after.LoadFromDB(p)

	assert.Equal(t, 2.0, testutil.ToFloat64(after.CommandsProcessed.WithLabelValues("alert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(after.CommandsProcessed.WithLabelValues("price")))
	assert.Equal(t, 1.0, testutil.ToFloat64(after.MessagesHandled))
	assert.Equal(t, 1.0, testutil.ToFloat64(after.Cycles))
	assert.Equal(t, 7.0, testutil.ToFloat64(after.PriceFetches.WithLabelValues("resolved")))
	assert.Equal(t, 2.0, testutil.ToFloat64(after.NotificationsSent))
}

func TestLoadFromDB_SkipsUnknownLabel(t *testing.T) {
	p := newMemoryPersister()
	require.NoError(t, p.SaveMetric("price_fetches", "result", "resolved", 4))
	require.NoError(t, p.SaveMetric("commands_processed", "command", "price", 3))

	m := NewBotMetrics(prometheus.NewRegistry())
	require.NotPanics(t, func() { m.LoadFromDB(p) })

	assert.Zero(t, testutil.CollectAndCount(m.PriceFetches))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CommandsProcessed.WithLabelValues("price")))
}

func TestGetMetricValue(t *testing.T) {
	m := NewBotMetrics(prometheus.NewRegistry())
	m.SetUsers(12)

	require.Equal(t, 12.0, GetMetricValue(m.UsersCount))
	assert.Zero(t, GetMetricValue(m.MessagesHandled))
}
