package database

import (
	"bond-alert-bot/internal/types"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/buntdb"
	"github.com/tidwall/gjson"
)

const (
	alertPrefix  = "alert:"
	userPrefix   = "user:"
	metricPrefix = "metric:"

	alertsByCreation = "alerts_created_at"
)

// BuntStore implements Store as JSON documents in a BuntDB file
type BuntStore struct {
	db *buntdb.DB
}

// OpenBunt opens the BuntDB file at path, ":memory:" keeps everything in memory
func OpenBunt(path string) (*BuntStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open buntdb")
	}

	err = db.CreateIndex(alertsByCreation, alertPrefix+"*", byCreatedAt)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create index")
	}

	log.Info("Database initialized successfully.")
	return &BuntStore{db: db}, nil
}

func (b *BuntStore) CreateAlert(_ context.Context, alert *types.Alert) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		duplicate := false
		err := tx.Ascend(alertsByCreation, func(_, value string) bool {
			var existing types.Alert
			if json.Unmarshal([]byte(value), &existing) != nil {
				return true
			}
			if existing.UserID == alert.UserID && existing.ISIN == alert.ISIN && existing.TargetPrice == alert.TargetPrice {
				duplicate = true
				return false
			}
			return true
		})
		if err != nil {
			return errors.Wrap(err, "failed to iterate over alerts")
		}
		if duplicate {
			return ErrDuplicateAlert
		}

		now := time.Now().UTC()
		alert.ID = uuid.NewString()
		alert.CreatedAt = now
		alert.UpdatedAt = now

		return setJSON(tx, alertPrefix+alert.ID, alert)
	})
}

func (b *BuntStore) ListAllAlerts(_ context.Context) ([]types.Alert, error) {
	return b.alerts(func(types.Alert) bool { return true })
}

func (b *BuntStore) ListAlertsByUser(_ context.Context, userID int64) ([]types.Alert, error) {
	return b.alerts(func(a types.Alert) bool { return a.UserID == userID })
}

func (b *BuntStore) FindAlert(_ context.Context, userID int64, isin string, targetPrice float64) (*types.Alert, error) {
	alerts, err := b.alerts(func(a types.Alert) bool {
		return a.UserID == userID && a.ISIN == isin && a.TargetPrice == targetPrice
	})
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, ErrNotFound
	}
	return &alerts[0], nil
}

func (b *BuntStore) FindAlertByID(_ context.Context, id string) (*types.Alert, error) {
	var alert types.Alert
	err := b.db.View(func(tx *buntdb.Tx) error {
		return getJSON(tx, alertPrefix+id, &alert)
	})
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (b *BuntStore) UpdateAlert(_ context.Context, id string, condition types.Condition, lastCheckPrice float64) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		var alert types.Alert
		if err := getJSON(tx, alertPrefix+id, &alert); err != nil {
			return err
		}
		alert.LastCondition = condition
		alert.LastCheckPrice = lastCheckPrice
		alert.UpdatedAt = time.Now().UTC()
		return setJSON(tx, alertPrefix+id, &alert)
	})
}

func (b *BuntStore) DeleteAlert(_ context.Context, id string) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(alertPrefix + id)
		if err == buntdb.ErrNotFound {
			return errors.Wrap(ErrNotFound, id)
		}
		return errors.Wrapf(err, "failed to delete alert %s", id)
	})
}

func (b *BuntStore) DeleteAllAlertsByUser(_ context.Context, userID int64) (int64, error) {
	var deleted int64
	err := b.db.Update(func(tx *buntdb.Tx) error {
		var keys []string
		err := tx.Ascend(alertsByCreation, func(key, value string) bool {
			var alert types.Alert
			if json.Unmarshal([]byte(value), &alert) == nil && alert.UserID == userID {
				keys = append(keys, key)
			}
			return true
		})
		if err != nil {
			return errors.Wrap(err, "failed to iterate over alerts")
		}
		for _, key := range keys {
			if _, err := tx.Delete(key); err != nil {
				return errors.Wrapf(err, "failed to delete %s", key)
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (b *BuntStore) alerts(filter func(types.Alert) bool) ([]types.Alert, error) {
	var alerts []types.Alert
	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend(alertsByCreation, func(key, value string) bool {
			var alert types.Alert
			if err := json.Unmarshal([]byte(value), &alert); err != nil {
				log.Errorf("Failed to unmarshal alert %s: %v", key, err)
				return true
			}
			if filter(alert) {
				alerts = append(alerts, alert)
			}
			return true
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to iterate over alerts")
	}
	return alerts, nil
}

func (b *BuntStore) UpsertUser(_ context.Context, user types.User) (bool, error) {
	created := false
	err := b.db.Update(func(tx *buntdb.Tx) error {
		key := userPrefix + strconv.FormatInt(user.TelegramID, 10)
		now := time.Now().UTC()

		var existing types.User
		err := getJSON(tx, key, &existing)
		switch {
		case errors.Is(err, ErrNotFound):
			created = true
			user.CreatedAt = now
		case err != nil:
			return err
		default:
			if existing.Name == user.Name && sameHandle(existing.Username, user.Username) {
				return nil
			}
			user.CreatedAt = existing.CreatedAt
		}
		user.UpdatedAt = now
		return setJSON(tx, key, &user)
	})
	return created, err
}

func (b *BuntStore) CountUsers(_ context.Context) (int64, error) {
	var n int64
	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(userPrefix+"*", func(_, _ string) bool {
			n++
			return true
		})
	})
	return n, errors.Wrap(err, "failed to count users")
}

func (b *BuntStore) SaveMetric(metricName, labelKey, labelValue string, value float64) error {
	err := b.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(metricKey(metricName, labelKey, labelValue), strconv.FormatFloat(value, 'g', -1, 64), nil)
		return err
	})
	return errors.Wrap(err, "failed to save metric")
}

func (b *BuntStore) GetMetric(metricName string) (float64, error) {
	var value float64
	err := b.db.View(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(metricKey(metricName, "", ""))
		if err == buntdb.ErrNotFound {
			return nil
		} else if err != nil {
			return err
		}
		value, err = strconv.ParseFloat(raw, 64)
		return err
	})
	if err != nil {
		return 0, errors.Wrapf(err, "failed to get metric %s", metricName)
	}
	return value, nil
}

func (b *BuntStore) GetMetricsWithLabels(metricName string) (map[string]map[string]float64, error) {
	metrics := make(map[string]map[string]float64)
	prefix := metricPrefix + metricName + "|"

	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(prefix+"*", func(key, value string) bool {
			parts := strings.SplitN(strings.TrimPrefix(key, prefix), "|", 2)
			if len(parts) != 2 || parts[0] == "" {
				return true
			}
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return true
			}
			if _, exists := metrics[parts[0]]; !exists {
				metrics[parts[0]] = make(map[string]float64)
			}
			metrics[parts[0]][parts[1]] = v
			return true
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to query metrics with labels")
	}
	return metrics, nil
}

func (b *BuntStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// byCreatedAt orders alert documents by creation time. IndexJSON would
// compare the RFC3339 strings, which misorders trimmed fractional seconds.
func byCreatedAt(a, b string) bool {
	return gjson.Get(a, "created_at").Time().Before(gjson.Get(b, "created_at").Time())
}

func metricKey(name, labelKey, labelValue string) string {
	return metricPrefix + name + "|" + labelKey + "|" + labelValue
}

func getJSON(tx *buntdb.Tx, key string, v interface{}) error {
	raw, err := tx.Get(key)
	if err == buntdb.ErrNotFound {
		return errors.Wrap(ErrNotFound, key)
	} else if err != nil {
		return errors.Wrapf(err, "failed to read %s", key)
	}
	return errors.Wrapf(json.Unmarshal([]byte(raw), v), "failed to unmarshal %s", key)
}

func setJSON(tx *buntdb.Tx, key string, v interface{}) error {
	content, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s", key)
	}
	if _, _, err := tx.Set(key, string(content), nil); err != nil {
		return errors.Wrapf(err, "failed to store %s", key)
	}
	return nil
}

func sameHandle(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
