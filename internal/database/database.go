package database

import (
	"bond-alert-bot/internal/types"
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateAlert = errors.New("alert already exists")
)

// Store is the persistence layer for alerts, users and saved metrics
type Store interface {
	ListAllAlerts(ctx context.Context) ([]types.Alert, error)
	ListAlertsByUser(ctx context.Context, userID int64) ([]types.Alert, error)
	FindAlert(ctx context.Context, userID int64, isin string, targetPrice float64) (*types.Alert, error)
	FindAlertByID(ctx context.Context, id string) (*types.Alert, error)
	CreateAlert(ctx context.Context, alert *types.Alert) error
	UpdateAlert(ctx context.Context, id string, condition types.Condition, lastCheckPrice float64) error
	DeleteAlert(ctx context.Context, id string) error
	DeleteAllAlertsByUser(ctx context.Context, userID int64) (int64, error)

	UpsertUser(ctx context.Context, user types.User) (bool, error)
	CountUsers(ctx context.Context) (int64, error)

	SaveMetric(metricName, labelKey, labelValue string, value float64) error
	GetMetric(metricName string) (float64, error)
	GetMetricsWithLabels(metricName string) (map[string]map[string]float64, error)

	Close() error
}

// Open returns the store for driver ("sqlite" or "buntdb") located at path
func Open(driver, path string) (Store, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite":
		return OpenSQLite(path)
	case "buntdb":
		return OpenBunt(path)
	}
	return nil, errors.Errorf("unknown database driver %q", driver)
}

// SQLStore implements Store on top of database/sql with the sqlite driver
type SQLStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the sqlite database at dbPath and migrates it
func OpenSQLite(dbPath string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	// sqlite allows a single writer, and ":memory:" lives on one connection
	db.SetMaxOpenConns(1)

	store := &SQLStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("Database initialized successfully.")
	return store, nil
}

func (s *SQLStore) migrate() error {
	createAlertsTable := `
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		isin TEXT NOT NULL,
		label TEXT NOT NULL,
		target_price REAL NOT NULL,
		last_condition TEXT NOT NULL,
		last_check_price REAL NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (user_id, isin, target_price)
	);`
	if _, err := s.db.Exec(createAlertsTable); err != nil {
		return errors.Wrap(err, "failed to create alerts table")
	}

	createUsersTable := `
	CREATE TABLE IF NOT EXISTS users (
		telegram_id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		username TEXT DEFAULT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`
	if _, err := s.db.Exec(createUsersTable); err != nil {
		return errors.Wrap(err, "failed to create users table")
	}

	createMetricsTable := `
	CREATE TABLE IF NOT EXISTS metrics (
		metric_name TEXT NOT NULL,
		label_key TEXT NOT NULL DEFAULT '',
		label_value TEXT NOT NULL DEFAULT '',
		metric_value REAL NOT NULL,
		PRIMARY KEY (metric_name, label_key, label_value)
	);`
	if _, err := s.db.Exec(createMetricsTable); err != nil {
		return errors.Wrap(err, "failed to create metrics table")
	}

	return nil
}

func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
