package database

import (
	"bond-alert-bot/internal/types"
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &SQLStore{db: db}, mock
}

func TestSQLStore_MigrateFailure(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS alerts").WillReturnError(errors.New("disk full"))

	err := store.migrate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create alerts table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_UpdateAlertError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE alerts SET").
		WithArgs("above", 105.0, sqlmock.AnyArg(), "a1").
		WillReturnError(errors.New("database is locked"))

	err := store.UpdateAlert(context.Background(), "a1", types.ConditionAbove, 105)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to update alert a1")
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_UpdateAlertNoRows(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE alerts SET").WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateAlert(context.Background(), "gone", types.ConditionBelow, 90)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_CreateAlertUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO alerts").
		WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: alerts.user_id, alerts.isin, alerts.target_price (2067)"))

	err := store.CreateAlert(context.Background(), newAlert(1, "IT0005648149", 100))
	assert.Equal(t, ErrDuplicateAlert, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_ListAllAlertsQueryError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM alerts ORDER BY rowid").WillReturnError(errors.New("connection reset"))

	_, err := store.ListAllAlerts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query alerts")
}
