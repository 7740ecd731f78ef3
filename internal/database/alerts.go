package database

import (
	"bond-alert-bot/internal/types"
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const alertColumns = `id, user_id, isin, label, target_price, last_condition, last_check_price, created_at, updated_at`

// CreateAlert saves a new alert, assigning its ID and timestamps
func (s *SQLStore) CreateAlert(ctx context.Context, alert *types.Alert) error {
	now := time.Now().UTC()
	alert.ID = uuid.NewString()
	alert.CreatedAt = now
	alert.UpdatedAt = now

	query := `
	INSERT INTO alerts (` + alertColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`

	_, err := s.db.ExecContext(ctx, query,
		alert.ID, alert.UserID, alert.ISIN, alert.Label, alert.TargetPrice,
		string(alert.LastCondition), alert.LastCheckPrice,
		formatTime(alert.CreatedAt), formatTime(alert.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAlert
		}
		return errors.Wrap(err, "failed to insert alert")
	}

	log.Debugf("Alert inserted: ID: %s, UserID: %d, ISIN: %s, Target: %v", alert.ID, alert.UserID, alert.ISIN, alert.TargetPrice)
	return nil
}

// ListAllAlerts fetches every alert in creation order
func (s *SQLStore) ListAllAlerts(ctx context.Context) ([]types.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts ORDER BY rowid;`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query alerts")
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// ListAlertsByUser fetches all alerts of one user in creation order
func (s *SQLStore) ListAlertsByUser(ctx context.Context, userID int64) ([]types.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE user_id = ? ORDER BY rowid;`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query alerts for user %d", userID)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

func (s *SQLStore) FindAlert(ctx context.Context, userID int64, isin string, targetPrice float64) (*types.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE user_id = ? AND isin = ? AND target_price = ?;`
	return s.findOne(ctx, query, userID, isin, targetPrice)
}

func (s *SQLStore) FindAlertByID(ctx context.Context, id string) (*types.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?;`
	return s.findOne(ctx, query, id)
}

func (s *SQLStore) findOne(ctx context.Context, query string, args ...interface{}) (*types.Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query alert")
	}
	defer rows.Close()

	alerts, err := scanAlerts(rows)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, ErrNotFound
	}
	return &alerts[0], nil
}

// UpdateAlert stores the state computed by the last evaluation
func (s *SQLStore) UpdateAlert(ctx context.Context, id string, condition types.Condition, lastCheckPrice float64) error {
	query := `UPDATE alerts SET last_condition = ?, last_check_price = ?, updated_at = ? WHERE id = ?;`

	res, err := s.db.ExecContext(ctx, query, string(condition), lastCheckPrice, formatTime(time.Now().UTC()), id)
	if err != nil {
		return errors.Wrapf(err, "failed to update alert %s", id)
	}
	return expectAffected(res, id)
}

// DeleteAlert removes a single alert
func (s *SQLStore) DeleteAlert(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?;`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete alert %s", id)
	}
	return expectAffected(res, id)
}

// DeleteAllAlertsByUser removes every alert of a user and reports how many were removed
func (s *SQLStore) DeleteAllAlertsByUser(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE user_id = ?;`, userID)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to delete alerts for user %d", userID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read affected rows")
	}
	return n, nil
}

func scanAlerts(rows *sql.Rows) ([]types.Alert, error) {
	var alerts []types.Alert
	for rows.Next() {
		var (
			alert                types.Alert
			condition            string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&alert.ID, &alert.UserID, &alert.ISIN, &alert.Label, &alert.TargetPrice,
			&condition, &alert.LastCheckPrice, &createdAt, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		alert.LastCondition = types.Condition(condition)
		alert.CreatedAt = parseTime(createdAt)
		alert.UpdatedAt = parseTime(updatedAt)
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate rows")
	}
	return alerts, nil
}

func expectAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return errors.Wrap(ErrNotFound, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
