package database

import (
	"bond-alert-bot/internal/types"
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// UpsertUser creates the user or refreshes its name and handle. It reports
// whether a new record was created.
func (s *SQLStore) UpsertUser(ctx context.Context, user types.User) (bool, error) {
	now := formatTime(time.Now().UTC())

	var existing int64
	err := s.db.QueryRowContext(ctx, `SELECT telegram_id FROM users WHERE telegram_id = ?;`, user.TelegramID).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return false, errors.Wrapf(err, "failed to look up user %d", user.TelegramID)
	}

	if err == sql.ErrNoRows {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO users (telegram_id, name, username, created_at, updated_at) VALUES (?, ?, ?, ?, ?);`,
			user.TelegramID, user.Name, nullString(user.Username), now, now)
		if err != nil {
			return false, errors.Wrapf(err, "failed to insert user %d", user.TelegramID)
		}
		return true, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET name = ?, username = ?, updated_at = ? WHERE telegram_id = ? AND (name != ? OR username IS NOT ?);`,
		user.Name, nullString(user.Username), now, user.TelegramID, user.Name, nullString(user.Username))
	if err != nil {
		return false, errors.Wrapf(err, "failed to update user %d", user.TelegramID)
	}
	return false, nil
}

func (s *SQLStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users;`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count users")
	}
	return n, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
