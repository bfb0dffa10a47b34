package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func (db *DB) CreateSession(ctx context.Context, token, csrfToken, username string, expiresAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO sessions (token, csrf_token, username, expires_at) VALUES ($1, $2, $3, $4)",
		token, csrfToken, username, expiresAt,
	)
	return err
}

// GetSession returns an empty username when the token is unknown.
func (db *DB) GetSession(ctx context.Context, token string) (string, string, time.Time, error) {
	var username, csrfToken string
	var expiresAt time.Time
	err := db.conn.QueryRowContext(ctx,
		"SELECT username, csrf_token, expires_at FROM sessions WHERE token = $1", token,
	).Scan(&username, &csrfToken, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", time.Time{}, nil
	}
	if err != nil {
		return "", "", time.Time{}, err
	}
	return username, csrfToken, expiresAt, nil
}

func (db *DB) DeleteSession(ctx context.Context, token string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM sessions WHERE token = $1", token)
	return err
}

func (db *DB) PurgeExpiredSessions(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at < NOW()")
	return err
}
