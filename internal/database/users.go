package database

import (
	"context"
	"database/sql"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"dnsmanager/internal/model"
)

const bcryptCost = 12

const userColumns = "id, username, pass_hash, role, active, auth_source, created_at, updated_at"

func scanUser(row interface{ Scan(...any) error }, u *model.User) error {
	return row.Scan(&u.ID, &u.Username, &u.PassHash, &u.Role, &u.Active, &u.AuthSource, &u.CreatedAt, &u.UpdatedAt)
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u := &model.User{}
	err := scanUser(db.conn.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = $1", username), u)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (db *DB) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (db *DB) CreateUser(ctx context.Context, username, password, role string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx,
		"INSERT INTO users (username, pass_hash, role) VALUES ($1, $2, $3)",
		username, string(hash), role,
	)
	return err
}

func (db *DB) UpdateUserPassword(ctx context.Context, username, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx, "UPDATE users SET pass_hash = $1, updated_at = NOW() WHERE username = $2",
		string(hash), username)
	return err
}

func (db *DB) SetUserActive(ctx context.Context, username string, active bool) error {
	_, err := db.conn.ExecContext(ctx, "UPDATE users SET active = $1, updated_at = NOW() WHERE username = $2",
		active, username)
	return err
}

func (db *DB) DeleteUser(ctx context.Context, username string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM users WHERE username = $1", username)
	return err
}

// AuthenticateUser returns nil without error when the credentials do not
// match an active local account.
func (db *DB) AuthenticateUser(ctx context.Context, username, password string) (*model.User, error) {
	u, err := db.GetUserByUsername(ctx, username)
	if err != nil || u == nil || !u.Active {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PassHash), []byte(password)); err != nil {
		return nil, nil
	}
	return u, nil
}

func (db *DB) CreateLDAPUser(ctx context.Context, username, role string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (username, pass_hash, role, auth_source)
		 VALUES ($1, '', $2, 'ldap')
		 ON CONFLICT(username) DO UPDATE SET
		   role = EXCLUDED.role, auth_source = 'ldap', updated_at = NOW()`,
		username, role,
	)
	return err
}
