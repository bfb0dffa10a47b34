package database

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL Driver
)

type DB struct {
	conn *sql.DB
}

func Open(ctx context.Context, dsn string, migrationsFS fs.FS) (*DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(conn, migrationsFS); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return New(conn), nil
}

// New wraps an open connection without running migrations.
func New(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

func runMigrations(conn *sql.DB, migrationsFS fs.FS) error {
	driver, err := postgres.WithInstance(conn, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	var m *migrate.Migrate
	if migrationsFS != nil {
		d, err := iofs.New(migrationsFS, "migrations")
		if err != nil {
			return fmt.Errorf("could not create iofs source: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", d, "postgres", driver)
		if err != nil {
			return fmt.Errorf("could not create migrate instance: %w", err)
		}
	} else {
		// Fallback to the source tree, useful during development.
		m, err = migrate.NewWithDatabaseInstance("file://web/migrations", "postgres", driver)
		if err != nil {
			return fmt.Errorf("could not create migrate instance: %w", err)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("an error occurred while syncing the database: %w", err)
	}

	slog.Info("database migrations applied")
	return nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) HasUsers(ctx context.Context) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	return count > 0, err
}

func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = $1", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES ($1, $2) ON CONFLICT(key) DO UPDATE SET value = EXCLUDED.value",
		key, value,
	)
	return err
}

func (db *DB) EnsureSessionSecret(ctx context.Context) (string, error) {
	secret, err := db.GetSetting(ctx, "session_secret")
	if err != nil {
		return "", err
	}
	if secret != "" {
		return secret, nil
	}
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session secret: %w", err)
	}
	secret = hex.EncodeToString(b)
	if err := db.SetSetting(ctx, "session_secret", secret); err != nil {
		return "", err
	}
	slog.Info("generated new session secret")
	return secret, nil
}

// withTx runs fn in a transaction, committing only if fn succeeds.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
