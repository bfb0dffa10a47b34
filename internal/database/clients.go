package database

import (
	"context"
	"database/sql"
	"errors"

	"dnsmanager/internal/model"
)

const clientColumns = "id, domain_id, label, secret_hash, enabled, created_at, updated_at"

func scanClient(row interface{ Scan(...any) error }, c *model.DynamicClient) error {
	return row.Scan(&c.ID, &c.DomainID, &c.Label, &c.SecretHash, &c.Enabled, &c.CreatedAt, &c.UpdatedAt)
}

func (db *DB) ListClients(ctx context.Context, domainID int64) ([]model.DynamicClient, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+clientColumns+" FROM dynamic_clients WHERE domain_id = $1 ORDER BY label", domainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []model.DynamicClient
	for rows.Next() {
		var c model.DynamicClient
		if err := scanClient(rows, &c); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (db *DB) GetClient(ctx context.Context, id int64) (*model.DynamicClient, error) {
	return db.getClient(ctx, "SELECT "+clientColumns+" FROM dynamic_clients WHERE id = $1", id)
}

func (db *DB) GetClientBySecretHash(ctx context.Context, hash string) (*model.DynamicClient, error) {
	return db.getClient(ctx, "SELECT "+clientColumns+" FROM dynamic_clients WHERE secret_hash = $1", hash)
}

// getClient loads one client together with its domain.
func (db *DB) getClient(ctx context.Context, query string, arg any) (*model.DynamicClient, error) {
	c := &model.DynamicClient{}
	err := scanClient(db.conn.QueryRowContext(ctx, query, arg), c)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d, err := db.GetDomain(ctx, c.DomainID)
	if err != nil {
		return nil, err
	}
	c.Domain = d
	return c, nil
}

func (db *DB) CreateClient(ctx context.Context, c *model.DynamicClient) error {
	return db.conn.QueryRowContext(ctx,
		`INSERT INTO dynamic_clients (domain_id, label, secret_hash, enabled)
		 VALUES ($1, $2, $3, $4) RETURNING id, created_at, updated_at`,
		c.DomainID, c.Label, c.SecretHash, c.Enabled,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (db *DB) UpdateClientSecret(ctx context.Context, id int64, hash string) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE dynamic_clients SET secret_hash = $1, updated_at = NOW() WHERE id = $2", hash, id)
	return err
}

func (db *DB) SetClientEnabled(ctx context.Context, id int64, enabled bool) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE dynamic_clients SET enabled = $1, updated_at = NOW() WHERE id = $2", enabled, id)
	return err
}

func (db *DB) DeleteClient(ctx context.Context, id int64) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM dynamic_clients WHERE id = $1", id)
	return err
}
