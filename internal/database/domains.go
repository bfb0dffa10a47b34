package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"dnsmanager/internal/model"
)

const domainSelect = `SELECT d.id, d.name, d.master, d.backend, d.tsig_key_name, d.tsig_secret, d.tsig_algorithm,
	d.last_synced_at, d.created_at, d.updated_at,
	COALESCE((SELECT string_agg(o.username, ',' ORDER BY o.username) FROM domain_owners o WHERE o.domain_id = d.id), '')
	FROM domains d`

func scanDomain(row interface{ Scan(...any) error }) (*model.Domain, error) {
	d := &model.Domain{}
	var synced sql.NullTime
	var owners string
	if err := row.Scan(&d.ID, &d.Name, &d.Master, &d.Backend, &d.TSIGKeyName, &d.TSIGSecret, &d.TSIGAlgorithm,
		&synced, &d.CreatedAt, &d.UpdatedAt, &owners); err != nil {
		return nil, err
	}
	if synced.Valid {
		t := synced.Time
		d.LastSyncedAt = &t
	}
	if owners != "" {
		d.Owners = strings.Split(owners, ",")
	}
	return d, nil
}

func (db *DB) queryDomains(ctx context.Context, query string, args ...any) ([]model.Domain, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var domains []model.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		domains = append(domains, *d)
	}
	return domains, rows.Err()
}

func (db *DB) ListDomains(ctx context.Context) ([]model.Domain, error) {
	return db.queryDomains(ctx, domainSelect+" ORDER BY d.name")
}

func (db *DB) ListDomainsForUser(ctx context.Context, username string) ([]model.Domain, error) {
	return db.queryDomains(ctx,
		domainSelect+" WHERE EXISTS (SELECT 1 FROM domain_owners o WHERE o.domain_id = d.id AND o.username = $1) ORDER BY d.name",
		username)
}

func (db *DB) GetDomain(ctx context.Context, id int64) (*model.Domain, error) {
	d, err := scanDomain(db.conn.QueryRowContext(ctx, domainSelect+" WHERE d.id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (db *DB) GetDomainByName(ctx context.Context, name string) (*model.Domain, error) {
	d, err := scanDomain(db.conn.QueryRowContext(ctx, domainSelect+" WHERE d.name = $1", name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (db *DB) CreateDomain(ctx context.Context, d *model.Domain) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO domains (name, master, backend, tsig_key_name, tsig_secret, tsig_algorithm)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at`,
			d.Name, d.Master, d.Backend, d.TSIGKeyName, d.TSIGSecret, d.TSIGAlgorithm,
		).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
		if err != nil {
			return err
		}
		return insertOwners(ctx, tx, d.ID, d.Owners)
	})
}

// UpdateDomain rewrites the mutable columns and replaces the owner set.
func (db *DB) UpdateDomain(ctx context.Context, d *model.Domain) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE domains SET master = $1, backend = $2, tsig_key_name = $3, tsig_secret = $4,
			 tsig_algorithm = $5, updated_at = NOW() WHERE id = $6`,
			d.Master, d.Backend, d.TSIGKeyName, d.TSIGSecret, d.TSIGAlgorithm, d.ID,
		)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM domain_owners WHERE domain_id = $1", d.ID); err != nil {
			return err
		}
		return insertOwners(ctx, tx, d.ID, d.Owners)
	})
}

func insertOwners(ctx context.Context, tx *sql.Tx, domainID int64, owners []string) error {
	for _, o := range owners {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO domain_owners (domain_id, username) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			domainID, o); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) DeleteDomain(ctx context.Context, id int64) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM domains WHERE id = $1", id)
	return err
}

func (db *DB) LastSynced(ctx context.Context, domainID int64) (time.Time, bool, error) {
	var synced sql.NullTime
	err := db.conn.QueryRowContext(ctx, "SELECT last_synced_at FROM domains WHERE id = $1", domainID).Scan(&synced)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return synced.Time, synced.Valid, nil
}

func (db *DB) MarkSynced(ctx context.Context, domainID int64, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, "UPDATE domains SET last_synced_at = $1 WHERE id = $2", at, domainID)
	return err
}
