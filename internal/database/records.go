package database

import (
	"context"
	"database/sql"
	"errors"

	"dnsmanager/internal/model"
)

const recordColumns = "id, domain_id, name, ttl, class, type, data, origin, refreshed_at"

func scanRecord(row interface{ Scan(...any) error }, r *model.CachedRecord) error {
	return row.Scan(&r.ID, &r.DomainID, &r.Name, &r.TTL, &r.Class, &r.Type, &r.Data, &r.Origin, &r.RefreshedAt)
}

func (db *DB) ListRecords(ctx context.Context, domainID int64) ([]model.CachedRecord, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM cached_records WHERE domain_id = $1 ORDER BY name, type, id", domainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.CachedRecord
	for rows.Next() {
		var r model.CachedRecord
		if err := scanRecord(rows, &r); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetRecord only returns rows belonging to domainID.
func (db *DB) GetRecord(ctx context.Context, domainID, id int64) (*model.CachedRecord, error) {
	r := &model.CachedRecord{}
	err := scanRecord(db.conn.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM cached_records WHERE domain_id = $1 AND id = $2", domainID, id), r)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (db *DB) InsertRecord(ctx context.Context, rec *model.CachedRecord) error {
	return db.conn.QueryRowContext(ctx,
		`INSERT INTO cached_records (domain_id, name, ttl, class, type, data, origin, refreshed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		rec.DomainID, rec.Name, rec.TTL, rec.Class, rec.Type, rec.Data, rec.Origin, rec.RefreshedAt,
	).Scan(&rec.ID)
}

func (db *DB) DeleteRecord(ctx context.Context, id int64) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM cached_records WHERE id = $1", id)
	return err
}

// RetagRecords sets the origin of every cached row named name, ignoring case.
func (db *DB) RetagRecords(ctx context.Context, domainID int64, name string, origin model.Origin) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE cached_records SET origin = $1 WHERE domain_id = $2 AND lower(name) = lower($3)",
		origin, domainID, name)
	return err
}
