package database

import (
	"context"
	"encoding/json"
	"fmt"

	"dnsmanager/internal/model"
)

func (db *DB) CreatePending(ctx context.Context, op *model.PendingOperation) error {
	steps, err := json.Marshal(op.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	return db.conn.QueryRowContext(ctx,
		`INSERT INTO pending_operations (id, domain_id, subject, kind, steps, completed, last_error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at, updated_at`,
		op.ID, op.DomainID, op.Subject, op.Kind, steps, op.Completed, op.LastError,
	).Scan(&op.CreatedAt, &op.UpdatedAt)
}

// UpdatePending records progress; the step list itself never changes.
func (db *DB) UpdatePending(ctx context.Context, op *model.PendingOperation) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE pending_operations SET completed = $1, last_error = $2, updated_at = NOW() WHERE id = $3",
		op.Completed, op.LastError, op.ID)
	return err
}

func (db *DB) DeletePending(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM pending_operations WHERE id = $1", id)
	return err
}

func (db *DB) DeletePendingBySubject(ctx context.Context, subject string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM pending_operations WHERE subject = $1", subject)
	return err
}

func (db *DB) ListPending(ctx context.Context) ([]model.PendingOperation, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, domain_id, subject, kind, steps, completed, last_error, created_at, updated_at
		 FROM pending_operations ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []model.PendingOperation
	for rows.Next() {
		var op model.PendingOperation
		var steps []byte
		if err := rows.Scan(&op.ID, &op.DomainID, &op.Subject, &op.Kind, &steps, &op.Completed,
			&op.LastError, &op.CreatedAt, &op.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(steps, &op.Steps); err != nil {
			return nil, fmt.Errorf("decode steps of %s: %w", op.ID, err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
