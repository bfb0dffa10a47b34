package database

import (
	"context"
	"database/sql"
	"strings"

	"dnsmanager/internal/model"
)

func (db *DB) LogAudit(ctx context.Context, entry model.AuditEntry) error {
	var domainID sql.NullInt64
	if entry.DomainID != 0 {
		domainID = sql.NullInt64{Int64: entry.DomainID, Valid: true}
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO audit_log (username, action, domain_id, domain_name, record_name, record_type, detail, ip_address)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.Username, entry.Action, domainID, entry.DomainName, entry.RecordName,
		entry.RecordType, entry.Detail, entry.IPAddress,
	)
	return err
}

func (db *DB) ListAuditLog(ctx context.Context, limit, offset int) ([]model.AuditEntry, int, error) {
	var total int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log").Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, username, action, domain_id, domain_name, record_name, record_type, detail, ip_address, created_at
		 FROM audit_log
		 ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var domainID sql.NullInt64
		var domainName, recordName, recordType, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.Username, &e.Action, &domainID, &domainName, &recordName,
			&recordType, &detail, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.DomainID = domainID.Int64
		e.DomainName = domainName.String
		e.RecordName = relativeName(recordName.String, e.DomainName)
		e.RecordType = recordType.String
		e.Detail = detail.String
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// relativeName shortens a record name to its zone-relative form, "@" for
// the apex.
func relativeName(name, zone string) string {
	if name == "" || zone == "" {
		return name
	}
	zone = strings.TrimSuffix(zone, ".")
	clean := strings.TrimSuffix(name, ".")
	if strings.EqualFold(clean, zone) {
		return "@"
	}
	suffix := "." + zone
	if len(clean) > len(suffix) && strings.EqualFold(clean[len(clean)-len(suffix):], suffix) {
		return clean[:len(clean)-len(suffix)]
	}
	return name
}
