package service

import (
	"context"
	"time"

	"dnsmanager/internal/model"
)

// Transport is the wire-level capability the core drives: zone transfer,
// direct resolution against the master, and signed single-record updates.
type Transport interface {
	Transfer(ctx context.Context, m model.Master) ([]model.ZoneRecord, error)
	Resolve(ctx context.Context, m model.Master, fqdn, rrType string) ([]string, error)
	Update(ctx context.Context, m model.Master, ch model.Change) error
}

type RecordStore interface {
	ListRecords(ctx context.Context, domainID int64) ([]model.CachedRecord, error)
	GetRecord(ctx context.Context, domainID, id int64) (*model.CachedRecord, error)
	InsertRecord(ctx context.Context, rec *model.CachedRecord) error
	DeleteRecord(ctx context.Context, id int64) error
	RetagRecords(ctx context.Context, domainID int64, name string, origin model.Origin) error
}

type DomainStore interface {
	GetDomain(ctx context.Context, id int64) (*model.Domain, error)
	LastSynced(ctx context.Context, domainID int64) (time.Time, bool, error)
	MarkSynced(ctx context.Context, domainID int64, at time.Time) error
}

type ClientStore interface {
	ListClients(ctx context.Context, domainID int64) ([]model.DynamicClient, error)
	GetClient(ctx context.Context, id int64) (*model.DynamicClient, error)
	GetClientBySecretHash(ctx context.Context, hash string) (*model.DynamicClient, error)
	CreateClient(ctx context.Context, c *model.DynamicClient) error
	UpdateClientSecret(ctx context.Context, id int64, hash string) error
	SetClientEnabled(ctx context.Context, id int64, enabled bool) error
	DeleteClient(ctx context.Context, id int64) error
}

type JournalStore interface {
	CreatePending(ctx context.Context, op *model.PendingOperation) error
	UpdatePending(ctx context.Context, op *model.PendingOperation) error
	DeletePending(ctx context.Context, id string) error
	DeletePendingBySubject(ctx context.Context, subject string) error
	ListPending(ctx context.Context) ([]model.PendingOperation, error)
}

// Locker serializes work on one key (a domain or a client name) across
// concurrent requests.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type Clock func() time.Time
