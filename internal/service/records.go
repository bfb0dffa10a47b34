package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"dnsmanager/internal/model"
)

// RecordService implements the static record flows: every cache mutation is
// paired with an explicit update against the master.
type RecordService struct {
	records RecordStore
	clients ClientStore
	engine  *UpdateEngine
	sync    *Synchronizer
	journal *Journal
	locks   Locker
	logger  *slog.Logger
}

func NewRecordService(records RecordStore, clients ClientStore, engine *UpdateEngine, sync *Synchronizer, journal *Journal, locks Locker, logger *slog.Logger) *RecordService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordService{
		records: records,
		clients: clients,
		engine:  engine,
		sync:    sync,
		journal: journal,
		locks:   locks,
		logger:  logger,
	}
}

// ListStatic refreshes the cache if it is not fresh and returns the records
// that are not managed by a dynamic client. When the refresh fails the cached
// records are returned and stale is true.
func (s *RecordService) ListStatic(ctx context.Context, d *model.Domain) ([]model.CachedRecord, bool, error) {
	stale := false
	if _, err := s.sync.Synchronize(ctx, d, false); err != nil {
		s.logger.Warn("cannot refresh records from master", "domain", d.Name, "err", err)
		stale = true
	}
	all, err := s.records.ListRecords(ctx, d.ID)
	if err != nil {
		return nil, stale, err
	}
	out := make([]model.CachedRecord, 0, len(all))
	for _, rec := range all {
		if rec.Origin == model.OriginStatic {
			out = append(out, rec)
		}
	}
	return out, stale, nil
}

func (s *RecordService) Get(ctx context.Context, d *model.Domain, id int64) (*model.CachedRecord, error) {
	rec, err := s.records.GetRecord(ctx, d.ID, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	return rec, nil
}

// Synchronize forces a refresh of d regardless of freshness.
func (s *RecordService) Synchronize(ctx context.Context, d *model.Domain) (SyncResult, error) {
	return s.sync.Synchronize(ctx, d, true)
}

// AddStatic publishes rec on the master and then caches it.
func (s *RecordService) AddStatic(ctx context.Context, d *model.Domain, rec model.CachedRecord) (*model.CachedRecord, error) {
	rec = NormalizeRecord(rec)
	if err := ValidateRecord(d, rec); err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, domainLockKey(d.ID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.checkNotClient(ctx, d, rec.Name); err != nil {
		return nil, err
	}
	if err := s.engine.Apply(ctx, d, changeFor(d, model.OpAdd, rec)); err != nil {
		return nil, err
	}
	return s.insert(ctx, d, rec)
}

// EditStatic replaces record id with rec as delete-then-add. The name cannot
// change. If the delete succeeds and the add fails, the old row is already
// gone from the cache because it is gone from the master.
func (s *RecordService) EditStatic(ctx context.Context, d *model.Domain, id int64, rec model.CachedRecord) (*model.CachedRecord, error) {
	rec = NormalizeRecord(rec)

	unlock, err := s.locks.Lock(ctx, domainLockKey(d.ID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	old, err := s.staticRecord(ctx, d, id)
	if err != nil {
		return nil, err
	}
	if rec.Name != old.Name {
		return nil, ErrNameChanged
	}
	if err := ValidateRecord(d, rec); err != nil {
		return nil, err
	}
	if err := s.checkNotClient(ctx, d, rec.Name); err != nil {
		return nil, err
	}
	if KeyOf(*old) == KeyOf(rec) {
		return old, nil
	}

	steps := []model.Step{
		{Change: changeFor(d, model.OpDelete, *old), DropRecordID: old.ID},
		{Change: changeFor(d, model.OpAdd, rec)},
	}
	if err := s.journal.Run(ctx, d, "edit-record", fmt.Sprintf("record:%d", old.ID), steps); err != nil {
		return nil, err
	}
	return s.insert(ctx, d, rec)
}

// DeleteStatic retracts record id from the master and then drops it from the
// cache.
func (s *RecordService) DeleteStatic(ctx context.Context, d *model.Domain, id int64) error {
	unlock, err := s.locks.Lock(ctx, domainLockKey(d.ID))
	if err != nil {
		return err
	}
	defer unlock()

	old, err := s.staticRecord(ctx, d, id)
	if err != nil {
		return err
	}
	if err := s.engine.Apply(ctx, d, changeFor(d, model.OpDelete, *old)); err != nil {
		return err
	}
	return s.records.DeleteRecord(ctx, old.ID)
}

func (s *RecordService) staticRecord(ctx context.Context, d *model.Domain, id int64) (*model.CachedRecord, error) {
	old, err := s.Get(ctx, d, id)
	if err != nil {
		return nil, err
	}
	if old.Origin != model.OriginStatic {
		return nil, invalid("record %d is managed by a dynamic client", id)
	}
	return old, nil
}

// checkNotClient rejects names owned by a dynamic client; those records are
// only changed through rebind and client deletion.
func (s *RecordService) checkNotClient(ctx context.Context, d *model.Domain, name string) error {
	clients, err := s.clients.ListClients(ctx, d.ID)
	if err != nil {
		return fmt.Errorf("list clients: %w", err)
	}
	for _, c := range clients {
		if strings.EqualFold(c.Label, name) {
			return invalid("%s is managed by a dynamic client", d.RecordFQDN(name))
		}
	}
	return nil
}

func (s *RecordService) insert(ctx context.Context, d *model.Domain, rec model.CachedRecord) (*model.CachedRecord, error) {
	rec.ID = 0
	rec.DomainID = d.ID
	rec.Origin = model.OriginStatic
	rec.RefreshedAt = s.sync.now()
	if err := s.records.InsertRecord(ctx, &rec); err != nil {
		return nil, fmt.Errorf("cache record: %w", err)
	}
	return &rec, nil
}

func changeFor(d *model.Domain, op model.Op, rec model.CachedRecord) model.Change {
	return model.Change{
		Op:   op,
		TTL:  rec.TTL,
		Type: rec.Type,
		FQDN: d.RecordFQDN(rec.Name),
		Data: rec.Data,
	}
}
