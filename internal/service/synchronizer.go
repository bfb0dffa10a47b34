package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dnsmanager/internal/metrics"
	"dnsmanager/internal/model"
)

const DefaultFreshness = 60 * time.Second

// DNSSEC metadata is never mirrored.
var skippedTypes = map[string]bool{
	"RRSIG":     true,
	"TYPE65534": true,
	"DNSKEY":    true,
	"NSEC":      true,
}

type SyncResult struct {
	Skipped  bool
	Inserted int
	Deleted  int
}

// Synchronizer keeps the cached record set of a domain an exact mirror of the
// live zone on its master.
type Synchronizer struct {
	domains   DomainStore
	records   RecordStore
	clients   ClientStore
	transport Transport
	locks     Locker
	now       Clock
	freshness time.Duration
	logger    *slog.Logger
}

func NewSynchronizer(domains DomainStore, records RecordStore, clients ClientStore, transport Transport, locks Locker, freshness time.Duration, logger *slog.Logger) *Synchronizer {
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		domains:   domains,
		records:   records,
		clients:   clients,
		transport: transport,
		locks:     locks,
		now:       time.Now,
		freshness: freshness,
		logger:    logger,
	}
}

// WithClock replaces the wall clock used for the freshness window.
func (s *Synchronizer) WithClock(c Clock) *Synchronizer {
	s.now = c
	return s
}

// Synchronize refreshes the cache for d from a zone transfer. Unless force is
// set, it returns immediately when the domain was synchronized within the
// freshness window. A failed transfer leaves the cache untouched.
func (s *Synchronizer) Synchronize(ctx context.Context, d *model.Domain, force bool) (SyncResult, error) {
	unlock, err := s.locks.Lock(ctx, domainLockKey(d.ID))
	if err != nil {
		return SyncResult{}, opError(ErrSyncFailed, d.Name, "", err)
	}
	defer unlock()
	return s.synchronizeLocked(ctx, d, force)
}

func (s *Synchronizer) synchronizeLocked(ctx context.Context, d *model.Domain, force bool) (SyncResult, error) {
	if !force && s.fresh(ctx, d) {
		metrics.SyncTotal.WithLabelValues("skipped").Inc()
		return SyncResult{Skipped: true}, nil
	}

	started := time.Now()
	live, err := s.transport.Transfer(ctx, d.Endpoint())
	metrics.TransferDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.SyncTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("zone transfer failed", "domain", d.Name, "master", d.Master, "err", err)
		return SyncResult{}, opError(ErrSyncFailed, d.Name, "", opError(ErrTransferFailed, d.Name, "", err))
	}

	res, err := s.reconcile(ctx, d, Flatten(d, live))
	if err != nil {
		metrics.SyncTotal.WithLabelValues("failed").Inc()
		return res, opError(ErrSyncFailed, d.Name, "", err)
	}
	if err := s.domains.MarkSynced(ctx, d.ID, s.now()); err != nil {
		s.logger.Warn("failed to store sync timestamp", "domain", d.Name, "err", err)
	}

	metrics.SyncTotal.WithLabelValues("ok").Inc()
	metrics.SyncChanges.WithLabelValues("insert").Add(float64(res.Inserted))
	metrics.SyncChanges.WithLabelValues("delete").Add(float64(res.Deleted))
	s.logger.Debug("zone synchronized", "domain", d.Name, "records", len(live), "inserted", res.Inserted, "deleted", res.Deleted)
	return res, nil
}

// A failed lookup is not an error, only a reason to transfer.
func (s *Synchronizer) fresh(ctx context.Context, d *model.Domain) bool {
	last, ok, err := s.domains.LastSynced(ctx, d.ID)
	if err != nil {
		s.logger.Debug("freshness lookup failed", "domain", d.Name, "err", err)
		return false
	}
	return ok && s.now().Sub(last) < s.freshness
}

func (s *Synchronizer) reconcile(ctx context.Context, d *model.Domain, candidates []model.ZoneRecord) (SyncResult, error) {
	var res SyncResult

	current, err := s.records.ListRecords(ctx, d.ID)
	if err != nil {
		return res, fmt.Errorf("list cached records: %w", err)
	}
	clients, err := s.clients.ListClients(ctx, d.ID)
	if err != nil {
		return res, fmt.Errorf("list clients: %w", err)
	}
	labels := make(map[string]bool, len(clients))
	for _, c := range clients {
		labels[strings.ToLower(c.Label)] = true
	}

	index := make(map[RecordKey][]model.CachedRecord, len(current))
	for _, rec := range current {
		k := KeyOf(rec)
		index[k] = append(index[k], rec)
	}

	now := s.now()
	for _, c := range candidates {
		k := zoneKey(c)
		if matches := index[k]; len(matches) > 0 {
			index[k] = matches[1:]
			continue
		}
		rec := &model.CachedRecord{
			DomainID:    d.ID,
			Name:        k.Name,
			TTL:         k.TTL,
			Class:       k.Class,
			Type:        k.Type,
			Data:        k.Data,
			Origin:      originOf(k.Name, labels),
			RefreshedAt: now,
		}
		if err := s.records.InsertRecord(ctx, rec); err != nil {
			return res, fmt.Errorf("insert %s: %w", k, err)
		}
		res.Inserted++
	}

	// Whatever was not consumed above is no longer live. Walk current to keep
	// deletion order stable.
	for _, rec := range current {
		k := KeyOf(rec)
		left := index[k]
		if len(left) == 0 || left[0].ID != rec.ID {
			continue
		}
		index[k] = left[1:]
		if err := s.records.DeleteRecord(ctx, rec.ID); err != nil {
			return res, fmt.Errorf("delete %s: %w", k, err)
		}
		res.Deleted++
	}
	return res, nil
}

// Flatten turns transferred records into cache candidates: DNSSEC types are
// dropped and owner names become zone-relative, the apex being "".
func Flatten(d *model.Domain, live []model.ZoneRecord) []model.ZoneRecord {
	zone := d.FQDN()
	out := make([]model.ZoneRecord, 0, len(live))
	for _, r := range live {
		typ := strings.TrimSpace(r.Type)
		if skippedTypes[strings.ToUpper(typ)] {
			continue
		}
		out = append(out, model.ZoneRecord{
			Name:  relativeName(r.Name, zone),
			TTL:   r.TTL,
			Class: strings.TrimSpace(r.Class),
			Type:  typ,
			Data:  strings.TrimSpace(r.Data),
		})
	}
	return out
}

func relativeName(name, zone string) string {
	name = strings.TrimSpace(name)
	if name == "@" || strings.EqualFold(name, zone) {
		return ""
	}
	suffix := "." + zone
	if len(name) > len(suffix) && strings.EqualFold(name[len(name)-len(suffix):], suffix) {
		return name[:len(name)-len(suffix)]
	}
	return name
}

// originOf reports whether name belongs to a client. labels holds
// lowercased client labels.
func originOf(name string, labels map[string]bool) model.Origin {
	if labels[strings.ToLower(name)] {
		return model.OriginDynamic
	}
	return model.OriginStatic
}

func domainLockKey(id int64) string {
	return fmt.Sprintf("domain:%d", id)
}
