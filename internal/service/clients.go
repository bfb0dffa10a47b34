package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"dnsmanager/internal/model"
)

// ClientService manages dynamic clients and the records they own.
type ClientService struct {
	domains DomainStore
	clients ClientStore
	records RecordStore
	sync    *Synchronizer
	journal *Journal
	locks   Locker
	logger  *slog.Logger
}

func NewClientService(domains DomainStore, clients ClientStore, records RecordStore, sync *Synchronizer, journal *Journal, locks Locker, logger *slog.Logger) *ClientService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientService{
		domains: domains,
		clients: clients,
		records: records,
		sync:    sync,
		journal: journal,
		locks:   locks,
		logger:  logger,
	}
}

// CreateClient registers label in d and returns the client with the
// plaintext secret, which is not stored and cannot be shown again.
func (s *ClientService) CreateClient(ctx context.Context, d *model.Domain, label string) (*model.DynamicClient, string, error) {
	label = strings.ToLower(strings.TrimSpace(label))
	if err := validLabel(d, label); err != nil {
		return nil, "", err
	}

	existing, err := s.clients.ListClients(ctx, d.ID)
	if err != nil {
		return nil, "", err
	}
	for _, c := range existing {
		if strings.EqualFold(c.Label, label) {
			return nil, "", fmt.Errorf("client %s: %w", d.RecordFQDN(label), ErrDuplicate)
		}
	}

	secret, err := GenerateSecret(SecretLength)
	if err != nil {
		return nil, "", err
	}
	c := &model.DynamicClient{
		DomainID:   d.ID,
		Label:      label,
		SecretHash: HashSecret(secret),
		Enabled:    true,
	}
	if err := s.clients.CreateClient(ctx, c); err != nil {
		return nil, "", err
	}
	c.Domain = d

	// Records already published under the label are now client-managed.
	if err := s.records.RetagRecords(ctx, d.ID, label, model.OriginDynamic); err != nil {
		s.logger.Warn("failed to retag client records", "fqdn", c.FQDN(), "err", err)
	}
	return c, secret, nil
}

func (s *ClientService) List(ctx context.Context, d *model.Domain) ([]model.DynamicClient, error) {
	clients, err := s.clients.ListClients(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	for i := range clients {
		clients[i].Domain = d
	}
	return clients, nil
}

func (s *ClientService) Get(ctx context.Context, id int64) (*model.DynamicClient, error) {
	c, err := s.clients.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("client %d: %w", id, ErrNotFound)
	}
	return c, nil
}

// RotateSecret replaces the client's secret with a fresh one and returns it.
func (s *ClientService) RotateSecret(ctx context.Context, c *model.DynamicClient) (string, error) {
	secret, err := GenerateSecret(SecretLength)
	if err != nil {
		return "", err
	}
	if err := s.clients.UpdateClientSecret(ctx, c.ID, HashSecret(secret)); err != nil {
		return "", err
	}
	c.SecretHash = HashSecret(secret)

	if d, err := s.domainOf(ctx, c); err == nil {
		if _, err := s.sync.Synchronize(ctx, d, true); err != nil {
			s.logger.Warn("refresh after secret rotation failed", "domain", d.Name, "err", err)
		}
	}
	return secret, nil
}

func (s *ClientService) SetEnabled(ctx context.Context, c *model.DynamicClient, enabled bool) error {
	if err := s.clients.SetClientEnabled(ctx, c.ID, enabled); err != nil {
		return err
	}
	c.Enabled = enabled
	return nil
}

// ClientRecords force-refreshes the domain and returns the cached records
// published under the client's name. A failed refresh is reported through
// stale rather than as an error.
func (s *ClientService) ClientRecords(ctx context.Context, c *model.DynamicClient) ([]model.CachedRecord, bool, error) {
	d, err := s.domainOf(ctx, c)
	if err != nil {
		return nil, false, err
	}
	stale := false
	if _, err := s.sync.Synchronize(ctx, d, true); err != nil {
		stale = true
	}

	all, err := s.records.ListRecords(ctx, d.ID)
	if err != nil {
		return nil, stale, err
	}
	var out []model.CachedRecord
	for _, rec := range all {
		if strings.EqualFold(rec.Name, c.Label) {
			out = append(out, rec)
		}
	}
	return out, stale, nil
}

// DeleteClient retracts every record published under the client's name from
// the master, removing each cached row after its delete succeeds, and then
// removes the client. A failure part way is not rolled back: records already
// processed are gone from both master and cache.
func (s *ClientService) DeleteClient(ctx context.Context, c *model.DynamicClient) error {
	d, err := s.domainOf(ctx, c)
	if err != nil {
		return err
	}
	fqdn := c.FQDN()

	unlock, err := s.locks.Lock(ctx, domainLockKey(d.ID))
	if err != nil {
		return opError(ErrInternal, d.Name, fqdn, err)
	}
	defer unlock()

	if _, err := s.sync.synchronizeLocked(ctx, d, false); err != nil {
		return opError(ErrInternal, d.Name, fqdn, err)
	}

	all, err := s.records.ListRecords(ctx, d.ID)
	if err != nil {
		return opError(ErrInternal, d.Name, fqdn, err)
	}
	var steps []model.Step
	for _, rec := range all {
		if !strings.EqualFold(rec.Name, c.Label) {
			continue
		}
		steps = append(steps, model.Step{
			Change: model.Change{
				Op:   model.OpDelete,
				TTL:  rec.TTL,
				Type: rec.Type,
				FQDN: d.RecordFQDN(rec.Name),
				Data: rec.Data,
			},
			DropRecordID: rec.ID,
		})
	}

	// A pending rebind must never republish a deleted client.
	for _, t := range []string{"A", "AAAA"} {
		if err := s.journal.store.DeletePendingBySubject(ctx, rebindSubject(fqdn, t)); err != nil {
			return opError(ErrInternal, d.Name, fqdn, err)
		}
	}

	if err := s.journal.Run(ctx, d, "delete-client", "client:"+strings.ToLower(fqdn), steps); err != nil {
		return opError(ErrInternal, d.Name, fqdn, err)
	}
	if err := s.clients.DeleteClient(ctx, c.ID); err != nil {
		return opError(ErrInternal, d.Name, fqdn, err)
	}
	s.logger.Info("client deleted", "fqdn", fqdn, "records", len(steps))
	return nil
}

func (s *ClientService) domainOf(ctx context.Context, c *model.DynamicClient) (*model.Domain, error) {
	if c.Domain != nil {
		return c.Domain, nil
	}
	d, err := s.domains.GetDomain(ctx, c.DomainID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("domain %d: %w", c.DomainID, ErrNotFound)
	}
	c.Domain = d
	return d, nil
}
