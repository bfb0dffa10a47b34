package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/miekg/dns"

	"dnsmanager/internal/model"
)

const DefaultTSIGAlgorithm = "hmac-sha256"

var tsigAlgorithms = map[string]bool{
	"hmac-md5":    true,
	"hmac-sha1":   true,
	"hmac-sha224": true,
	"hmac-sha256": true,
	"hmac-sha384": true,
	"hmac-sha512": true,
}

type DomainAdminStore interface {
	DomainStore
	ListDomains(ctx context.Context) ([]model.Domain, error)
	ListDomainsForUser(ctx context.Context, username string) ([]model.Domain, error)
	GetDomainByName(ctx context.Context, name string) (*model.Domain, error)
	CreateDomain(ctx context.Context, d *model.Domain) error
	UpdateDomain(ctx context.Context, d *model.Domain) error
	DeleteDomain(ctx context.Context, id int64) error
}

// DomainService administers the managed zones.
type DomainService struct {
	store  DomainAdminStore
	locks  Locker
	logger *slog.Logger
}

func NewDomainService(store DomainAdminStore, locks Locker, logger *slog.Logger) *DomainService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DomainService{store: store, locks: locks, logger: logger}
}

// List returns every domain for admins and the owned ones otherwise.
func (s *DomainService) List(ctx context.Context, username string, admin bool) ([]model.Domain, error) {
	if admin {
		return s.store.ListDomains(ctx)
	}
	return s.store.ListDomainsForUser(ctx, username)
}

func (s *DomainService) Get(ctx context.Context, id int64) (*model.Domain, error) {
	d, err := s.store.GetDomain(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("domain %d: %w", id, ErrNotFound)
	}
	return d, nil
}

func (s *DomainService) Create(ctx context.Context, in model.Domain) (*model.Domain, error) {
	d := NormalizeDomain(in)
	if err := ValidateDomain(d); err != nil {
		return nil, err
	}
	existing, err := s.store.GetDomainByName(ctx, d.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("domain %s: %w", d.Name, ErrDuplicate)
	}
	if err := s.store.CreateDomain(ctx, &d); err != nil {
		return nil, err
	}
	s.logger.Info("domain created", "domain", d.Name, "backend", d.Backend)
	return &d, nil
}

// Update replaces the settings of domain id. The zone name is fixed at
// creation; an empty name in the input keeps it.
func (s *DomainService) Update(ctx context.Context, id int64, in model.Domain) (*model.Domain, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	d := NormalizeDomain(in)
	if d.Name != "" && d.Name != current.Name {
		return nil, invalid("domain name cannot be changed")
	}
	d.ID = current.ID
	d.Name = current.Name
	d.LastSyncedAt = current.LastSyncedAt
	d.CreatedAt = current.CreatedAt
	if err := ValidateDomain(d); err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, domainLockKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()
	if err := s.store.UpdateDomain(ctx, &d); err != nil {
		return nil, err
	}
	s.logger.Info("domain updated", "domain", d.Name)
	return &d, nil
}

// Delete removes the domain; storage cascades to its clients, cached
// records and pending operations.
func (s *DomainService) Delete(ctx context.Context, id int64) error {
	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	unlock, err := s.locks.Lock(ctx, domainLockKey(id))
	if err != nil {
		return err
	}
	defer unlock()
	if err := s.store.DeleteDomain(ctx, id); err != nil {
		return err
	}
	s.logger.Info("domain deleted", "domain", d.Name)
	return nil
}

func NormalizeDomain(d model.Domain) model.Domain {
	d.Name = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(d.Name)), ".")
	d.Master = strings.TrimSpace(d.Master)
	d.Backend = strings.ToLower(strings.TrimSpace(d.Backend))
	if d.Backend == "" {
		d.Backend = model.BackendRFC2136
	}
	d.TSIGKeyName = strings.TrimSpace(d.TSIGKeyName)
	d.TSIGSecret = strings.TrimSpace(d.TSIGSecret)
	d.TSIGAlgorithm = strings.ToLower(strings.TrimSpace(d.TSIGAlgorithm))
	if d.TSIGAlgorithm == "" {
		d.TSIGAlgorithm = DefaultTSIGAlgorithm
	}
	owners := make([]string, 0, len(d.Owners))
	seen := make(map[string]bool)
	for _, o := range d.Owners {
		o = strings.TrimSpace(o)
		if o != "" && !seen[o] {
			seen[o] = true
			owners = append(owners, o)
		}
	}
	d.Owners = owners
	return d
}

func ValidateDomain(d model.Domain) error {
	if d.Name == "" {
		return invalid("domain name is required")
	}
	for _, r := range d.Name {
		if !hostnameRune(r) {
			return invalid("domain name %q contains invalid characters", d.Name)
		}
	}
	if _, ok := dns.IsDomainName(d.Name); !ok {
		return invalid("%q is not a valid domain name", d.Name)
	}
	if d.Master == "" {
		return invalid("master is required")
	}

	switch d.Backend {
	case model.BackendRFC2136:
		if strings.ContainsAny(d.Master, " /") {
			return invalid("master %q must be a host or host:port", d.Master)
		}
	case model.BackendRoute53:
		return nil
	default:
		return invalid("unknown backend %q", d.Backend)
	}

	if !tsigAlgorithms[d.TSIGAlgorithm] {
		return invalid("unsupported TSIG algorithm %q", d.TSIGAlgorithm)
	}
	if d.TSIGKeyName != "" {
		if _, ok := dns.IsDomainName(d.TSIGKeyName); !ok {
			return invalid("%q is not a valid TSIG key name", d.TSIGKeyName)
		}
	}
	if d.TSIGSecret != "" {
		if _, err := base64.StdEncoding.DecodeString(d.TSIGSecret); err != nil {
			return invalid("TSIG secret must be base64")
		}
	}
	return nil
}
