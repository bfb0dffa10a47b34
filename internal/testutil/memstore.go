// Package testutil holds in-memory fakes of the service ports.
package testutil

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"dnsmanager/internal/model"
)

// MemStore implements every service store in memory. Fail* hooks inject
// errors for a given call.
type MemStore struct {
	mu       sync.Mutex
	nextID   int64
	Domains  map[int64]*model.Domain
	Clients  map[int64]*model.DynamicClient
	Records  map[int64]*model.CachedRecord
	Synced   map[int64]time.Time
	Pending  map[string]*model.PendingOperation
	Inserted []model.CachedRecord
	Deleted  []int64

	FailList    error
	FailInsert  error
	FailPending error
}

func NewMemStore() *MemStore {
	return &MemStore{
		Domains: make(map[int64]*model.Domain),
		Clients: make(map[int64]*model.DynamicClient),
		Records: make(map[int64]*model.CachedRecord),
		Synced:  make(map[int64]time.Time),
		Pending: make(map[string]*model.PendingOperation),
	}
}

func (m *MemStore) id() int64 {
	m.nextID++
	return m.nextID
}

// AddDomain stores d and assigns it an id.
func (m *MemStore) AddDomain(d model.Domain) *model.Domain {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = m.id()
	m.Domains[d.ID] = &d
	return &d
}

// Seed stores cached records without counting them as inserts.
func (m *MemStore) Seed(domainID int64, recs ...model.CachedRecord) []model.CachedRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.CachedRecord, 0, len(recs))
	for _, r := range recs {
		r.ID = m.id()
		r.DomainID = domainID
		if r.Origin == "" {
			r.Origin = model.OriginStatic
		}
		cp := r
		m.Records[r.ID] = &cp
		out = append(out, r)
	}
	return out
}

// ResetCounters forgets recorded inserts and deletes.
func (m *MemStore) ResetCounters() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Inserted = nil
	m.Deleted = nil
}

func (m *MemStore) ListRecords(_ context.Context, domainID int64) ([]model.CachedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailList != nil {
		return nil, m.FailList
	}
	var out []model.CachedRecord
	for _, r := range m.Records {
		if r.DomainID == domainID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) GetRecord(_ context.Context, domainID, id int64) (*model.CachedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Records[id]
	if !ok || r.DomainID != domainID {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *MemStore) InsertRecord(_ context.Context, rec *model.CachedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailInsert != nil {
		return m.FailInsert
	}
	rec.ID = m.id()
	cp := *rec
	m.Records[rec.ID] = &cp
	m.Inserted = append(m.Inserted, cp)
	return nil
}

func (m *MemStore) DeleteRecord(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Records, id)
	m.Deleted = append(m.Deleted, id)
	return nil
}

func (m *MemStore) RetagRecords(_ context.Context, domainID int64, name string, origin model.Origin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.Records {
		if r.DomainID == domainID && strings.EqualFold(r.Name, name) {
			r.Origin = origin
		}
	}
	return nil
}

func (m *MemStore) GetDomain(_ context.Context, id int64) (*model.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.Domains[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *MemStore) LastSynced(_ context.Context, domainID int64) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Synced[domainID]
	return t, ok, nil
}

func (m *MemStore) MarkSynced(_ context.Context, domainID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Synced[domainID] = at
	return nil
}

func (m *MemStore) ListClients(_ context.Context, domainID int64) ([]model.DynamicClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DynamicClient
	for _, c := range m.Clients {
		if c.DomainID == domainID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) GetClient(_ context.Context, id int64) (*model.DynamicClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Clients[id]
	if !ok {
		return nil, nil
	}
	return m.withDomain(*c), nil
}

func (m *MemStore) GetClientBySecretHash(_ context.Context, hash string) (*model.DynamicClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.Clients {
		if c.SecretHash == hash {
			return m.withDomain(*c), nil
		}
	}
	return nil, nil
}

func (m *MemStore) withDomain(c model.DynamicClient) *model.DynamicClient {
	if d, ok := m.Domains[c.DomainID]; ok {
		cp := *d
		c.Domain = &cp
	}
	return &c
}

func (m *MemStore) CreateClient(_ context.Context, c *model.DynamicClient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.Clients {
		if existing.DomainID == c.DomainID && existing.Label == c.Label {
			return errors.New("duplicate client")
		}
	}
	c.ID = m.id()
	cp := *c
	cp.Domain = nil
	m.Clients[c.ID] = &cp
	return nil
}

func (m *MemStore) UpdateClientSecret(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.Clients[id]; ok {
		c.SecretHash = hash
	}
	return nil
}

func (m *MemStore) SetClientEnabled(_ context.Context, id int64, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.Clients[id]; ok {
		c.Enabled = enabled
	}
	return nil
}

func (m *MemStore) DeleteClient(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Clients, id)
	return nil
}

func (m *MemStore) CreatePending(_ context.Context, op *model.PendingOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPending != nil {
		return m.FailPending
	}
	cp := *op
	cp.Steps = append([]model.Step(nil), op.Steps...)
	m.Pending[op.ID] = &cp
	return nil
}

func (m *MemStore) UpdatePending(_ context.Context, op *model.PendingOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.Pending[op.ID]; ok {
		p.Completed = op.Completed
		p.LastError = op.LastError
	}
	return nil
}

func (m *MemStore) DeletePending(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Pending, id)
	return nil
}

func (m *MemStore) DeletePendingBySubject(_ context.Context, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.Pending {
		if p.Subject == subject {
			delete(m.Pending, id)
		}
	}
	return nil
}

func (m *MemStore) ListPending(_ context.Context) ([]model.PendingOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PendingOperation
	for _, p := range m.Pending {
		cp := *p
		cp.Steps = append([]model.Step(nil), p.Steps...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RecordNames returns the cached names of a domain in id order.
func (m *MemStore) RecordNames(domainID int64) []string {
	recs, _ := m.ListRecords(context.Background(), domainID)
	names := make([]string, 0, len(recs))
	for _, r := range recs {
		names = append(names, r.Name)
	}
	return names
}

func (m *MemStore) ListDomains(_ context.Context) ([]model.Domain, error) {
	return m.domainsWhere(func(*model.Domain) bool { return true }), nil
}

func (m *MemStore) ListDomainsForUser(_ context.Context, username string) ([]model.Domain, error) {
	return m.domainsWhere(func(d *model.Domain) bool { return d.OwnedBy(username) }), nil
}

func (m *MemStore) domainsWhere(keep func(*model.Domain) bool) []model.Domain {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Domain
	for _, d := range m.Domains {
		if keep(d) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *MemStore) GetDomainByName(_ context.Context, name string) (*model.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.Domains {
		if d.Name == name {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemStore) CreateDomain(_ context.Context, d *model.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.Domains {
		if existing.Name == d.Name {
			return errors.New("duplicate domain name")
		}
	}
	d.ID = m.id()
	cp := *d
	m.Domains[d.ID] = &cp
	return nil
}

func (m *MemStore) UpdateDomain(_ context.Context, d *model.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.Domains[d.ID]
	if !ok {
		return errors.New("no such domain")
	}
	cp := *d
	cp.Name = existing.Name
	m.Domains[d.ID] = &cp
	return nil
}

// DeleteDomain cascades like the foreign keys of the schema.
func (m *MemStore) DeleteDomain(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Domains, id)
	delete(m.Synced, id)
	for cid, c := range m.Clients {
		if c.DomainID == id {
			delete(m.Clients, cid)
		}
	}
	for rid, r := range m.Records {
		if r.DomainID == id {
			delete(m.Records, rid)
		}
	}
	for pid, p := range m.Pending {
		if p.DomainID == id {
			delete(m.Pending, pid)
		}
	}
	return nil
}
