package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dnsmanager/internal/lock"
	"dnsmanager/internal/model"
	"dnsmanager/internal/testutil"
)

type harness struct {
	store     *testutil.MemStore
	transport *testutil.FakeTransport
	now       time.Time
	domain    *model.Domain
	locks     *lock.Local

	sync     *Synchronizer
	engine   *UpdateEngine
	journal  *Journal
	rebinder *Rebinder
	clients  *ClientService
	records  *RecordService
}

func newHarness(t *testing.T, zone ...model.ZoneRecord) *harness {
	t.Helper()
	h := &harness{
		store:     testutil.NewMemStore(),
		transport: testutil.NewFakeTransport(zone...),
		now:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	h.domain = h.store.AddDomain(model.Domain{
		Name:       "example.com",
		Master:     "192.0.2.53",
		TSIGSecret: "c2VjcmV0",
		Owners:     []string{"alice"},
	})

	locks := lock.NewLocal()
	h.locks = locks
	h.sync = NewSynchronizer(h.store, h.store, h.store, h.transport, locks, DefaultFreshness, nil).
		WithClock(func() time.Time { return h.now })
	h.engine = NewUpdateEngine(h.transport, nil)
	h.journal = NewJournal(h.store, h.store, h.store, h.engine, h.sync, locks, nil)
	h.rebinder = NewRebinder(h.store, h.transport, h.journal, locks, DefaultRebindTTL, nil)
	h.clients = NewClientService(h.store, h.store, h.store, h.sync, h.journal, locks, nil)
	h.records = NewRecordService(h.store, h.store, h.engine, h.sync, h.journal, locks, nil)
	return h
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *harness) createClient(t *testing.T, label string) (*model.DynamicClient, string) {
	t.Helper()
	c, secret, err := h.clients.CreateClient(context.Background(), h.domain, label)
	require.NoError(t, err)
	return c, secret
}

func (h *harness) pending(t *testing.T) []model.PendingOperation {
	t.Helper()
	ops, err := h.store.ListPending(context.Background())
	require.NoError(t, err)
	return ops
}

func zr(name string, ttl int64, typ, data string) model.ZoneRecord {
	return model.ZoneRecord{Name: name, TTL: ttl, Class: "IN", Type: typ, Data: data}
}

func cr(name string, ttl int64, typ, data string) model.CachedRecord {
	return model.CachedRecord{Name: name, TTL: ttl, Class: "IN", Type: typ, Data: data}
}

func keys(recs []model.CachedRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, KeyOf(r).String())
	}
	return out
}
