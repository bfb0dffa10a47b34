package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dnsmanager/internal/model"
)

func TestSynchronizeIdempotent(t *testing.T) {
	h := newHarness(t,
		zr("example.com.", 3600, "NS", "ns1.example.com."),
		zr("a.example.com.", 60, "A", "1.1.1.1"),
		zr("b.example.com.", 60, "A", "2.2.2.2"),
	)
	ctx := context.Background()

	res, err := h.sync.Synchronize(ctx, h.domain, true)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted)

	h.store.ResetCounters()
	res, err = h.sync.Synchronize(ctx, h.domain, true)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{}, res)
	assert.Empty(t, h.store.Inserted)
	assert.Empty(t, h.store.Deleted)
	assert.Equal(t, 2, h.transport.Count("transfer"))
}

func TestSynchronizeThrottle(t *testing.T) {
	h := newHarness(t, zr("a.example.com.", 60, "A", "1.1.1.1"))
	ctx := context.Background()

	_, err := h.sync.Synchronize(ctx, h.domain, false)
	require.NoError(t, err)

	h.advance(59 * time.Second)
	res, err := h.sync.Synchronize(ctx, h.domain, false)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 1, h.transport.Count("transfer"))

	h.advance(2 * time.Second)
	res, err = h.sync.Synchronize(ctx, h.domain, false)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 2, h.transport.Count("transfer"))

	// force ignores the window
	_, err = h.sync.Synchronize(ctx, h.domain, true)
	require.NoError(t, err)
	assert.Equal(t, 3, h.transport.Count("transfer"))
}

func TestSynchronizeInsertsOnlyNewRecords(t *testing.T) {
	h := newHarness(t,
		zr("a.example.com.", 60, "A", "1.1.1.1"),
		zr("b.example.com.", 60, "A", "2.2.2.2"),
	)
	h.store.Seed(h.domain.ID, cr("a", 60, "A", "1.1.1.1"))

	res, err := h.sync.Synchronize(context.Background(), h.domain, true)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Inserted: 1}, res)
	require.Len(t, h.store.Inserted, 1)
	assert.Equal(t, "b", h.store.Inserted[0].Name)
	assert.Empty(t, h.store.Deleted)
}

func TestSynchronizeDeletesStaleRecords(t *testing.T) {
	h := newHarness(t, zr("a.example.com.", 60, "A", "1.1.1.1"))
	seeded := h.store.Seed(h.domain.ID,
		cr("a", 60, "A", "1.1.1.1"),
		cr("b", 60, "A", "2.2.2.2"),
	)

	res, err := h.sync.Synchronize(context.Background(), h.domain, true)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Deleted: 1}, res)
	assert.Equal(t, []int64{seeded[1].ID}, h.store.Deleted)
	assert.Empty(t, h.store.Inserted)
}

func TestSynchronizeChangedTTLIsReplace(t *testing.T) {
	h := newHarness(t, zr("a.example.com.", 300, "A", "1.1.1.1"))
	seeded := h.store.Seed(h.domain.ID, cr("a", 60, "A", "1.1.1.1"))

	res, err := h.sync.Synchronize(context.Background(), h.domain, true)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Inserted: 1, Deleted: 1}, res)
	assert.Equal(t, []int64{seeded[0].ID}, h.store.Deleted)
}

func TestSynchronizeKeepsDuplicateCount(t *testing.T) {
	h := newHarness(t, zr("a.example.com.", 60, "A", "1.1.1.1"))
	seeded := h.store.Seed(h.domain.ID,
		cr("a", 60, "A", "1.1.1.1"),
		cr("a", 60, "A", "1.1.1.1"),
	)

	res, err := h.sync.Synchronize(context.Background(), h.domain, true)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Deleted: 1}, res)
	assert.Equal(t, []int64{seeded[1].ID}, h.store.Deleted)
}

func TestSynchronizeSkipsDNSSEC(t *testing.T) {
	h := newHarness(t,
		zr("a.example.com.", 60, "A", "1.1.1.1"),
		zr("a.example.com.", 60, "RRSIG", "A 8 3 60 20240601000000 20240501000000 12345 example.com. c2ln"),
		zr("example.com.", 3600, "DNSKEY", "257 3 8 a2V5"),
		zr("a.example.com.", 60, "NSEC", "b.example.com. A RRSIG NSEC"),
		zr("example.com.", 0, "TYPE65534", `\# 5 0801010000`),
	)

	_, err := h.sync.Synchronize(context.Background(), h.domain, true)
	require.NoError(t, err)

	recs, err := h.store.ListRecords(context.Background(), h.domain.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a 60 IN A 1.1.1.1"}, keys(recs))
}

func TestSynchronizeTagsOrigin(t *testing.T) {
	h := newHarness(t,
		zr("example.com.", 3600, "NS", "ns1.example.com."),
		zr("home.example.com.", 60, "A", "198.51.100.7"),
		zr("www.example.com.", 300, "A", "192.0.2.1"),
	)
	h.createClient(t, "home")

	_, err := h.sync.Synchronize(context.Background(), h.domain, true)
	require.NoError(t, err)

	origins := map[string]model.Origin{}
	for _, r := range h.store.Inserted {
		origins[r.Name] = r.Origin
		assert.Equal(t, h.now, r.RefreshedAt)
	}
	assert.Equal(t, map[string]model.Origin{
		"":     model.OriginStatic,
		"home": model.OriginDynamic,
		"www":  model.OriginStatic,
	}, origins)
}

func TestSynchronizeTransferFailureLeavesCache(t *testing.T) {
	h := newHarness(t, zr("a.example.com.", 60, "A", "1.1.1.1"))
	h.store.Seed(h.domain.ID, cr("stale", 60, "A", "9.9.9.9"))
	h.transport.TransferErr = errors.New("connection refused")

	_, err := h.sync.Synchronize(context.Background(), h.domain, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSyncFailed)
	assert.ErrorIs(t, err, ErrTransferFailed)

	var opErr *Error
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "example.com", opErr.Domain)

	assert.Empty(t, h.store.Inserted)
	assert.Empty(t, h.store.Deleted)
	_, synced, _ := h.store.LastSynced(context.Background(), h.domain.ID)
	assert.False(t, synced)

	// Nothing was marked fresh, so the next call transfers again.
	h.transport.TransferErr = nil
	_, err = h.sync.Synchronize(context.Background(), h.domain, false)
	require.NoError(t, err)
	assert.Equal(t, 2, h.transport.Count("transfer"))
}

func TestSynchronizeStoreFailure(t *testing.T) {
	h := newHarness(t, zr("a.example.com.", 60, "A", "1.1.1.1"))
	h.store.FailList = errors.New("db down")

	_, err := h.sync.Synchronize(context.Background(), h.domain, true)
	assert.ErrorIs(t, err, ErrSyncFailed)
	_, synced, _ := h.store.LastSynced(context.Background(), h.domain.ID)
	assert.False(t, synced)
}

func TestFlatten(t *testing.T) {
	d := &model.Domain{Name: "example.com"}
	got := Flatten(d, []model.ZoneRecord{
		zr("example.com.", 3600, "SOA", "ns1.example.com. admin.example.com. 1 7200 3600 1209600 300"),
		zr("@", 3600, "NS", " ns1.example.com. "),
		zr("WWW.Example.COM.", 300, "A", "192.0.2.1"),
		zr("deep.sub.example.com.", 300, "A", "192.0.2.2"),
		zr("relative", 300, "A", "192.0.2.3"),
		zr("example.com.", 60, "rrsig", "ignored"),
	})

	names := make([]string, 0, len(got))
	for _, r := range got {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"", "", "WWW", "deep.sub", "relative"}, names)
	assert.Equal(t, "ns1.example.com.", got[1].Data)
}
