package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dnsmanager/internal/model"
)

func TestCreateClient(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.Seed(h.domain.ID, cr("home", 60, "A", "198.51.100.7"), cr("www", 300, "A", "192.0.2.1"))

	c, secret, err := h.clients.CreateClient(ctx, h.domain, " home ")
	require.NoError(t, err)
	assert.Len(t, secret, SecretLength)
	assert.Equal(t, HashSecret(secret), c.SecretHash)
	assert.Equal(t, "home.example.com.", c.FQDN())
	assert.True(t, c.Enabled)

	stored, err := h.store.GetClientBySecretHash(ctx, HashSecret(secret))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, c.ID, stored.ID)

	recs, err := h.store.ListRecords(ctx, h.domain.ID)
	require.NoError(t, err)
	for _, r := range recs {
		if r.Name == "home" {
			assert.Equal(t, model.OriginDynamic, r.Origin)
		} else {
			assert.Equal(t, model.OriginStatic, r.Origin)
		}
	}

	_, _, err = h.clients.CreateClient(ctx, h.domain, "home")
	assert.ErrorIs(t, err, ErrDuplicate)

	for _, bad := range []string{"", "@", "host.other.org.", "bad label"} {
		_, _, err = h.clients.CreateClient(ctx, h.domain, bad)
		assert.ErrorIs(t, err, ErrInvalid, bad)
	}
	assert.Empty(t, h.transport.Calls)
}

func TestRotateSecret(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c, oldSecret := h.createClient(t, "home")

	newSecret, err := h.clients.RotateSecret(ctx, c)
	require.NoError(t, err)
	assert.NotEqual(t, oldSecret, newSecret)
	assert.Equal(t, 1, h.transport.Count("transfer"))

	_, err = h.rebinder.Rebind(ctx, oldSecret, "192.0.2.1")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	_, err = h.rebinder.Rebind(ctx, newSecret, "192.0.2.1")
	assert.NoError(t, err)
}

func TestClientRecords(t *testing.T) {
	h := newHarness(t,
		zr("home.example.com.", 60, "A", "198.51.100.7"),
		zr("home.example.com.", 60, "AAAA", "2001:db8::7"),
		zr("www.example.com.", 300, "A", "192.0.2.1"),
	)
	ctx := context.Background()
	c, _ := h.createClient(t, "home")

	recs, stale, err := h.clients.ClientRecords(ctx, c)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, []string{"home 60 IN A 198.51.100.7", "home 60 IN AAAA 2001:db8::7"}, keys(recs))

	// Always forced, and served from cache when the master is unreachable.
	h.transport.TransferErr = errors.New("timeout")
	recs, stale, err = h.clients.ClientRecords(ctx, c)
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Len(t, recs, 2)
	assert.Equal(t, 2, h.transport.Count("transfer"))
}

func TestDeleteClientCascade(t *testing.T) {
	h := newHarness(t,
		zr("home.example.com.", 60, "A", "198.51.100.7"),
		zr("home.example.com.", 60, "AAAA", "2001:db8::7"),
		zr("www.example.com.", 300, "A", "192.0.2.1"),
	)
	ctx := context.Background()
	c, secret := h.createClient(t, "home")

	require.NoError(t, h.clients.DeleteClient(ctx, c))

	assert.Equal(t, []string{
		"transfer example.com.",
		"update delete home.example.com. A 198.51.100.7",
		"update delete home.example.com. AAAA 2001:db8::7",
	}, h.transport.CallLog())
	assert.Equal(t, []string{"www"}, h.store.RecordNames(h.domain.ID))

	gone, err := h.store.GetClient(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.Empty(t, h.pending(t))

	_, err = h.rebinder.Rebind(ctx, secret, "192.0.2.9")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestClientLabelIgnoresCase(t *testing.T) {
	h := newHarness(t,
		zr("home.example.com.", 60, "A", "198.51.100.7"),
		zr("HOME.example.com.", 60, "TXT", `"laptop"`),
		zr("www.example.com.", 300, "A", "192.0.2.1"),
	)
	ctx := context.Background()
	c, _ := h.createClient(t, "Home")
	assert.Equal(t, "home", c.Label)

	_, _, err := h.clients.CreateClient(ctx, h.domain, "HOME")
	assert.ErrorIs(t, err, ErrDuplicate)

	recs, _, err := h.clients.ClientRecords(ctx, c)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	for _, r := range recs {
		assert.Equal(t, model.OriginDynamic, r.Origin)
	}

	require.NoError(t, h.clients.DeleteClient(ctx, c))
	assert.ElementsMatch(t, []string{
		"update delete home.example.com. A 198.51.100.7",
		`update delete HOME.example.com. TXT "laptop"`,
	}, h.transport.Updates())
	assert.Equal(t, []string{"www"}, h.store.RecordNames(h.domain.ID))
}

func TestDeleteClientPartialFailure(t *testing.T) {
	h := newHarness(t,
		zr("home.example.com.", 60, "A", "198.51.100.7"),
		zr("home.example.com.", 60, "TXT", `"laptop"`),
	)
	ctx := context.Background()
	c, _ := h.createClient(t, "home")
	h.transport.FailUpdateAt = 2

	err := h.clients.DeleteClient(ctx, c)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInternal)

	require.Len(t, h.store.Inserted, 2)
	first, second := h.store.Inserted[0], h.store.Inserted[1]
	assert.Equal(t, []int64{first.ID}, h.store.Deleted)

	recs, err := h.store.ListRecords(ctx, h.domain.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, second.ID, recs[0].ID)

	still, err := h.store.GetClient(ctx, c.ID)
	require.NoError(t, err)
	assert.NotNil(t, still, "client row survives a failed cascade")

	ops := h.pending(t)
	require.Len(t, ops, 1)
	assert.Equal(t, "delete-client", ops[0].Kind)
	assert.Equal(t, 1, ops[0].Completed)
}

func TestDeleteClientTransferFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c, _ := h.createClient(t, "home")
	h.transport.TransferErr = errors.New("refused")

	err := h.clients.DeleteClient(ctx, c)
	assert.ErrorIs(t, err, ErrInternal)
	assert.ErrorIs(t, err, ErrSyncFailed)
	assert.Empty(t, h.transport.Updates())
}

func TestDeleteClientDropsPendingRebind(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c, secret := h.createClient(t, "home")
	h.transport.FailUpdateAt = 1

	_, err := h.rebinder.Rebind(ctx, secret, "192.0.2.9")
	require.Error(t, err)
	require.Len(t, h.pending(t), 1)

	h.transport.Reset()
	require.NoError(t, h.clients.DeleteClient(ctx, c))
	assert.Empty(t, h.pending(t))
}
