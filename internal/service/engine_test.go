package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dnsmanager/internal/model"
)

func TestApply(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ch := model.Change{Op: model.OpUpdate, TTL: 60, Type: "A", FQDN: "h.example.com.", Data: "192.0.2.1"}
	require.NoError(t, h.engine.Apply(ctx, h.domain, ch))
	require.Len(t, h.transport.Calls, 1)
	assert.Equal(t, ch, h.transport.Calls[0].Change)
	assert.Equal(t, "example.com.", h.transport.Calls[0].Zone)

	err := h.engine.Apply(ctx, h.domain, model.Change{Op: "upsert", Type: "A", FQDN: "h.example.com.", Data: "192.0.2.1"})
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Len(t, h.transport.Calls, 1)
}

func TestApplyFailureKeepsCause(t *testing.T) {
	h := newHarness(t)
	cause := errors.New("NOTAUTH")
	h.transport.FailUpdateAt = 1
	h.transport.UpdateErr = cause

	err := h.engine.Apply(context.Background(), h.domain, model.Change{Op: model.OpAdd, TTL: 60, Type: "A", FQDN: "h.example.com.", Data: "192.0.2.1"})
	assert.ErrorIs(t, err, ErrUpdateFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, h.transport.Count("update"), "no retry")
}
