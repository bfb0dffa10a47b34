package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"

	"dnsmanager/internal/metrics"
	"dnsmanager/internal/model"
)

const DefaultRebindTTL = 60

type RebindResult struct {
	FQDN         string
	Type         string
	OldAddresses []string
	NewAddress   string
}

// Rebinder republishes a dynamic client's address: it resolves the current
// records of the matching family on the master, retracts each of them and
// asserts the observed address. It is last-write-wins with best-effort
// retraction; a failure part way leaves earlier steps applied.
type Rebinder struct {
	clients   ClientStore
	transport Transport
	journal   *Journal
	locks     Locker
	ttl       int64
	logger    *slog.Logger
}

func NewRebinder(clients ClientStore, transport Transport, journal *Journal, locks Locker, ttl int64, logger *slog.Logger) *Rebinder {
	if ttl <= 0 {
		ttl = DefaultRebindTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rebinder{
		clients:   clients,
		transport: transport,
		journal:   journal,
		locks:     locks,
		ttl:       ttl,
		logger:    logger,
	}
}

func (r *Rebinder) Rebind(ctx context.Context, secret, observed string) (*RebindResult, error) {
	res, err := r.rebind(ctx, secret, observed)
	switch {
	case err == nil:
		metrics.RebindsTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrAuthenticationFailed):
		metrics.RebindsTotal.WithLabelValues("unauthorized").Inc()
	default:
		metrics.RebindsTotal.WithLabelValues("failed").Inc()
	}
	return res, err
}

func (r *Rebinder) rebind(ctx context.Context, secret, observed string) (*RebindResult, error) {
	client, err := r.clients.GetClientBySecretHash(ctx, HashSecret(secret))
	if err != nil {
		return nil, opError(ErrInternal, "", "", fmt.Errorf("client lookup: %w", err))
	}
	// Unknown and disabled clients are indistinguishable to the caller.
	if client == nil || !client.Enabled || client.Domain == nil {
		return nil, opError(ErrAuthenticationFailed, "", "", nil)
	}

	addr, rrType, err := ClassifyAddress(observed)
	if err != nil {
		return nil, err
	}

	d := client.Domain
	fqdn := client.FQDN()
	r.logger.Info("updating client address", "fqdn", fqdn, "address", addr)

	// The domain lock orders rebinds against client deletion and journal
	// resume, which take the same key.
	unlock, err := r.locks.Lock(ctx, domainLockKey(d.ID))
	if err != nil {
		return nil, opError(ErrInternal, d.Name, fqdn, err)
	}
	defer unlock()

	current, err := r.clients.GetClient(ctx, client.ID)
	if err != nil {
		return nil, opError(ErrInternal, d.Name, fqdn, fmt.Errorf("client lookup: %w", err))
	}
	if current == nil || !current.Enabled || current.SecretHash != client.SecretHash {
		return nil, opError(ErrAuthenticationFailed, "", "", nil)
	}

	// The master, not the cache, is the truth here: a stale cache would cause
	// bogus deletes.
	old, err := r.transport.Resolve(ctx, d.Endpoint(), fqdn, rrType)
	if err != nil {
		r.logger.Warn("resolve failed", "fqdn", fqdn, "type", rrType, "err", err)
		return nil, opError(ErrInternal, d.Name, fqdn, opError(ErrResolveFailed, d.Name, fqdn, err))
	}

	steps := make([]model.Step, 0, len(old)+1)
	for _, a := range old {
		steps = append(steps, model.Step{Change: model.Change{Op: model.OpDelete, TTL: r.ttl, Type: rrType, FQDN: fqdn, Data: a}})
	}
	steps = append(steps, model.Step{Change: model.Change{Op: model.OpUpdate, TTL: r.ttl, Type: rrType, FQDN: fqdn, Data: addr}})

	if err := r.journal.Run(ctx, d, "rebind", rebindSubject(fqdn, rrType), steps); err != nil {
		return nil, opError(ErrInternal, d.Name, fqdn, err)
	}

	return &RebindResult{FQDN: fqdn, Type: rrType, OldAddresses: old, NewAddress: addr}, nil
}

// ClassifyAddress parses an observed client address and selects the record
// type for its family.
func ClassifyAddress(observed string) (string, string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(observed))
	if err != nil {
		return "", "", invalid("observed address %q: %v", observed, err)
	}
	addr = addr.Unmap()
	if addr.Is4() {
		return addr.String(), "A", nil
	}
	return addr.WithZone("").String(), "AAAA", nil
}

func rebindSubject(fqdn, rrType string) string {
	return "rebind:" + strings.ToLower(fqdn) + ":" + rrType
}
