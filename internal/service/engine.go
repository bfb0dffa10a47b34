package service

import (
	"context"
	"fmt"
	"log/slog"

	"dnsmanager/internal/metrics"
	"dnsmanager/internal/model"
)

// UpdateEngine issues one signed update per Apply call. It never retries;
// a logical replace is two calls made by the caller, delete before add.
type UpdateEngine struct {
	transport Transport
	logger    *slog.Logger
}

func NewUpdateEngine(transport Transport, logger *slog.Logger) *UpdateEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &UpdateEngine{transport: transport, logger: logger}
}

func (e *UpdateEngine) Apply(ctx context.Context, d *model.Domain, ch model.Change) error {
	switch ch.Op {
	case model.OpAdd, model.OpDelete, model.OpUpdate:
	default:
		return invalid("unknown update operation %q", ch.Op)
	}

	err := e.transport.Update(ctx, d.Endpoint(), ch)
	metrics.UpdatesTotal.WithLabelValues(string(ch.Op), metrics.Result(err)).Inc()
	if err != nil {
		e.logger.Warn("dynamic update failed", "domain", d.Name, "op", ch.Op, "fqdn", ch.FQDN, "type", ch.Type, "err", err)
		return opError(ErrUpdateFailed, d.Name, describe(ch), err)
	}
	e.logger.Info("dynamic update applied", "domain", d.Name, "op", ch.Op, "fqdn", ch.FQDN, "type", ch.Type, "data", ch.Data)
	return nil
}

func describe(ch model.Change) string {
	return fmt.Sprintf("%s %s %d %s %s", ch.Op, ch.FQDN, ch.TTL, ch.Type, ch.Data)
}
