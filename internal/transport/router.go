package transport

import (
	"context"
	"fmt"

	"dnsmanager/internal/model"
)

// Backend is implemented by DNS and Route53.
type Backend interface {
	Transfer(ctx context.Context, m model.Master) ([]model.ZoneRecord, error)
	Resolve(ctx context.Context, m model.Master, fqdn, rrType string) ([]string, error)
	Update(ctx context.Context, m model.Master, ch model.Change) error
}

// Router picks the backend named by the master; an empty name means RFC 2136.
type Router struct {
	backends map[string]Backend
}

func NewRouter() *Router {
	return &Router{backends: make(map[string]Backend)}
}

func (r *Router) Register(name string, b Backend) *Router {
	r.backends[name] = b
	return r
}

func (r *Router) backend(m model.Master) (Backend, error) {
	name := m.Backend
	if name == "" {
		name = model.BackendRFC2136
	}
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("no transport for backend %q", name)
	}
	return b, nil
}

func (r *Router) Transfer(ctx context.Context, m model.Master) ([]model.ZoneRecord, error) {
	b, err := r.backend(m)
	if err != nil {
		return nil, err
	}
	return b.Transfer(ctx, m)
}

func (r *Router) Resolve(ctx context.Context, m model.Master, fqdn, rrType string) ([]string, error) {
	b, err := r.backend(m)
	if err != nil {
		return nil, err
	}
	return b.Resolve(ctx, m, fqdn, rrType)
}

func (r *Router) Update(ctx context.Context, m model.Master, ch model.Change) error {
	b, err := r.backend(m)
	if err != nil {
		return err
	}
	return b.Update(ctx, m, ch)
}
