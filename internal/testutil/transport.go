package testutil

import (
	"context"
	"fmt"
	"sync"

	"dnsmanager/internal/model"
)

// Call is one recorded transport invocation.
type Call struct {
	Method string
	Zone   string
	Change model.Change
	FQDN   string
	Type   string
}

func (c Call) String() string {
	switch c.Method {
	case "update":
		return fmt.Sprintf("update %s %s %s %s", c.Change.Op, c.Change.FQDN, c.Change.Type, c.Change.Data)
	case "resolve":
		return fmt.Sprintf("resolve %s %s", c.FQDN, c.Type)
	default:
		return "transfer " + c.Zone
	}
}

// FakeTransport serves a scripted zone and records every call in order.
type FakeTransport struct {
	mu    sync.Mutex
	Zone  []model.ZoneRecord
	Addrs map[string][]string // "fqdn type" -> rdata
	Calls []Call

	TransferErr error
	ResolveErr  error
	// FailUpdateAt fails the update with that 1-based index.
	FailUpdateAt int
	UpdateErr    error
	updates      int
}

func NewFakeTransport(zone ...model.ZoneRecord) *FakeTransport {
	return &FakeTransport{Zone: zone, Addrs: make(map[string][]string)}
}

func (f *FakeTransport) Transfer(_ context.Context, m model.Master) ([]model.ZoneRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Method: "transfer", Zone: m.Zone})
	if f.TransferErr != nil {
		return nil, f.TransferErr
	}
	return append([]model.ZoneRecord(nil), f.Zone...), nil
}

func (f *FakeTransport) Resolve(_ context.Context, _ model.Master, fqdn, rrType string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Method: "resolve", FQDN: fqdn, Type: rrType})
	if f.ResolveErr != nil {
		return nil, f.ResolveErr
	}
	return append([]string(nil), f.Addrs[fqdn+" "+rrType]...), nil
}

func (f *FakeTransport) Update(_ context.Context, m model.Master, ch model.Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	f.Calls = append(f.Calls, Call{Method: "update", Zone: m.Zone, Change: ch})
	if f.FailUpdateAt == f.updates {
		if f.UpdateErr != nil {
			return f.UpdateErr
		}
		return fmt.Errorf("update %d refused", f.updates)
	}
	return nil
}

// Updates returns the recorded update calls.
func (f *FakeTransport) Updates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.Calls {
		if c.Method == "update" {
			out = append(out, c.String())
		}
	}
	return out
}

// CallLog returns every recorded call.
func (f *FakeTransport) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		out = append(out, c.String())
	}
	return out
}

func (f *FakeTransport) Count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset forgets calls and failure injection.
func (f *FakeTransport) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = nil
	f.updates = 0
	f.FailUpdateAt = 0
	f.UpdateErr = nil
	f.TransferErr = nil
	f.ResolveErr = nil
}
