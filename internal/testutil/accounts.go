package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"dnsmanager/internal/model"
)

type session struct {
	csrf, username string
	expires        time.Time
}

// Accounts keeps operator accounts, sessions and the audit log in memory.
// Passwords are stored in the clear.
type Accounts struct {
	mu        sync.Mutex
	users     map[string]*model.User
	passwords map[string]string
	sessions  map[string]session
	Audit     []model.AuditEntry
}

func NewAccounts() *Accounts {
	return &Accounts{
		users:     make(map[string]*model.User),
		passwords: make(map[string]string),
		sessions:  make(map[string]session),
	}
}

func (a *Accounts) HasUsers(context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.users) > 0, nil
}

func (a *Accounts) AuthenticateUser(_ context.Context, username, password string) (*model.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.users[username]
	if !ok || !u.Active || u.AuthSource != "local" || a.passwords[username] != password {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (a *Accounts) CreateLDAPUser(_ context.Context, username, role string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if u, ok := a.users[username]; ok {
		u.Role = role
		u.AuthSource = "ldap"
		return nil
	}
	a.users[username] = &model.User{ID: int64(len(a.users) + 1), Username: username, Role: role, Active: true, AuthSource: "ldap"}
	return nil
}

func (a *Accounts) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.users[username]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (a *Accounts) ListUsers(context.Context) ([]model.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.User, 0, len(a.users))
	for _, u := range a.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *Accounts) CreateUser(_ context.Context, username, password, role string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.users[username]; ok {
		return errors.New("duplicate username")
	}
	a.users[username] = &model.User{ID: int64(len(a.users) + 1), Username: username, Role: role, Active: true, AuthSource: "local"}
	a.passwords[username] = password
	return nil
}

func (a *Accounts) DeleteUser(_ context.Context, username string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.users, username)
	delete(a.passwords, username)
	for token, s := range a.sessions {
		if s.username == username {
			delete(a.sessions, token)
		}
	}
	return nil
}

func (a *Accounts) EnsureSessionSecret(context.Context) (string, error) {
	return "test-session-secret", nil
}

func (a *Accounts) CreateSession(_ context.Context, token, csrfToken, username string, expiresAt time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[token] = session{csrf: csrfToken, username: username, expires: expiresAt}
	return nil
}

func (a *Accounts) GetSession(_ context.Context, token string) (string, string, time.Time, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[token]
	if !ok {
		return "", "", time.Time{}, nil
	}
	return s.username, s.csrf, s.expires, nil
}

func (a *Accounts) DeleteSession(_ context.Context, token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, token)
	return nil
}

func (a *Accounts) LogAudit(_ context.Context, entry model.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry.ID = int64(len(a.Audit) + 1)
	entry.CreatedAt = time.Now()
	a.Audit = append(a.Audit, entry)
	return nil
}

func (a *Accounts) ListAuditLog(_ context.Context, limit, offset int) ([]model.AuditEntry, int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := len(a.Audit)
	var out []model.AuditEntry
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, a.Audit[i])
	}
	return out, total, nil
}

// Actions lists the audited actions in order.
func (a *Accounts) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.Audit))
	for _, e := range a.Audit {
		out = append(out, e.Action)
	}
	return out
}
