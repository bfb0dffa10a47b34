package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dnsmanager/internal/config"
	"dnsmanager/internal/model"
)

type session struct {
	csrf, username string
	expires        time.Time
}

type fakeStore struct {
	sessions map[string]session
	users    map[string]*model.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: map[string]session{},
		users: map[string]*model.User{
			"alice": {Username: "alice", Role: RoleAdmin, Active: true},
			"bob":   {Username: "bob", Role: RoleEditor, Active: true},
			"carol": {Username: "carol", Role: RoleEditor, Active: false},
		},
	}
}

func (f *fakeStore) EnsureSessionSecret(context.Context) (string, error) { return "s3cret", nil }

func (f *fakeStore) CreateSession(_ context.Context, token, csrf, username string, expiresAt time.Time) error {
	f.sessions[token] = session{csrf: csrf, username: username, expires: expiresAt}
	return nil
}

func (f *fakeStore) GetSession(_ context.Context, token string) (string, string, time.Time, error) {
	s, ok := f.sessions[token]
	if !ok {
		return "", "", time.Time{}, nil
	}
	return s.username, s.csrf, s.expires, nil
}

func (f *fakeStore) DeleteSession(_ context.Context, token string) error {
	delete(f.sessions, token)
	return nil
}

func (f *fakeStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	return f.users[username], nil
}

func login(t *testing.T, sm *SessionManager, username string) (*http.Cookie, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	csrf, err := sm.CreateSession(rec, httptest.NewRequest(http.MethodPost, "/login", nil), username)
	require.NoError(t, err)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0], csrf
}

func TestRequireAuth(t *testing.T) {
	store := newFakeStore()
	sm, err := NewSessionManager(context.Background(), store)
	require.NoError(t, err)

	var seen *model.User
	h := sm.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		seen = UserFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/domains", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Authentication required"}`, rec.Body.String())

	cookie, csrf := login(t, sm, "bob")

	req := httptest.NewRequest(http.MethodGet, "/api/domains", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "bob", seen.Username)

	req = httptest.NewRequest(http.MethodPost, "/api/domains", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code, "missing CSRF header")

	req = httptest.NewRequest(http.MethodPost, "/api/domains", nil)
	req.AddCookie(cookie)
	req.Header.Set("X-CSRF-Token", csrf)
	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSessionExpiresAndInactiveUsers(t *testing.T) {
	store := newFakeStore()
	sm, err := NewSessionManager(context.Background(), store)
	require.NoError(t, err)
	h := sm.RequireAuth(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	cookie, _ := login(t, sm, "carol")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "inactive account")

	cookie, _ = login(t, sm, "bob")
	sm.now = func() time.Time { return time.Now().Add(sessionMaxAge + time.Minute) }
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "expired session")
}

func TestRequireAdmin(t *testing.T) {
	store := newFakeStore()
	sm, err := NewSessionManager(context.Background(), store)
	require.NoError(t, err)
	h := sm.RequireAdmin(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	for user, want := range map[string]int{"alice": http.StatusNoContent, "bob": http.StatusForbidden} {
		cookie, _ := login(t, sm, user)
		req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		h(rec, req)
		assert.Equal(t, want, rec.Code, user)
	}
}

func TestDestroySession(t *testing.T) {
	store := newFakeStore()
	sm, err := NewSessionManager(context.Background(), store)
	require.NoError(t, err)

	cookie, _ := login(t, sm, "bob")
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(cookie)
	sm.DestroySession(httptest.NewRecorder(), req)
	assert.Empty(t, store.sessions)
}

func TestResolveRole(t *testing.T) {
	lc := NewLDAPClient(config.LDAPConfig{GroupMapping: map[string]string{
		"admin":  "cn=dns-admins,ou=groups,dc=example,dc=com",
		"editor": "cn=dns-editors,ou=groups,dc=example,dc=com",
	}})

	role, ok := lc.ResolveRole([]string{"cn=DNS-Editors,ou=groups,dc=example,dc=com", "cn=dns-admins,ou=groups,dc=example,dc=com"})
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, role)

	role, ok = lc.ResolveRole([]string{"cn=dns-editors,ou=groups,dc=example,dc=com"})
	assert.True(t, ok)
	assert.Equal(t, RoleEditor, role)

	_, ok = lc.ResolveRole([]string{"cn=staff,ou=groups,dc=example,dc=com"})
	assert.False(t, ok)
}

func TestGroupFilter(t *testing.T) {
	assert.Equal(t, "(|(member=uid=a\\28b\\29,dc=x)(uniqueMember=uid=a\\28b\\29,dc=x))",
		GroupFilter("", "uid=a(b),dc=x", "a"))
	assert.Equal(t, "(memberUid=jdoe)", GroupFilter("(memberUid=%u)", "uid=jdoe,dc=x", "jdoe"))
}

func TestLDAPRejectsEmptyPassword(t *testing.T) {
	lc := NewLDAPClient(config.LDAPConfig{URL: "ldap://127.0.0.1:1"})
	_, err := lc.Authenticate("bob", "")
	assert.Error(t, err)
}
