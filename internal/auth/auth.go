package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"dnsmanager/internal/model"
)

const (
	cookieName    = "dnsmanager_session"
	csrfHeader    = "X-CSRF-Token"
	sessionMaxAge = 24 * time.Hour
)

// Store is the session and account storage the manager needs.
type Store interface {
	EnsureSessionSecret(ctx context.Context) (string, error)
	CreateSession(ctx context.Context, token, csrfToken, username string, expiresAt time.Time) error
	GetSession(ctx context.Context, token string) (string, string, time.Time, error)
	DeleteSession(ctx context.Context, token string) error
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
}

type SessionManager struct {
	secret string
	store  Store
	now    func() time.Time
}

func NewSessionManager(ctx context.Context, store Store) (*SessionManager, error) {
	secret, err := store.EnsureSessionSecret(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load session secret: %w", err)
	}
	return &SessionManager{secret: secret, store: store, now: time.Now}, nil
}

// CreateSession sets the session cookie and returns the CSRF token the
// client must echo in the X-CSRF-Token header on mutating requests.
func (sm *SessionManager) CreateSession(w http.ResponseWriter, r *http.Request, username string) (string, error) {
	token := generateToken()
	csrfToken := generateToken()
	signed := sm.sign(token)
	expiresAt := sm.now().Add(sessionMaxAge)

	if err := sm.store.CreateSession(r.Context(), signed, csrfToken, username, expiresAt); err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(sessionMaxAge.Seconds()),
	})
	return csrfToken, nil
}

func (sm *SessionManager) DestroySession(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(cookieName); err == nil {
		if err := sm.store.DeleteSession(r.Context(), cookie.Value); err != nil {
			slog.Warn("failed to delete session", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:   cookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

func (sm *SessionManager) sessionInfo(r *http.Request) (string, string, bool) {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return "", "", false
	}
	username, csrfToken, expiresAt, err := sm.store.GetSession(r.Context(), cookie.Value)
	if err != nil || username == "" || sm.now().After(expiresAt) {
		return "", "", false
	}
	return username, csrfToken, true
}

// CurrentUser resolves the session of r to an active account.
func (sm *SessionManager) CurrentUser(r *http.Request) (*model.User, string, bool) {
	username, csrfToken, ok := sm.sessionInfo(r)
	if !ok {
		return nil, "", false
	}
	user, err := sm.store.GetUserByUsername(r.Context(), username)
	if err != nil || user == nil || !user.Active {
		return nil, "", false
	}
	return user, csrfToken, true
}

type ctxKey struct{}

func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFrom returns the account attached by RequireAuth.
func UserFrom(ctx context.Context) *model.User {
	u, _ := ctx.Value(ctxKey{}).(*model.User)
	return u
}

func IsAdmin(u *model.User) bool {
	return u != nil && u.Role == RoleAdmin
}

// RequireAuth rejects requests without a live session and, for mutating
// methods, without the matching CSRF header.
func (sm *SessionManager) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, csrfToken, ok := sm.CurrentUser(r)
		if !ok {
			deny(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
			submitted := r.Header.Get(csrfHeader)
			if submitted == "" || !hmac.Equal([]byte(submitted), []byte(csrfToken)) {
				deny(w, http.StatusForbidden, "Invalid CSRF token")
				return
			}
		}
		next(w, r.WithContext(WithUser(r.Context(), user)))
	}
}

func (sm *SessionManager) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return sm.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(UserFrom(r.Context())) {
			deny(w, http.StatusForbidden, "Forbidden")
			return
		}
		next(w, r)
	})
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (sm *SessionManager) sign(token string) string {
	mac := hmac.New(sha256.New, []byte(sm.secret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

func generateToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
