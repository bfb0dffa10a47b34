package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"dnsmanager/internal/auth"
	"dnsmanager/internal/model"
)

type AuthHandler struct {
	accounts   Accounts
	sessionMgr *auth.SessionManager
	ldap       auth.Directory
	audit      *Auditor
	logger     *slog.Logger
}

// NewAuthHandler wires login; ldap may be nil when directory login is off.
func NewAuthHandler(accounts Accounts, sm *auth.SessionManager, ldap auth.Directory, audit *Auditor, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{accounts: accounts, sessionMgr: sm, ldap: ldap, audit: audit, logger: logger}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login tries the directory first when configured. Local accounts remain
// usable alongside it only for admins, as a break-glass path.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var user *model.User
	authMethod := "local"

	if h.ldap != nil {
		result, err := h.ldap.Authenticate(req.Username, req.Password)
		if err != nil {
			h.logger.Debug("ldap login failed", "username", req.Username, "err", err)
		}
		if err == nil && result != nil {
			role, allowed := h.ldap.ResolveRole(result.Groups)
			if !allowed {
				writeMessage(w, http.StatusForbidden, "Access denied: you are not in an authorized group")
				return
			}
			if err := h.accounts.CreateLDAPUser(r.Context(), result.Username, role); err != nil {
				writeError(w, r, h.logger, err)
				return
			}
			user, err = h.accounts.GetUserByUsername(r.Context(), result.Username)
			if err != nil {
				writeError(w, r, h.logger, err)
				return
			}
			if user != nil && !user.Active {
				user = nil
			}
			authMethod = "ldap"
		}
	}

	if user == nil {
		u, err := h.accounts.AuthenticateUser(r.Context(), req.Username, req.Password)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		if u != nil && h.ldap != nil && u.Role != auth.RoleAdmin {
			writeMessage(w, http.StatusForbidden, "Local login is disabled. Use LDAP credentials.")
			return
		}
		user = u
	}

	if user == nil {
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	csrfToken, err := h.sessionMgr.CreateSession(w, r, user.Username)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.audit.Record(r, model.AuditEntry{
		Username: user.Username,
		Action:   "login",
		Detail:   fmt.Sprintf("auth=%s", authMethod),
	})
	writeJSON(w, http.StatusOK, map[string]string{
		"username":   user.Username,
		"role":       user.Role,
		"csrf_token": csrfToken,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, _, ok := h.sessionMgr.CurrentUser(r)
	h.sessionMgr.DestroySession(w, r)
	if ok {
		h.audit.Record(r, model.AuditEntry{Username: user.Username, Action: "logout"})
	}
	w.WriteHeader(http.StatusNoContent)
}
