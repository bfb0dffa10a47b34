package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"dnsmanager/internal/auth"
	"dnsmanager/internal/model"
)

const minPasswordLength = 8

type SetupHandler struct {
	accounts Accounts
	audit    *Auditor
	logger   *slog.Logger
}

func NewSetupHandler(accounts Accounts, audit *Auditor, logger *slog.Logger) *SetupHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SetupHandler{accounts: accounts, audit: audit, logger: logger}
}

func (h *SetupHandler) Status(w http.ResponseWriter, r *http.Request) {
	hasUsers, err := h.accounts.HasUsers(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"setup_required": !hasUsers})
}

type setupRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Submit creates the first admin account. It is only available while no
// account exists.
func (h *SetupHandler) Submit(w http.ResponseWriter, r *http.Request) {
	hasUsers, err := h.accounts.HasUsers(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if hasUsers {
		writeMessage(w, http.StatusNotFound, "setup already completed")
		return
	}

	var req setupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if msg := checkNewAccount(req.Username, req.Password); msg != "" {
		writeMessage(w, http.StatusBadRequest, msg)
		return
	}
	if req.Password != req.ConfirmPassword {
		writeMessage(w, http.StatusBadRequest, "Passwords do not match")
		return
	}

	if err := h.accounts.CreateUser(r.Context(), req.Username, req.Password, auth.RoleAdmin); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.audit.Record(r, model.AuditEntry{Username: req.Username, Action: "setup", Detail: "created initial admin"})
	writeJSON(w, http.StatusCreated, map[string]string{"username": req.Username, "role": auth.RoleAdmin})
}

func checkNewAccount(username, password string) string {
	if username == "" {
		return "Username is required"
	}
	if len(password) < minPasswordLength {
		return "Password must be at least 8 characters"
	}
	return ""
}

// RequireSetupComplete refuses every request until the first account exists.
func RequireSetupComplete(accounts Accounts, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasUsers, err := accounts.HasUsers(r.Context())
		if err != nil {
			writeMessage(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		if !hasUsers {
			writeMessage(w, http.StatusServiceUnavailable, "setup required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
