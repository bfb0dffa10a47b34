package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"dnsmanager/internal/auth"
	"dnsmanager/internal/model"
	"dnsmanager/internal/service"
	"dnsmanager/internal/util"
)

const maxBodyBytes = 1 << 20

// Accounts is the operator account storage used by the handlers.
type Accounts interface {
	HasUsers(ctx context.Context) (bool, error)
	AuthenticateUser(ctx context.Context, username, password string) (*model.User, error)
	CreateLDAPUser(ctx context.Context, username, role string) error
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	CreateUser(ctx context.Context, username, password, role string) error
	DeleteUser(ctx context.Context, username string) error
}

type AuditLog interface {
	LogAudit(ctx context.Context, entry model.AuditEntry) error
	ListAuditLog(ctx context.Context, limit, offset int) ([]model.AuditEntry, int, error)
}

// Auditor records mutating actions with the acting operator and address.
type Auditor struct {
	log        AuditLog
	trustProxy bool
	logger     *slog.Logger
}

func NewAuditor(log AuditLog, trustProxy bool, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{log: log, trustProxy: trustProxy, logger: logger}
}

func (a *Auditor) Record(r *http.Request, entry model.AuditEntry) {
	if entry.Username == "" {
		if u := auth.UserFrom(r.Context()); u != nil {
			entry.Username = u.Username
		}
	}
	entry.IPAddress = util.GetClientIP(r, a.trustProxy)
	if err := a.log.LogAudit(r.Context(), entry); err != nil {
		a.logger.Warn("failed to write audit entry", "action", entry.Action, "err", err)
	}
}

func (a *Auditor) ClientIP(r *http.Request) string {
	return util.GetClientIP(r, a.trustProxy)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// writeError maps a service error onto a status code.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalid), errors.Is(err, service.ErrNameChanged):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrDuplicate):
		writeMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrAuthenticationFailed):
		writeMessage(w, http.StatusUnauthorized, "Invalid secret")
	case errors.Is(err, service.ErrInternal), errors.Is(err, service.ErrUpdateFailed),
		errors.Is(err, service.ErrTransferFailed), errors.Is(err, service.ErrResolveFailed),
		errors.Is(err, service.ErrSyncFailed):
		logger.Warn("master operation failed", "path", r.URL.Path, "err", err)
		writeMessage(w, http.StatusBadGateway, err.Error())
	default:
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeMessage(w, http.StatusInternalServerError, "Internal error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusNotFound, "not found")
		return 0, false
	}
	return id, true
}

// loadDomain resolves the {id} path value to a domain the current operator
// may manage. Domains of other operators are reported as missing.
func loadDomain(w http.ResponseWriter, r *http.Request, domains *service.DomainService, logger *slog.Logger) (*model.Domain, bool) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return nil, false
	}
	d, err := domains.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, logger, err)
		return nil, false
	}
	if !canManage(auth.UserFrom(r.Context()), d) {
		writeMessage(w, http.StatusNotFound, fmt.Sprintf("domain %d: not found", id))
		return nil, false
	}
	return d, true
}

func canManage(u *model.User, d *model.Domain) bool {
	if u == nil {
		return false
	}
	return auth.IsAdmin(u) || d.OwnedBy(u.Username)
}
