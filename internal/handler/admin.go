package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"dnsmanager/internal/auth"
	"dnsmanager/internal/model"
	"dnsmanager/internal/service"
)

const auditPageSize = 50

type AdminHandler struct {
	accounts Accounts
	auditLog AuditLog
	journal  *service.Journal
	audit    *Auditor
	logger   *slog.Logger
}

func NewAdminHandler(accounts Accounts, auditLog AuditLog, journal *service.Journal, audit *Auditor, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{accounts: accounts, auditLog: auditLog, journal: journal, audit: audit, logger: logger}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, viewUser(u))
	}
	writeJSON(w, http.StatusOK, out)
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Role != auth.RoleAdmin {
		req.Role = auth.RoleEditor
	}
	if msg := checkNewAccount(req.Username, req.Password); msg != "" {
		writeMessage(w, http.StatusBadRequest, msg)
		return
	}
	existing, err := h.accounts.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if existing != nil {
		writeMessage(w, http.StatusConflict, fmt.Sprintf("user %q already exists", req.Username))
		return
	}

	if err := h.accounts.CreateUser(r.Context(), req.Username, req.Password, req.Role); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.audit.Record(r, model.AuditEntry{
		Action: "create_user",
		Detail: fmt.Sprintf("created user=%s role=%s", req.Username, req.Role),
	})
	writeJSON(w, http.StatusCreated, map[string]string{"username": req.Username, "role": req.Role})
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	target := r.PathValue("username")
	if target == auth.UserFrom(r.Context()).Username {
		writeMessage(w, http.StatusBadRequest, "Cannot delete yourself")
		return
	}
	if err := h.accounts.DeleteUser(r.Context(), target); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.audit.Record(r, model.AuditEntry{Action: "delete_user", Detail: fmt.Sprintf("deleted user=%s", target)})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * auditPageSize

	entries, total, err := h.auditLog.ListAuditLog(r.Context(), auditPageSize, offset)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]auditView, 0, len(entries))
	for _, e := range entries {
		out = append(out, viewAudit(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":     out,
		"page":        page,
		"total":       total,
		"total_pages": (total + auditPageSize - 1) / auditPageSize,
	})
}

// ResumePending replays operations left unfinished by a failed step.
func (h *AdminHandler) ResumePending(w http.ResponseWriter, r *http.Request) {
	done, err := h.journal.Resume(r.Context())
	resp := map[string]any{"completed": done}
	if err != nil {
		h.logger.Warn("some pending operations could not be resumed", "err", err)
		resp["error"] = err.Error()
	}
	h.audit.Record(r, model.AuditEntry{Action: "resume_pending", Detail: fmt.Sprintf("completed=%d", done)})
	writeJSON(w, http.StatusOK, resp)
}
