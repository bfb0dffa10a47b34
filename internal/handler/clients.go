package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"dnsmanager/internal/auth"
	"dnsmanager/internal/model"
	"dnsmanager/internal/service"
)

type ClientHandler struct {
	domains *service.DomainService
	clients *service.ClientService
	audit   *Auditor
	logger  *slog.Logger
}

func NewClientHandler(domains *service.DomainService, clients *service.ClientService, audit *Auditor, logger *slog.Logger) *ClientHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientHandler{domains: domains, clients: clients, audit: audit, logger: logger}
}

// secretView is only ever returned once, when the secret is issued.
type secretView struct {
	clientView
	Secret    string `json:"secret"`
	UpdateURL string `json:"update_url"`
}

func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	d, ok := loadDomain(w, r, h.domains, h.logger)
	if !ok {
		return
	}
	clients, err := h.clients.List(r.Context(), d)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]clientView, 0, len(clients))
	for _, c := range clients {
		out = append(out, viewClient(c))
	}
	writeJSON(w, http.StatusOK, out)
}

type createClientRequest struct {
	Label string `json:"label"`
}

func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	d, ok := loadDomain(w, r, h.domains, h.logger)
	if !ok {
		return
	}
	var req createClientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, secret, err := h.clients.CreateClient(r.Context(), d, req.Label)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.auditClient(r, c, "create_client", "")
	writeJSON(w, http.StatusCreated, secretView{clientView: viewClient(*c), Secret: secret, UpdateURL: "/update/" + secret})
}

// Get returns the client with its records, refreshed from the master.
func (h *ClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadClient(w, r)
	if !ok {
		return
	}
	records, stale, err := h.clients.ClientRecords(r.Context(), c)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"client":  viewClient(*c),
		"records": viewRecords(records),
		"stale":   stale,
	})
}

func (h *ClientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadClient(w, r)
	if !ok {
		return
	}
	if err := h.clients.DeleteClient(r.Context(), c); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.auditClient(r, c, "delete_client", "")
	w.WriteHeader(http.StatusNoContent)
}

func (h *ClientHandler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadClient(w, r)
	if !ok {
		return
	}
	secret, err := h.clients.RotateSecret(r.Context(), c)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.auditClient(r, c, "rotate_client_secret", "")
	writeJSON(w, http.StatusOK, secretView{clientView: viewClient(*c), Secret: secret, UpdateURL: "/update/" + secret})
}

type enabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *ClientHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadClient(w, r)
	if !ok {
		return
	}
	var req enabledRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.clients.SetEnabled(r.Context(), c, req.Enabled); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.auditClient(r, c, "set_client_enabled", fmt.Sprintf("enabled=%t", req.Enabled))
	writeJSON(w, http.StatusOK, viewClient(*c))
}

func (h *ClientHandler) loadClient(w http.ResponseWriter, r *http.Request) (*model.DynamicClient, bool) {
	id, ok := pathID(w, r, "cid")
	if !ok {
		return nil, false
	}
	c, err := h.clients.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return nil, false
	}
	if c.Domain == nil || !canManage(auth.UserFrom(r.Context()), c.Domain) {
		writeMessage(w, http.StatusNotFound, fmt.Sprintf("client %d: not found", id))
		return nil, false
	}
	return c, true
}

func (h *ClientHandler) auditClient(r *http.Request, c *model.DynamicClient, action, detail string) {
	entry := model.AuditEntry{Action: action, DomainID: c.DomainID, RecordName: c.FQDN(), Detail: detail}
	if c.Domain != nil {
		entry.DomainName = c.Domain.Name
	}
	h.audit.Record(r, entry)
}
