package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"dnsmanager/internal/auth"
	"dnsmanager/internal/model"
	"dnsmanager/internal/service"
)

type DomainHandler struct {
	domains *service.DomainService
	records *service.RecordService
	audit   *Auditor
	logger  *slog.Logger
}

func NewDomainHandler(domains *service.DomainService, records *service.RecordService, audit *Auditor, logger *slog.Logger) *DomainHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DomainHandler{domains: domains, records: records, audit: audit, logger: logger}
}

type domainRequest struct {
	Name          string   `json:"name"`
	Master        string   `json:"master"`
	Backend       string   `json:"backend"`
	TSIGKeyName   string   `json:"tsig_key_name"`
	TSIGSecret    *string  `json:"tsig_secret"`
	TSIGAlgorithm string   `json:"tsig_algorithm"`
	Owners        []string `json:"owners"`
}

func (req domainRequest) domain() model.Domain {
	d := model.Domain{
		Name:          req.Name,
		Master:        req.Master,
		Backend:       req.Backend,
		TSIGKeyName:   req.TSIGKeyName,
		TSIGAlgorithm: req.TSIGAlgorithm,
		Owners:        req.Owners,
	}
	if req.TSIGSecret != nil {
		d.TSIGSecret = *req.TSIGSecret
	}
	return d
}

func (h *DomainHandler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	domains, err := h.domains.List(r.Context(), user.Username, auth.IsAdmin(user))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]domainView, 0, len(domains))
	for _, d := range domains {
		out = append(out, viewDomain(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *DomainHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, ok := loadDomain(w, r, h.domains, h.logger)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewDomain(*d))
}

// Create makes the creating editor an owner so the domain stays reachable.
func (h *DomainHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domainRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in := req.domain()
	user := auth.UserFrom(r.Context())
	if !auth.IsAdmin(user) {
		in.Owners = append(in.Owners, user.Username)
	}

	d, err := h.domains.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.audit.Record(r, model.AuditEntry{
		Action:     "create_domain",
		DomainID:   d.ID,
		DomainName: d.Name,
		Detail:     fmt.Sprintf("master=%s backend=%s", d.Master, d.Backend),
	})
	writeJSON(w, http.StatusCreated, viewDomain(*d))
}

// Update keeps the stored TSIG secret when the request omits it.
func (h *DomainHandler) Update(w http.ResponseWriter, r *http.Request) {
	current, ok := loadDomain(w, r, h.domains, h.logger)
	if !ok {
		return
	}
	var req domainRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in := req.domain()
	if req.TSIGSecret == nil {
		in.TSIGSecret = current.TSIGSecret
	}
	if !auth.IsAdmin(auth.UserFrom(r.Context())) {
		// Editors cannot change who owns a domain.
		in.Owners = current.Owners
	}

	d, err := h.domains.Update(r.Context(), current.ID, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.audit.Record(r, model.AuditEntry{
		Action:     "update_domain",
		DomainID:   d.ID,
		DomainName: d.Name,
		Detail:     fmt.Sprintf("master=%s backend=%s", d.Master, d.Backend),
	})
	writeJSON(w, http.StatusOK, viewDomain(*d))
}

func (h *DomainHandler) Delete(w http.ResponseWriter, r *http.Request) {
	d, ok := loadDomain(w, r, h.domains, h.logger)
	if !ok {
		return
	}
	if err := h.domains.Delete(r.Context(), d.ID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.audit.Record(r, model.AuditEntry{Action: "delete_domain", DomainName: d.Name})
	w.WriteHeader(http.StatusNoContent)
}

// Sync forces a refresh of the cached records from the master.
func (h *DomainHandler) Sync(w http.ResponseWriter, r *http.Request) {
	d, ok := loadDomain(w, r, h.domains, h.logger)
	if !ok {
		return
	}
	res, err := h.records.Synchronize(r.Context(), d)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"inserted": res.Inserted, "deleted": res.Deleted})
}
