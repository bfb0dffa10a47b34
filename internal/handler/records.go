package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"dnsmanager/internal/model"
	"dnsmanager/internal/service"
)

type RecordHandler struct {
	domains *service.DomainService
	records *service.RecordService
	audit   *Auditor
	logger  *slog.Logger
}

func NewRecordHandler(domains *service.DomainService, records *service.RecordService, audit *Auditor, logger *slog.Logger) *RecordHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordHandler{domains: domains, records: records, audit: audit, logger: logger}
}

type recordRequest struct {
	Name  string `json:"name"`
	TTL   int64  `json:"ttl"`
	Class string `json:"class"`
	Type  string `json:"type"`
	Data  string `json:"data"`
}

func (req recordRequest) record() model.CachedRecord {
	return model.CachedRecord{Name: req.Name, TTL: req.TTL, Class: req.Class, Type: req.Type, Data: req.Data}
}

// List serves the static records; when the master cannot be reached the
// cached copy is returned with stale set.
func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	d, ok := loadDomain(w, r, h.domains, h.logger)
	if !ok {
		return
	}
	records, stale, err := h.records.ListStatic(r.Context(), d)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"domain":  d.Name,
		"records": viewRecords(records),
		"stale":   stale,
	})
}

func (h *RecordHandler) Create(w http.ResponseWriter, r *http.Request) {
	d, ok := loadDomain(w, r, h.domains, h.logger)
	if !ok {
		return
	}
	var req recordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.records.AddStatic(r.Context(), d, req.record())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.auditRecord(r, d, "create_record", *rec)
	writeJSON(w, http.StatusCreated, viewRecord(*rec))
}

func (h *RecordHandler) Update(w http.ResponseWriter, r *http.Request) {
	d, ok := loadDomain(w, r, h.domains, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "rid")
	if !ok {
		return
	}
	var req recordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.records.EditStatic(r.Context(), d, id, req.record())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.auditRecord(r, d, "update_record", *rec)
	writeJSON(w, http.StatusOK, viewRecord(*rec))
}

func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	d, ok := loadDomain(w, r, h.domains, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "rid")
	if !ok {
		return
	}
	old, err := h.records.Get(r.Context(), d, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.records.DeleteStatic(r.Context(), d, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.auditRecord(r, d, "delete_record", *old)
	w.WriteHeader(http.StatusNoContent)
}

func (h *RecordHandler) auditRecord(r *http.Request, d *model.Domain, action string, rec model.CachedRecord) {
	h.audit.Record(r, model.AuditEntry{
		Action:     action,
		DomainID:   d.ID,
		DomainName: d.Name,
		RecordName: d.RecordFQDN(rec.Name),
		RecordType: rec.Type,
		Detail:     fmt.Sprintf("ttl=%d data=%s", rec.TTL, rec.Data),
	})
}
