package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"

	"dnsmanager/internal/model"
	"dnsmanager/internal/service"
)

// UpdateHandler serves the rebind endpoint polled by dynamic clients. It
// always answers 200 with a status field so simple update scripts can parse
// the outcome.
type UpdateHandler struct {
	rebinder *service.Rebinder
	audit    *Auditor
	logger   *slog.Logger
}

func NewUpdateHandler(rebinder *service.Rebinder, audit *Auditor, logger *slog.Logger) *UpdateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UpdateHandler{rebinder: rebinder, audit: audit, logger: logger}
}

type updateResponse struct {
	Status string `json:"status"`
	Msg    string `json:"msg"`
}

func (h *UpdateHandler) Update(w http.ResponseWriter, r *http.Request) {
	observed := h.audit.ClientIP(r)
	if myip := strings.TrimSpace(r.URL.Query().Get("myip")); myip != "" {
		if _, err := netip.ParseAddr(myip); err == nil {
			observed = myip
		}
	}

	res, err := h.rebinder.Rebind(r.Context(), r.PathValue("secret"), observed)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrAuthenticationFailed):
		writeJSON(w, http.StatusOK, updateResponse{Status: "ERROR", Msg: "Invalid secret"})
		return
	default:
		h.logger.Error("rebind failed", "address", observed, "err", err)
		writeJSON(w, http.StatusOK, updateResponse{Status: "ERROR", Msg: "Internal error"})
		return
	}

	fqdn := strings.TrimSuffix(res.FQDN, ".")
	h.audit.Record(r, model.AuditEntry{
		Username:   "client:" + fqdn,
		Action:     "rebind",
		RecordName: res.FQDN,
		RecordType: res.Type,
		Detail:     fmt.Sprintf("%s -> %s", strings.Join(res.OldAddresses, ","), res.NewAddress),
	})
	writeJSON(w, http.StatusOK, updateResponse{
		Status: "OK",
		Msg:    fmt.Sprintf("Successfully updated %s address to %s", fqdn, res.NewAddress),
	})
}
