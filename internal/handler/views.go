package handler

import (
	"time"

	"dnsmanager/internal/model"
)

type domainView struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Master        string     `json:"master"`
	Backend       string     `json:"backend"`
	TSIGKeyName   string     `json:"tsig_key_name"`
	TSIGAlgorithm string     `json:"tsig_algorithm"`
	HasTSIGSecret bool       `json:"has_tsig_secret"`
	Owners        []string   `json:"owners"`
	LastSyncedAt  *time.Time `json:"last_synced_at,omitempty"`
}

func viewDomain(d model.Domain) domainView {
	owners := d.Owners
	if owners == nil {
		owners = []string{}
	}
	return domainView{
		ID:            d.ID,
		Name:          d.Name,
		Master:        d.Master,
		Backend:       d.Backend,
		TSIGKeyName:   d.TSIGKeyName,
		TSIGAlgorithm: d.TSIGAlgorithm,
		HasTSIGSecret: d.TSIGSecret != "",
		Owners:        owners,
		LastSyncedAt:  d.LastSyncedAt,
	}
}

type recordView struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	TTL    int64  `json:"ttl"`
	Class  string `json:"class"`
	Type   string `json:"type"`
	Data   string `json:"data"`
	Origin string `json:"origin"`
}

func viewRecords(recs []model.CachedRecord) []recordView {
	out := make([]recordView, 0, len(recs))
	for _, r := range recs {
		out = append(out, viewRecord(r))
	}
	return out
}

func viewRecord(r model.CachedRecord) recordView {
	return recordView{ID: r.ID, Name: r.Name, TTL: r.TTL, Class: r.Class, Type: r.Type, Data: r.Data, Origin: string(r.Origin)}
}

type clientView struct {
	ID       int64  `json:"id"`
	DomainID int64  `json:"domain_id"`
	Label    string `json:"label"`
	FQDN     string `json:"fqdn"`
	Enabled  bool   `json:"enabled"`
}

func viewClient(c model.DynamicClient) clientView {
	return clientView{ID: c.ID, DomainID: c.DomainID, Label: c.Label, FQDN: c.FQDN(), Enabled: c.Enabled}
}

type userView struct {
	Username   string    `json:"username"`
	Role       string    `json:"role"`
	Active     bool      `json:"active"`
	AuthSource string    `json:"auth_source"`
	CreatedAt  time.Time `json:"created_at"`
}

func viewUser(u model.User) userView {
	return userView{Username: u.Username, Role: u.Role, Active: u.Active, AuthSource: u.AuthSource, CreatedAt: u.CreatedAt}
}

type auditView struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Action     string    `json:"action"`
	DomainName string    `json:"domain,omitempty"`
	RecordName string    `json:"record_name,omitempty"`
	RecordType string    `json:"record_type,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	IPAddress  string    `json:"ip_address"`
	CreatedAt  time.Time `json:"created_at"`
}

func viewAudit(e model.AuditEntry) auditView {
	return auditView{
		ID:         e.ID,
		Username:   e.Username,
		Action:     e.Action,
		DomainName: e.DomainName,
		RecordName: e.RecordName,
		RecordType: e.RecordType,
		Detail:     e.Detail,
		IPAddress:  e.IPAddress,
		CreatedAt:  e.CreatedAt,
	}
}
