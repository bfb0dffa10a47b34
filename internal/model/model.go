package model

import (
	"strings"
	"time"
)

const (
	BackendRFC2136 = "rfc2136"
	BackendRoute53 = "route53"
)

type Domain struct {
	ID            int64
	Name          string
	Master        string
	Backend       string
	TSIGKeyName   string
	TSIGSecret    string
	TSIGAlgorithm string
	Owners        []string
	LastSyncedAt  *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FQDN returns the zone name in trailing-dot form.
func (d Domain) FQDN() string {
	return Fqdn(d.Name)
}

// RecordFQDN qualifies a zone-relative name; the empty name is the apex.
func (d Domain) RecordFQDN(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || name == "@" {
		return d.FQDN()
	}
	if strings.HasSuffix(name, ".") {
		return name
	}
	return name + "." + d.FQDN()
}

// Endpoint returns the transport endpoint for the domain.
func (d Domain) Endpoint() Master {
	keyName := d.TSIGKeyName
	if keyName == "" {
		keyName = d.FQDN()
	}
	return Master{
		Backend:   d.Backend,
		Address:   d.Master,
		Zone:      d.FQDN(),
		KeyName:   Fqdn(keyName),
		Secret:    d.TSIGSecret,
		Algorithm: d.TSIGAlgorithm,
	}
}

func (d Domain) OwnedBy(username string) bool {
	for _, o := range d.Owners {
		if o == username {
			return true
		}
	}
	return false
}

type Master struct {
	Backend   string
	Address   string
	Zone      string
	KeyName   string
	Secret    string
	Algorithm string
}

type DynamicClient struct {
	ID         int64
	DomainID   int64
	Label      string
	SecretHash string
	Enabled    bool
	Domain     *Domain
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (c DynamicClient) FQDN() string {
	if c.Domain == nil {
		return Fqdn(c.Label)
	}
	return c.Domain.RecordFQDN(c.Label)
}

type Origin string

const (
	OriginStatic  Origin = "static"
	OriginDynamic Origin = "dynamic"
)

type CachedRecord struct {
	ID          int64
	DomainID    int64
	Name        string
	TTL         int64
	Class       string
	Type        string
	Data        string
	Origin      Origin
	RefreshedAt time.Time
}

// ZoneRecord is one resource record as reported by the master.
type ZoneRecord struct {
	Name  string
	TTL   int64
	Class string
	Type  string
	Data  string
}

type Op string

const (
	OpAdd    Op = "add"
	OpDelete Op = "delete"
	OpUpdate Op = "update"
)

// Change is one signed update against the master.
type Change struct {
	Op   Op     `json:"op"`
	TTL  int64  `json:"ttl"`
	Type string `json:"type"`
	FQDN string `json:"fqdn"`
	Data string `json:"data"`
}

// Step is a journaled unit of work: an update against the master, optionally
// followed by removing a cache row.
type Step struct {
	Change       Change `json:"change"`
	DropRecordID int64  `json:"drop_record_id,omitempty"`
}

type PendingOperation struct {
	ID        string
	DomainID  int64
	Subject   string
	Kind      string
	Steps     []Step
	Completed int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type User struct {
	ID         int64
	Username   string
	PassHash   string
	Role       string
	Active     bool
	AuthSource string // "local" or "ldap"
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type AuditEntry struct {
	ID         int64
	Username   string
	Action     string
	DomainID   int64
	DomainName string
	RecordName string
	RecordType string
	Detail     string
	IPAddress  string
	CreatedAt  time.Time
}

// Fqdn appends the root label if missing.
func Fqdn(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasSuffix(name, ".") {
		return name
	}
	return name + "."
}
