package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/miekg/dns"

	"dnsmanager/internal/model"
)

// NormalizeRecord trims the fields of a user-supplied record and fills the
// class; "@" is the apex.
func NormalizeRecord(rec model.CachedRecord) model.CachedRecord {
	rec.Name = strings.TrimSpace(rec.Name)
	if rec.Name == "@" {
		rec.Name = ""
	}
	rec.Class = strings.ToUpper(strings.TrimSpace(rec.Class))
	if rec.Class == "" {
		rec.Class = "IN"
	}
	rec.Type = strings.ToUpper(strings.TrimSpace(rec.Type))
	rec.Data = strings.TrimSpace(rec.Data)
	return rec
}

// ValidateRecord checks that rec can be published in d: known type, owner
// inside the zone, and rdata that parses for the type.
func ValidateRecord(d *model.Domain, rec model.CachedRecord) error {
	if rec.TTL < 0 || rec.TTL > math.MaxInt32 {
		return invalid("ttl %d out of range", rec.TTL)
	}
	if _, ok := dns.StringToType[rec.Type]; !ok {
		return invalid("unknown record type %q", rec.Type)
	}
	if skippedTypes[rec.Type] || rec.Type == "SOA" {
		return invalid("%s records are managed by the master", rec.Type)
	}
	if rec.Data == "" {
		return invalid("record data is required")
	}
	if rec.Type == "CNAME" && rec.Name == "" {
		return invalid("CNAME is not allowed at the zone apex")
	}

	fqdn := d.RecordFQDN(rec.Name)
	if _, ok := dns.IsDomainName(fqdn); !ok {
		return invalid("%q is not a valid name", rec.Name)
	}
	if !dns.IsSubDomain(d.FQDN(), fqdn) {
		return invalid("%s is outside zone %s", fqdn, d.FQDN())
	}

	rr, err := dns.NewRR(fmt.Sprintf("%s %d %s %s %s", fqdn, rec.TTL, rec.Class, rec.Type, rec.Data))
	if err != nil {
		return invalid("%s data %q: %v", rec.Type, rec.Data, err)
	}
	if rr == nil {
		return invalid("empty %s record", rec.Type)
	}
	return nil
}

func validLabel(d *model.Domain, label string) error {
	if label == "" || label == "@" || strings.HasSuffix(label, ".") {
		return invalid("client name %q must be a name inside the zone", label)
	}
	for _, r := range label {
		if !hostnameRune(r) {
			return invalid("client name %q may only contain letters, digits, '-', '_' and '.'", label)
		}
	}
	if _, ok := dns.IsDomainName(d.RecordFQDN(label)); !ok {
		return invalid("%q is not a valid name", label)
	}
	return nil
}

func hostnameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '.':
		return true
	}
	return false
}
