package service

import (
	"fmt"
	"strings"

	"dnsmanager/internal/model"
)

// RecordKey is the identity of a record for diffing. Two records with equal
// keys are the same record; any difference means delete and insert.
type RecordKey struct {
	Name  string
	TTL   int64
	Class string
	Type  string
	Data  string
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s %d %s %s %s", k.Name, k.TTL, k.Class, k.Type, k.Data)
}

func KeyOf(r model.CachedRecord) RecordKey {
	return RecordKey{
		Name:  strings.TrimSpace(r.Name),
		TTL:   r.TTL,
		Class: strings.TrimSpace(r.Class),
		Type:  strings.TrimSpace(r.Type),
		Data:  strings.TrimSpace(r.Data),
	}
}

func zoneKey(r model.ZoneRecord) RecordKey {
	return KeyOf(model.CachedRecord{Name: r.Name, TTL: r.TTL, Class: r.Class, Type: r.Type, Data: r.Data})
}

// Equal reports whether a and b are the same record. Comparison is
// case-sensitive on whitespace-trimmed fields.
func Equal(a, b model.CachedRecord) bool {
	return KeyOf(a) == KeyOf(b)
}
