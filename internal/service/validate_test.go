package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dnsmanager/internal/model"
)

func TestNormalizeRecord(t *testing.T) {
	got := NormalizeRecord(model.CachedRecord{Name: " @ ", TTL: 300, Type: " mx ", Data: " 10 mail.example.com. "})
	assert.Equal(t, model.CachedRecord{Name: "", TTL: 300, Class: "IN", Type: "MX", Data: "10 mail.example.com."}, got)
}

func TestValidateRecord(t *testing.T) {
	d := &model.Domain{Name: "example.com"}

	valid := []model.CachedRecord{
		cr("www", 300, "A", "192.0.2.1"),
		cr("", 300, "MX", "10 mail.example.com."),
		cr("v6", 300, "AAAA", "2001:db8::1"),
		cr("txt", 300, "TXT", `"hello world"`),
		cr("alias", 300, "CNAME", "www"),
		cr("_sip._tcp", 300, "SRV", "10 5 5060 sip.example.com."),
		cr("www.example.com.", 300, "A", "192.0.2.1"),
	}
	for _, rec := range valid {
		assert.NoError(t, ValidateRecord(d, rec), KeyOf(rec).String())
	}

	invalidRecs := []model.CachedRecord{
		cr("www", -1, "A", "192.0.2.1"),
		cr("www", 300, "BOGUS", "x"),
		cr("www", 300, "A", ""),
		cr("www", 300, "A", "300.0.0.1"),
		cr("", 300, "CNAME", "www.other.org."),
		cr("", 300, "SOA", "ns1. admin. 1 2 3 4 5"),
		cr("", 300, "RRSIG", "A 8 2 300 20240101000000 20231201000000 1 example.com. c2ln"),
		cr("www.other.org.", 300, "A", "192.0.2.1"),
	}
	for _, rec := range invalidRecs {
		assert.ErrorIs(t, ValidateRecord(d, rec), ErrInvalid, KeyOf(rec).String())
	}
}
