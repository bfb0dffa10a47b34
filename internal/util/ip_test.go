package util

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		xff, xreal string
		trust      bool
		want       string
	}{
		{name: "remote addr", remote: "198.51.100.7:5555", want: "198.51.100.7"},
		{name: "ipv6 remote addr", remote: "[2001:db8::1]:5555", want: "2001:db8::1"},
		{name: "untrusted xff ignored", remote: "10.0.0.1:80", xff: "203.0.113.9", want: "10.0.0.1"},
		{name: "trusted xff first hop", remote: "10.0.0.1:80", xff: " 203.0.113.9 , 10.0.0.2", trust: true, want: "203.0.113.9"},
		{name: "trusted x-real-ip", remote: "10.0.0.1:80", xreal: "203.0.113.10", trust: true, want: "203.0.113.10"},
		{name: "trusted without headers", remote: "10.0.0.1:80", trust: true, want: "10.0.0.1"},
		{name: "no port", remote: "192.0.2.4", want: "192.0.2.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/update/x", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xreal != "" {
				r.Header.Set("X-Real-IP", tt.xreal)
			}
			assert.Equal(t, tt.want, GetClientIP(r, tt.trust))
		})
	}
}
