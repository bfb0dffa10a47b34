package util

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP returns the address of the requesting client. Proxy headers
// (X-Forwarded-For, then X-Real-IP) are honoured only when trustProxy is set,
// since any client can send them.
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		// Format: client, proxy1, proxy2
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xRealIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); xRealIP != "" {
			return xRealIP
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return ip
	}
	return r.RemoteAddr
}
