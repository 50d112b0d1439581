package dispatch

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller's address from X-Forwarded-For, taking the
// first value not in trustedProxies (or the first XFF value when every
// value is trusted), and falls back to RemoteAddr only when the header is
// absent. trustedProxies may be nil, in which case the first XFF value
// is used unconditionally — acceptable only behind a single well-known
// reverse proxy that always appends its own address last.
func ClientIP(r *http.Request, trustedProxies []string) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		parts := strings.Split(xff, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		for _, ip := range parts {
			if !isTrustedProxy(ip, trustedProxies) {
				return ip
			}
		}
		return parts[0]
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.Trim(r.RemoteAddr, "[]")
	}
	return host
}

func isTrustedProxy(ip string, trusted []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, t := range trusted {
		if strings.Contains(t, "/") {
			_, cidr, err := net.ParseCIDR(t)
			if err == nil && cidr.Contains(parsed) {
				return true
			}
			continue
		}
		if ip == t {
			return true
		}
	}
	return false
}
