package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Checked in order; the first header holding a usable address wins.
var clientIPHeaders = []string{
	"CF-Connecting-IP",
	"DO-Connecting-IP",
	"X-Forwarded-For",
	"X-Real-IP",
}

// ClientIP resolves the caller address from proxy headers, falling back to
// RemoteAddr. Only deploy behind proxies that overwrite these headers.
func ClientIP(r *http.Request) string {
	for _, h := range clientIPHeaders {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		// X-Forwarded-For is "client, proxy1, proxy2".
		if i := strings.IndexByte(v, ','); i >= 0 {
			v = v[:i]
		}
		if ip, ok := parseIP(v); ok {
			return ip
		}
	}

	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if ip, ok := parseIP(host); ok {
		return ip
	}
	return r.RemoteAddr
}

func parseIP(s string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil || addr.IsUnspecified() {
		return "", false
	}
	return addr.Unmap().String(), true
}
