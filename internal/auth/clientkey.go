package auth

import (
	"net"
	"net/http"
	"strings"
)

// ClientKey identifies the caller for login throttling. X-Forwarded-For is
// only honoured behind a trusted proxy; otherwise the socket host is used.
func ClientKey(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}

// KeyFunc adapts ClientKey for components keyed by request, such as the API
// rate limiter.
func KeyFunc(trustProxy bool) func(*http.Request) string {
	return func(r *http.Request) string {
		return ClientKey(r, trustProxy)
	}
}
