package core

import (
	"net"
	"net/http"
	"strings"

	"astroscope/internal/types"
)

// ClientIPMiddleware resolves the caller's address once and stores it in the
// context for rate limiting and logging. Forwarding headers are honoured only
// when trustProxy is set, since any client can forge them.
func ClientIPMiddleware(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractClientIP(r, trustProxy)
			next.ServeHTTP(w, r.WithContext(types.WithClientIP(r.Context(), ip)))
		})
	}
}

// extractClientIP returns the first X-Forwarded-For entry (or X-Real-Ip) when
// trustProxy is set, falling back to RemoteAddr without its port.
func extractClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
