package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the host part of RemoteAddr. When proxies are trusted, TrustedProxies
// has already rewritten RemoteAddr from X-Forwarded-For.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// TrustedProxies rewrites RemoteAddr to the X-Forwarded-For entry appended by the
// outermost of hops trusted proxies, counting from the right. Entries further left are
// client supplied and ignored. Requests with fewer entries, or an unparseable one, keep
// their socket address.
func TrustedProxies(hops int) func(http.Handler) http.Handler {
	if hops < 1 {
		hops = 1
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ip, ok := forwardedFor(r.Header.Values("X-Forwarded-For"), hops); ok {
				r.RemoteAddr = ip
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forwardedFor(values []string, hops int) (string, bool) {
	var entries []string
	for _, v := range values {
		for _, e := range strings.Split(v, ",") {
			entries = append(entries, strings.TrimSpace(e))
		}
	}
	if len(entries) < hops {
		return "", false
	}

	addr, err := netip.ParseAddr(entries[len(entries)-hops])
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
