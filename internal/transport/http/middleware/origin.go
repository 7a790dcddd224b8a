package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/emanuelef/ytstream-api/internal/domain"
	"github.com/emanuelef/ytstream-api/internal/transport/http/respond"
)

// MsgOriginNotAllowed is returned when a cross-origin request is refused.
const MsgOriginNotAllowed = "Origin not allowed"

// RequireAllowedOrigin rejects requests whose Origin header is present and not in
// allowed with 403. Requests without Origin (curl, same-origin navigation) pass. A "*"
// entry allows every origin.
func RequireAllowedOrigin(allowed []string) func(http.Handler) http.Handler {
	set := make(map[string]bool, len(allowed))
	wildcard := false
	for _, o := range allowed {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		if o == "*" {
			wildcard = true
		}
		set[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || wildcard || set[strings.ToLower(origin)] {
				next.ServeHTTP(w, r)
				return
			}

			slog.Warn("Origin rejected", "origin", origin, "ip", ClientIP(r))
			respond.Error(w, http.StatusForbidden, MsgOriginNotAllowed, domain.KindForbidden)
		})
	}
}
