// Package middleware provides HTTP middleware functions.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/emanuelef/ytstream-api/internal/domain"
	"github.com/emanuelef/ytstream-api/internal/transport/http/respond"
)

// Allowed hosts for video URLs. Matching is exact; other subdomains are rejected.
var allowedHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

// URLChecker is the extraction backend's own URL check.
type URLChecker interface {
	ValidateURL(rawURL string) error
}

// ValidateURL checks rawURL in order: presence, syntax, host allowlist, then the
// backend's own check. The first failure wins and is returned as a *domain.Error.
// No network access happens here.
func ValidateURL(rawURL string, checker URLChecker) error {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return domain.NewError(domain.KindMissingParameter, domain.MsgMissingURL, nil)
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return domain.NewError(domain.KindMalformedURL, domain.MsgMalformedURL, err)
	}

	scheme := strings.ToLower(parsedURL.Scheme)
	if (scheme != "http" && scheme != "https") || parsedURL.Host == "" || parsedURL.User != nil {
		return domain.NewError(domain.KindMalformedURL, domain.MsgMalformedURL, nil)
	}

	host := strings.ToLower(parsedURL.Hostname())
	if !allowedHosts[host] {
		return domain.NewError(domain.KindDisallowedHost, domain.MsgDisallowedHost, nil)
	}

	if checker != nil {
		if err := checker.ValidateURL(rawURL); err != nil {
			return domain.NewError(domain.KindUnsupportedURL, domain.MsgUnsupportedURL, err)
		}
	}
	return nil
}

type videoURLKey struct{}

// VideoURL returns the validated URL stored by RequireVideoURL.
func VideoURL(ctx context.Context) string {
	u, _ := ctx.Value(videoURLKey{}).(string)
	return u
}

// RequireVideoURL validates the "url" query parameter before the handler runs and stores
// the trimmed value for VideoURL.
func RequireVideoURL(checker URLChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawURL := r.URL.Query().Get("url")

			if err := ValidateURL(rawURL, checker); err != nil {
				slog.Warn("URL validation failed",
					"url", rawURL,
					"error", err,
					"ip", ClientIP(r),
				)
				respond.DomainError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), videoURLKey{}, strings.TrimSpace(rawURL))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
