// Package safeclient provides an HTTP client that refuses to dial internal networks.
package safeclient

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"
)

// ErrForbiddenIP is returned when a dial resolves to a private or internal address.
var ErrForbiddenIP = errors.New("connection to private/internal IP addresses is forbidden")

var forbiddenPrefixes = mustPrefixes(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16", // includes cloud metadata at 169.254.169.254
	"172.16.0.0/12",
	"192.0.2.0/24",
	"192.168.0.0/16",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"224.0.0.0/4",
	"255.255.255.255/32",
	"::/128",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
	"fec0::/10",
	"ff00::/8",
	"2001:db8::/32",
)

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		out = append(out, netip.MustParsePrefix(c))
	}
	return out
}

// IsForbiddenIP reports whether addr lies in a blocked range. IPv4-mapped IPv6 addresses
// are checked as IPv4.
func IsForbiddenIP(addr netip.Addr) bool {
	if !addr.IsValid() {
		return true
	}
	addr = addr.Unmap()
	for _, p := range forbiddenPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Options tunes the client. Zero values take the defaults noted per field.
type Options struct {
	// Timeout caps a whole exchange including body reads. Zero disables it, which
	// media streams need; bound those with the request context instead.
	Timeout time.Duration
	// ResponseHeaderTimeout caps the wait for response headers (default 30s).
	ResponseHeaderTimeout time.Duration
	// AllowPrivate disables the address check. Tests use it against httptest servers.
	AllowPrivate bool
}

// New creates an HTTP client whose dialer checks the resolved address at connect time,
// which also covers DNS rebinding.
func New(opts Options) *http.Client {
	if opts.ResponseHeaderTimeout <= 0 {
		opts.ResponseHeaderTimeout = 30 * time.Second
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if !opts.AllowPrivate {
		dialer.Control = checkAddress
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			return nil
		},
	}
}

// NewStreamingClient returns a client without an overall timeout, for media downloads.
func NewStreamingClient() *http.Client {
	return New(Options{})
}

func checkAddress(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("failed to parse address: %w", err)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("invalid IP address: %s", host)
	}
	if IsForbiddenIP(addr) {
		return ErrForbiddenIP
	}
	return nil
}
