package devicebind

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/Klingon-tech/klingnet-keyshare/internal/log"
	"github.com/Klingon-tech/klingnet-keyshare/pkg/types"
)

// OriginPolicy decides whether a ceremony may run for an origin.
type OriginPolicy struct {
	// Production fails closed on origins outside Allowed.
	Production bool
	// Allowed lists exact origins, e.g. "https://wallet.example.com".
	Allowed []string
}

// Check returns types.ErrUntrustedOrigin when origin may not run ceremonies.
// Loopback origins are always accepted.
func (p OriginPolicy) Check(origin string) error {
	norm, host, err := normalizeOrigin(origin)
	if err != nil {
		return fmt.Errorf("origin %q: %v: %w", origin, err, types.ErrUntrustedOrigin)
	}
	if isLoopback(host) {
		return nil
	}
	for _, a := range p.Allowed {
		if n, _, err := normalizeOrigin(a); err == nil && n == norm {
			return nil
		}
	}
	if p.Production {
		return fmt.Errorf("origin %q not in allow-list: %w", origin, types.ErrUntrustedOrigin)
	}
	log.Device.Warn().Str("origin", norm).Msg("origin not in allow-list, permitted outside production")
	return nil
}

// ValidateOrigin reports whether s is a well-formed scheme://host[:port] origin.
func ValidateOrigin(s string) error {
	_, _, err := normalizeOrigin(s)
	return err
}

func normalizeOrigin(s string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("missing host")
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", fmt.Errorf("origin must not carry a path")
	}
	host := strings.ToLower(u.Hostname())
	norm := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
	return norm, host, nil
}

func isLoopback(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
