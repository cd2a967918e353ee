package middleware

import (
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"net/netip"
)

// TrustPolicy decides whether a request arrived over a verified internal hop.
// A request is trusted when its peer address falls in one of the configured
// prefixes (if any) and it carries the shared secret (if one is set). The zero
// value trusts nothing.
type TrustPolicy struct {
	prefixes     []netip.Prefix
	secretHeader string
	secret       []byte
}

// NewTrustPolicy parses cidrs. At least one of cidrs or secret must be set.
func NewTrustPolicy(cidrs []string, secretHeader, secret string) (TrustPolicy, error) {
	p := TrustPolicy{secretHeader: secretHeader}
	for _, cidr := range cidrs {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return TrustPolicy{}, fmt.Errorf("trusted proxy %q: %w", cidr, err)
		}
		p.prefixes = append(p.prefixes, prefix.Masked())
	}
	if secret != "" {
		if secretHeader == "" {
			return TrustPolicy{}, fmt.Errorf("shared secret requires a header name")
		}
		p.secret = []byte(secret)
	}
	if len(p.prefixes) == 0 && len(p.secret) == 0 {
		return TrustPolicy{}, fmt.Errorf("trust policy needs trusted proxies or a shared secret")
	}
	return p, nil
}

// Trusted reports whether r came from a verified internal hop.
func (p TrustPolicy) Trusted(r *http.Request) bool {
	if len(p.prefixes) == 0 && len(p.secret) == 0 {
		return false
	}

	if len(p.prefixes) > 0 {
		addr, ok := peerAddr(r.RemoteAddr)
		if !ok || !p.containsAddr(addr) {
			return false
		}
	}

	if len(p.secret) > 0 {
		got := []byte(r.Header.Get(p.secretHeader))
		if subtle.ConstantTimeCompare(got, p.secret) != 1 {
			return false
		}
	}
	return true
}

// SecretHeader returns the header carrying the shared secret, if any.
func (p TrustPolicy) SecretHeader() string {
	return p.secretHeader
}

func (p TrustPolicy) containsAddr(addr netip.Addr) bool {
	for _, prefix := range p.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func peerAddr(remote string) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
