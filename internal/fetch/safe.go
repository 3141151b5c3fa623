package fetch

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"

	"github.com/apidb-dev/apidb/internal/core/domain"
)

// carrierGradeNAT is 100.64.0.0/10 (RFC 6598), which netip does not
// classify as private.
var carrierGradeNAT = netip.MustParsePrefix("100.64.0.0/10")

// isPrivateAddr reports whether an address must not be fetched without
// explicit private-network opt-in: loopback, RFC 1918 private, link-local,
// unique-local, and carrier-grade NAT ranges, including their IPv4-mapped
// IPv6 forms.
func isPrivateAddr(addr netip.Addr) bool {
	addr = addr.Unmap()

	if addr.IsLoopback() || addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified() {
		return true
	}
	return addr.Is4() && carrierGradeNAT.Contains(addr)
}

// assertSafeURL applies the SSRF defence to one URL. It is re-applied on
// every redirect hop. When the host is a name rather than a literal,
// every resolved address must be safe.
func (f *Fetcher) assertSafeURL(ctx context.Context, u *url.URL, allowPrivateNet bool) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: only http/https URLs are supported, got %q", domain.ErrUnsafeTarget, u.Scheme)
	}

	if allowPrivateNet {
		return nil
	}

	host := u.Hostname()
	if host == "localhost" {
		return fmt.Errorf("%w: refusing to fetch localhost URL", domain.ErrUnsafeTarget)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isPrivateAddr(addr) {
			return fmt.Errorf("%w: refusing to fetch private/loopback IP %s", domain.ErrUnsafeTarget, host)
		}
		return nil
	}

	addrs, err := f.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", host, err)
	}
	for _, addr := range addrs {
		if isPrivateAddr(addr) {
			return fmt.Errorf("%w: refusing to fetch private/loopback address for host %s", domain.ErrUnsafeTarget, host)
		}
	}
	return nil
}

// resolver is the subset of net.Resolver used by the safety check,
// extracted so tests can stub DNS answers.
type resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

var _ resolver = (*net.Resolver)(nil)
