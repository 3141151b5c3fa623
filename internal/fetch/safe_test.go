package fetch

import (
	"context"
	"fmt"
	"net/netip"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apidb-dev/apidb/internal/core/domain"
)

// stubResolver returns canned DNS answers.
type stubResolver struct {
	addrs map[string][]netip.Addr
}

func (s stubResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	addrs, ok := s.addrs[host]
	if !ok {
		return nil, fmt.Errorf("lookup %s: no such host", host)
	}
	return addrs, nil
}

func testFetcher(addrs map[string][]netip.Addr) *Fetcher {
	f := New(Options{})
	f.resolver = stubResolver{addrs: addrs}
	return f
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestIsPrivateAddr(t *testing.T) {
	tests := []struct {
		addr    string
		private bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"::ffff:127.0.0.1", true},  // IPv4-mapped loopback
		{"::ffff:192.168.0.10", true}, // IPv4-mapped private
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"192.168.1.1", true},
		{"169.254.10.10", true}, // link-local
		{"fe80::1", true},       // IPv6 link-local
		{"fc00::1", true},       // unique-local
		{"100.64.0.1", true},    // carrier-grade NAT
		{"100.127.255.255", true},
		{"0.0.0.0", true},

		{"93.184.216.34", false},
		{"100.128.0.1", false}, // just past the CGNAT range
		{"8.8.8.8", false},
		{"2606:4700::1111", false},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.private, isPrivateAddr(netip.MustParseAddr(tt.addr)))
		})
	}
}

func TestAssertSafeURL_RejectsLocalhost(t *testing.T) {
	f := testFetcher(nil)

	err := f.assertSafeURL(context.Background(), mustURL(t, "http://localhost/spec"), false)
	assert.ErrorIs(t, err, domain.ErrUnsafeTarget)
}

func TestAssertSafeURL_RejectsIPLiterals(t *testing.T) {
	f := testFetcher(nil)

	for _, raw := range []string{
		"http://127.0.0.1/spec",
		"http://[::1]/spec",
		"http://[::ffff:127.0.0.1]/spec",
		"http://192.168.1.10:8080/spec",
		"http://100.64.0.1/spec",
	} {
		err := f.assertSafeURL(context.Background(), mustURL(t, raw), false)
		assert.ErrorIs(t, err, domain.ErrUnsafeTarget, raw)
	}
}

func TestAssertSafeURL_AcceptsPublicLiteral(t *testing.T) {
	f := testFetcher(nil)

	err := f.assertSafeURL(context.Background(), mustURL(t, "https://93.184.216.34/spec"), false)
	assert.NoError(t, err)
}

func TestAssertSafeURL_ChecksAllDNSAnswers(t *testing.T) {
	f := testFetcher(map[string][]netip.Addr{
		"public.example":  {netip.MustParseAddr("93.184.216.34")},
		"rebound.example": {netip.MustParseAddr("93.184.216.34"), netip.MustParseAddr("10.0.0.5")},
	})

	assert.NoError(t, f.assertSafeURL(context.Background(), mustURL(t, "https://public.example/spec"), false))

	err := f.assertSafeURL(context.Background(), mustURL(t, "https://rebound.example/spec"), false)
	assert.ErrorIs(t, err, domain.ErrUnsafeTarget)
}

func TestAssertSafeURL_AllowPrivateNetBypasses(t *testing.T) {
	f := testFetcher(nil)

	assert.NoError(t, f.assertSafeURL(context.Background(), mustURL(t, "http://localhost/spec"), true))
	assert.NoError(t, f.assertSafeURL(context.Background(), mustURL(t, "http://127.0.0.1/spec"), true))
}

func TestAssertSafeURL_RejectsNonHTTPSchemes(t *testing.T) {
	f := testFetcher(nil)

	// The scheme gate applies even with private-network access allowed.
	err := f.assertSafeURL(context.Background(), mustURL(t, "ftp://example.com/spec"), true)
	assert.ErrorIs(t, err, domain.ErrUnsafeTarget)
}
