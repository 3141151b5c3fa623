// Package fetch resolves a source location (local path or HTTP/S URL) to
// raw bytes, enforcing a byte ceiling and rejecting unsafe network
// targets. Redirects are followed manually so the safety check applies
// to every hop, and conditional requests are supported for cached
// sources.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/apidb-dev/apidb/internal/core/domain"
	"github.com/apidb-dev/apidb/internal/logger"
)

// maxRedirects caps the number of redirect hops followed for one fetch.
const maxRedirects = 5

// Options tunes a Fetcher.
type Options struct {
	// Timeout bounds each HTTP request. Zero means 30s.
	Timeout time.Duration

	// RequestsPerSecond and Burst configure the outbound token bucket.
	// Zero values mean 4 req/s with a burst of 4.
	RequestsPerSecond float64
	Burst             int
}

// Request describes one fetch.
type Request struct {
	// Location is a local file path or an http/https URL.
	Location string

	// MaxBytes is the byte ceiling; exceeding it fails the fetch.
	MaxBytes int64

	// AllowPrivateNet disables the SSRF defence.
	AllowPrivateNet bool

	// ETag and LastModified, when set, are attached as If-None-Match /
	// If-Modified-Since to make the request conditional.
	ETag         string
	LastModified string
}

// conditional reports whether the request carries cache validators.
func (r Request) conditional() bool {
	return r.ETag != "" || r.LastModified != ""
}

// Response is the outcome of one fetch.
type Response struct {
	// Bytes is the fetched content. Empty when NotModified is set.
	Bytes []byte

	// Kind records whether the bytes came from a URL or a local file.
	Kind domain.OriginKind

	// ContentType is the response Content-Type, empty for files.
	ContentType string

	// NotModified is set on a 304 answer to a conditional request; the
	// caller replays the previously persisted blob instead.
	NotModified bool

	// ETag and LastModified are the response validators, for the next
	// conditional request.
	ETag         string
	LastModified string

	// EffectiveURL is the final URL after redirects, empty for files.
	EffectiveURL string
}

// Fetcher resolves source locations to bytes. Safe for concurrent use.
type Fetcher struct {
	client   *http.Client
	limiter  *rate.Limiter
	resolver resolver
}

// New creates a Fetcher. Redirects are handled manually so every hop
// passes the safety check.
func New(opts Options) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 4
	}

	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		resolver: net.DefaultResolver,
	}
}

// Fetch resolves the request's location to bytes. A location that parses
// as an http/https URL is fetched over the network; anything else is
// treated as a local filesystem path.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	if u, err := url.Parse(req.Location); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return f.fetchURL(ctx, u, req)
	}
	return fetchFile(req)
}

//nolint:gocyclo // Sequential redirect-following loop with per-hop checks
func (f *Fetcher) fetchURL(ctx context.Context, u *url.URL, req Request) (*Response, error) {
	current := u

	for hop := 0; ; hop++ {
		if err := f.assertSafeURL(ctx, current, req.AllowPrivateNet); err != nil {
			return nil, err
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, current.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		if req.ETag != "" {
			httpReq.Header.Set("If-None-Match", req.ETag)
		}
		if req.LastModified != "" {
			httpReq.Header.Set("If-Modified-Since", req.LastModified)
		}

		logger.Debug("GET %s", current)
		resp, err := f.client.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
		}

		// 304 is in the 3xx range but is a final answer, not a redirect.
		if resp.StatusCode == http.StatusNotModified {
			drain(resp)
			if !req.conditional() {
				return nil, &domain.StatusError{URL: current.String(), Status: resp.StatusCode}
			}
			return &Response{
				Kind:         domain.OriginURL,
				NotModified:  true,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
				EffectiveURL: current.String(),
			}, nil
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			location := resp.Header.Get("Location")
			drain(resp)
			if location == "" {
				return nil, fmt.Errorf("%w: redirect (%d) without Location header", domain.ErrRedirect, resp.StatusCode)
			}
			if hop == maxRedirects {
				return nil, fmt.Errorf("%w: too many redirects (>%d)", domain.ErrRedirect, maxRedirects)
			}

			next, err := url.Parse(location)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid redirect target %q", domain.ErrRedirect, location)
			}
			current = current.ResolveReference(next)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			drain(resp)
			return nil, &domain.StatusError{URL: current.String(), Status: resp.StatusCode}
		}

		bytes, err := readBounded(resp, req.MaxBytes)
		if err != nil {
			return nil, err
		}

		return &Response{
			Bytes:        bytes,
			Kind:         domain.OriginURL,
			ContentType:  resp.Header.Get("Content-Type"),
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			EffectiveURL: current.String(),
		}, nil
	}
}

// readBounded reads a response body while counting bytes, failing the
// instant the running total exceeds maxBytes. It never buffers more than
// maxBytes+1 bytes.
func readBounded(resp *http.Response, maxBytes int64) ([]byte, error) {
	defer resp.Body.Close() //nolint:errcheck

	if resp.ContentLength > maxBytes {
		return nil, fmt.Errorf("%w: content-length %d > %d", domain.ErrSizeExceeded, resp.ContentLength, maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", domain.ErrFetch, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: body larger than %d bytes", domain.ErrSizeExceeded, maxBytes)
	}
	return data, nil
}

// fetchFile reads a local path. No network safety checks apply.
func fetchFile(req Request) (*Response, error) {
	st, err := os.Stat(req.Location)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, req.Location)
		}
		return nil, fmt.Errorf("stat %s: %w", req.Location, err)
	}
	if st.Size() > req.MaxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes > %d", domain.ErrSizeExceeded, req.Location, st.Size(), req.MaxBytes)
	}

	bytes, err := os.ReadFile(req.Location)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", req.Location, err)
	}
	return &Response{Bytes: bytes, Kind: domain.OriginFile}, nil
}

// drain discards and closes a response body so the connection can be
// reused across redirect hops.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
