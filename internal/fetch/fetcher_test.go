package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apidb-dev/apidb/internal/core/domain"
)

// allowPrivate wraps a request against a loopback httptest server.
func allowPrivate(location string, maxBytes int64) Request {
	return Request{Location: location, MaxBytes: maxBytes, AllowPrivateNet: true}
}

func TestFetch_URLSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("ETag", `"v1"`)
		fmt.Fprint(w, `{"openapi":"3.0.0"}`)
	}))
	defer srv.Close()

	resp, err := New(Options{}).Fetch(context.Background(), allowPrivate(srv.URL, 1<<20))
	require.NoError(t, err)

	assert.Equal(t, []byte(`{"openapi":"3.0.0"}`), resp.Bytes)
	assert.Equal(t, domain.OriginURL, resp.Kind)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.Equal(t, `"v1"`, resp.ETag)
	assert.Equal(t, srv.URL, resp.EffectiveURL)
	assert.False(t, resp.NotModified)
}

func TestFetch_ContentLengthOverBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 2048))
	}))
	defer srv.Close()

	_, err := New(Options{}).Fetch(context.Background(), allowPrivate(srv.URL, 100))
	assert.ErrorIs(t, err, domain.ErrSizeExceeded)
}

func TestFetch_StreamedBodyOverBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Flush after the first chunk so no Content-Length is sent.
		fmt.Fprint(w, strings.Repeat("a", 64))
		w.(http.Flusher).Flush()
		fmt.Fprint(w, strings.Repeat("b", 64))
	}))
	defer srv.Close()

	_, err := New(Options{}).Fetch(context.Background(), allowPrivate(srv.URL, 100))
	assert.ErrorIs(t, err, domain.ErrSizeExceeded)
}

func TestFetch_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "final")
	})

	resp, err := New(Options{}).Fetch(context.Background(), allowPrivate(srv.URL+"/a", 1<<20))
	require.NoError(t, err)
	assert.Equal(t, []byte("final"), resp.Bytes)
	assert.Equal(t, srv.URL+"/b", resp.EffectiveURL)
}

func TestFetch_RedirectWithoutLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusMovedPermanently)
	}))
	defer srv.Close()

	_, err := New(Options{}).Fetch(context.Background(), allowPrivate(srv.URL, 1<<20))
	assert.ErrorIs(t, err, domain.ErrRedirect)
	assert.Contains(t, err.Error(), "without Location")
}

func TestFetch_TooManyRedirects(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	for i := 0; i <= maxRedirects+1; i++ {
		next := fmt.Sprintf("/r%d", i+1)
		mux.HandleFunc(fmt.Sprintf("/r%d", i), func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, next, http.StatusFound)
		})
	}

	_, err := New(Options{}).Fetch(context.Background(), allowPrivate(srv.URL+"/r0", 1<<20))
	assert.ErrorIs(t, err, domain.ErrRedirect)
	assert.Contains(t, err.Error(), "too many redirects")
}

func TestFetch_RedirectHopRevalidated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Redirect to a scheme the fetcher must never follow.
		w.Header().Set("Location", "ftp://example.com/spec")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	_, err := New(Options{}).Fetch(context.Background(), allowPrivate(srv.URL, 1<<20))
	assert.ErrorIs(t, err, domain.ErrUnsafeTarget)
}

func TestFetch_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(Options{}).Fetch(context.Background(), allowPrivate(srv.URL, 1<<20))
	assert.ErrorIs(t, err, domain.ErrFetch)
	assert.Contains(t, err.Error(), "500")
}

func TestFetch_ConditionalRequestCarriesValidators(t *testing.T) {
	var gotETag, gotModified string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotETag = r.Header.Get("If-None-Match")
		gotModified = r.Header.Get("If-Modified-Since")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	req := allowPrivate(srv.URL, 1<<20)
	req.ETag = `"v1"`
	req.LastModified = "Mon, 01 Jan 2025 00:00:00 GMT"

	resp, err := New(Options{}).Fetch(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, resp.NotModified)
	assert.Empty(t, resp.Bytes)
	assert.Equal(t, `"v1"`, gotETag)
	assert.Equal(t, "Mon, 01 Jan 2025 00:00:00 GMT", gotModified)
}

func TestFetch_Unexpected304IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	// No validators supplied, so a 304 cannot be trusted.
	_, err := New(Options{}).Fetch(context.Background(), allowPrivate(srv.URL, 1<<20))
	assert.ErrorIs(t, err, domain.ErrFetch)
}

func TestFetch_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spec.yaml")
	require.NoError(t, os.WriteFile(path, []byte("openapi: 3.0.0\n"), 0600))

	resp, err := New(Options{}).Fetch(context.Background(), Request{Location: path, MaxBytes: 1 << 20})
	require.NoError(t, err)

	assert.Equal(t, []byte("openapi: 3.0.0\n"), resp.Bytes)
	assert.Equal(t, domain.OriginFile, resp.Kind)
	assert.Empty(t, resp.ContentType)
	assert.Empty(t, resp.EffectiveURL)
}

func TestFetch_LocalFileOverBudget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 200)), 0600))

	_, err := New(Options{}).Fetch(context.Background(), Request{Location: path, MaxBytes: 100})
	assert.ErrorIs(t, err, domain.ErrSizeExceeded)
}

func TestFetch_LocalFileMissing(t *testing.T) {
	_, err := New(Options{}).Fetch(context.Background(), Request{
		Location: filepath.Join(t.TempDir(), "absent.yaml"),
		MaxBytes: 100,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
