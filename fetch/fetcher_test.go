package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchSuccess(t *testing.T) {
	content := `{"licenseId":"MIT"}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", "19")
		w.Header().Set("ETag", `"abc123"`)
		_, _ = w.Write([]byte(content))
	}))
	defer server.Close()

	f := NewFetcher()
	doc, err := f.Fetch(context.Background(), server.URL+"/details/MIT.json")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer func() { _ = doc.Body.Close() }()

	if doc.Size != 19 {
		t.Errorf("Size = %d, want 19", doc.Size)
	}
	if doc.ContentType != "application/json" {
		t.Errorf("ContentType = %q, want %q", doc.ContentType, "application/json")
	}
	if doc.ETag != `"abc123"` {
		t.Errorf("ETag = %q, want %q", doc.ETag, `"abc123"`)
	}

	body, err := io.ReadAll(doc.Body)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(body) != content {
		t.Errorf("body = %q, want %q", string(body), content)
	}
}

func TestFetchNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewFetcher()
	_, err := f.Fetch(context.Background(), server.URL+"/details/Nope.json")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch = %v, want ErrNotFound", err)
	}
}

func TestFetchIfChanged(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("{}"))
	}))
	defer server.Close()

	f := NewFetcher()
	_, err := f.FetchIfChanged(context.Background(), server.URL+"/licenses.json", `"v1"`)
	if !errors.Is(err, ErrNotModified) {
		t.Fatalf("FetchIfChanged = %v, want ErrNotModified", err)
	}

	doc, err := f.FetchIfChanged(context.Background(), server.URL+"/licenses.json", `"v0"`)
	if err != nil {
		t.Fatalf("FetchIfChanged with stale etag failed: %v", err)
	}
	_ = doc.Body.Close()
	if doc.ETag != `"v1"` {
		t.Errorf("ETag = %q", doc.ETag)
	}
}

func TestFetchRateLimitRetry(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("success"))
	}))
	defer server.Close()

	f := NewFetcher(WithBaseDelay(10 * time.Millisecond))
	doc, err := f.Fetch(context.Background(), server.URL+"/licenses.json")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer func() { _ = doc.Body.Close() }()

	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestFetchServerErrorRetry(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("success"))
	}))
	defer server.Close()

	f := NewFetcher(WithBaseDelay(10 * time.Millisecond))
	doc, err := f.Fetch(context.Background(), server.URL+"/licenses.json")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer func() { _ = doc.Body.Close() }()

	if got := attempts.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestFetchMaxRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := NewFetcher(WithMaxRetries(2), WithBaseDelay(10*time.Millisecond))
	_, err := f.Fetch(context.Background(), server.URL+"/licenses.json")
	if !errors.Is(err, ErrUpstreamDown) {
		t.Errorf("expected ErrUpstreamDown, got %v", err)
	}

	// Initial attempt + 2 retries = 3 total
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestFetchContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write([]byte("success"))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	f := NewFetcher()
	if _, err := f.Fetch(ctx, server.URL+"/licenses.json"); err == nil {
		t.Error("expected error on context cancellation")
	}
}

func TestFetchUnknownSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Transfer-Encoding", "chunked")
		_, _ = w.Write([]byte("chunk1"))
	}))
	defer server.Close()

	f := NewFetcher()
	doc, err := f.Fetch(context.Background(), server.URL+"/licenses.json")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer func() { _ = doc.Body.Close() }()

	if doc.Size != -1 {
		t.Errorf("Size = %d, want -1 for unknown", doc.Size)
	}
}

func TestFetchHeaders(t *testing.T) {
	var receivedUA, receivedAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedUA = r.Header.Get("User-Agent")
		receivedAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := NewFetcher(
		WithUserAgent("custom-agent/2.0"),
		WithAuthFunc(func(url string) (string, string) {
			if strings.HasPrefix(url, server.URL) {
				return "Authorization", "Bearer mirror-token"
			}
			return "", ""
		}),
	)
	doc, _ := f.Fetch(context.Background(), server.URL+"/licenses.json")
	if doc != nil {
		_ = doc.Body.Close()
	}

	if receivedUA != "custom-agent/2.0" {
		t.Errorf("User-Agent = %q, want %q", receivedUA, "custom-agent/2.0")
	}
	if receivedAuth != "Bearer mirror-token" {
		t.Errorf("Authorization = %q", receivedAuth)
	}
}

func TestFetchUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("denied"))
	}))
	defer server.Close()

	f := NewFetcher(WithBaseDelay(time.Millisecond))
	_, err := f.Fetch(context.Background(), server.URL+"/licenses.json")
	if err == nil || !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "denied") {
		t.Errorf("Fetch = %v, want status 403 with body", err)
	}
}

func TestFetchDNSCaching(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := NewFetcher()

	for i := range 3 {
		doc, err := f.Fetch(context.Background(), server.URL+"/details/MIT.json")
		if err != nil {
			t.Fatalf("Fetch %d failed: %v", i+1, err)
		}
		_ = doc.Body.Close()
	}

	if got := requests.Load(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}
