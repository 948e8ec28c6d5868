package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultClient_UserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, _ = DefaultClient().GetBody(context.Background(), server.URL)

	if gotUA != "licenses" {
		t.Errorf("default User-Agent = %q, want %q", gotUA, "licenses")
	}
}

func TestClient_WithUserAgentDoesNotMutate(t *testing.T) {
	base := DefaultClient()
	custom := base.WithUserAgent("audit/2.0")

	if base.userAgent != "licenses" {
		t.Errorf("base user agent changed to %q", base.userAgent)
	}
	if custom.userAgent != "audit/2.0" {
		t.Errorf("custom user agent = %q", custom.userAgent)
	}
}

func TestGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"license":"MIT"}`))
	}))
	defer server.Close()

	var out struct {
		License string `json:"license"`
	}
	if err := DefaultClient().GetJSON(context.Background(), server.URL, &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if out.License != "MIT" {
		t.Errorf("license = %q, want MIT", out.License)
	}
}

func TestGetBodyRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := NewClient(WithBaseDelay(time.Millisecond), WithMaxRetries(5))
	body, err := c.GetBody(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("GetBody failed: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestGetBodyDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient(WithBaseDelay(time.Millisecond))
	_, err := c.GetBody(context.Background(), server.URL)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || !httpErr.IsNotFound() {
		t.Fatalf("expected 404 HTTPError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestGetBodyRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewClient(WithBaseDelay(time.Millisecond), WithMaxRetries(1))
	_, err := c.GetBody(context.Background(), server.URL)

	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rl.RetryAfter != 7 {
		t.Errorf("RetryAfter = %d, want 7", rl.RetryAfter)
	}
}

func TestBuildURLs(t *testing.T) {
	urls := &BaseURLs{
		RegistryFn: func(name, version string) string { return "https://example.test/" + name },
	}
	got := BuildURLs(urls, "zlib", "1.3.1")

	if got["registry"] != "https://example.test/zlib" {
		t.Errorf("registry = %q", got["registry"])
	}
	if got["purl"] != "pkg:generic/zlib@1.3.1" {
		t.Errorf("purl = %q", got["purl"])
	}
	if _, ok := got["license"]; ok {
		t.Error("empty license URL should be omitted")
	}
}
