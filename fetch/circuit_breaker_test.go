package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestCircuitBreakerFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"licenses":[]}`))
	}))
	defer server.Close()

	cbFetcher := NewCircuitBreakerFetcher(NewFetcher())

	doc, err := cbFetcher.Fetch(context.Background(), server.URL+"/licenses.json")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer func() { _ = doc.Body.Close() }()

	body, _ := io.ReadAll(doc.Body)
	if string(body) != `{"licenses":[]}` {
		t.Errorf("unexpected body %q", string(body))
	}
}

func TestExtractHost(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{"spdx raw", "https://raw.githubusercontent.com/spdx/license-list-data/main/json/licenses.json", "raw.githubusercontent.com"},
		{"spdx site", "https://spdx.org/licenses/MIT.json", "spdx.org"},
		{"invalid URL", "not-a-valid-url", "not-a-valid-url"},
		{"with port", "https://mirror.example.com:8080/json", "mirror.example.com:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractHost(tt.url); got != tt.expected {
				t.Errorf("extractHost(%q) = %q, want %q", tt.url, got, tt.expected)
			}
		})
	}
}

func TestBreakerStatePerHost(t *testing.T) {
	server1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("one"))
	}))
	defer server1.Close()
	server2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("two"))
	}))
	defer server2.Close()

	cbFetcher := NewCircuitBreakerFetcher(NewFetcher())
	if states := cbFetcher.BreakerState(); len(states) != 0 {
		t.Errorf("expected empty states, got %d entries", len(states))
	}

	for _, u := range []string{server1.URL, server2.URL} {
		doc, err := cbFetcher.Fetch(context.Background(), u+"/licenses.json")
		if err != nil {
			t.Fatalf("fetch %s failed: %v", u, err)
		}
		_ = doc.Body.Close()
	}

	states := cbFetcher.BreakerState()
	if len(states) != 2 {
		t.Errorf("expected 2 breaker states, got %d", len(states))
	}
	for host, state := range states {
		if state != "closed" {
			t.Errorf("%s: expected closed state, got %s", host, state)
		}
	}
}

func TestCircuitBreakerOpensOnFailures(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cbFetcher := NewCircuitBreakerFetcher(NewFetcher(WithMaxRetries(0), WithBaseDelay(0)))

	var lastErr error
	for range 10 {
		_, lastErr = cbFetcher.Fetch(context.Background(), server.URL+"/licenses.json")
	}
	if !errors.Is(lastErr, ErrUpstreamDown) {
		t.Fatalf("expected ErrUpstreamDown, got %v", lastErr)
	}
	if got := requests.Load(); got >= 10 {
		t.Errorf("breaker did not open: %d requests reached the server", got)
	}
	for _, state := range cbFetcher.BreakerState() {
		if state != "open" {
			t.Errorf("expected open breaker, got %s", state)
		}
	}
}

func TestCircuitBreakerIgnoresMissingDocuments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cbFetcher := NewCircuitBreakerFetcher(NewFetcher())
	for range 10 {
		if _, err := cbFetcher.Fetch(context.Background(), server.URL+"/details/Gone.json"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	for _, state := range cbFetcher.BreakerState() {
		if state != "closed" {
			t.Errorf("404s should not trip the breaker, got %s", state)
		}
	}
}
