package cargo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/git-pkgs/licenses/internal/core"
)

func serdeServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/crates/serde" {
			w.WriteHeader(404)
			return
		}

		resp := crateResponse{
			Crate: crateInfo{
				ID:          "serde",
				Name:        "serde",
				Description: "A generic serialization/deserialization framework",
				Homepage:    "https://serde.rs",
				Repository:  "https://github.com/serde-rs/serde",
			},
			Versions: []versionInfo{
				{Num: "1.0.228", License: "MIT OR Apache-2.0", CreatedAt: "2025-09-27T16:51:35Z"},
				{Num: "1.0.227", License: "MIT OR Apache-2.0", Yanked: true, CreatedAt: "2025-09-25T23:43:08Z"},
				{Num: "0.1.0", License: "MIT/Apache-2.0", CreatedAt: "2014-12-05T20:20:39Z"},
			},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetchPackage(t *testing.T) {
	server := serdeServer(t)

	reg := New(server.URL, core.DefaultClient())
	pkg, err := reg.FetchPackage(context.Background(), "serde")
	if err != nil {
		t.Fatalf("FetchPackage failed: %v", err)
	}

	if pkg.Name != "serde" {
		t.Errorf("expected name 'serde', got %q", pkg.Name)
	}
	if pkg.Repository != "https://github.com/serde-rs/serde" {
		t.Errorf("unexpected repository: %q", pkg.Repository)
	}
	if pkg.Licenses != "MIT OR Apache-2.0" {
		t.Errorf("unexpected licenses: %q", pkg.Licenses)
	}
}

func TestFetchPackageNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
	}))
	defer server.Close()

	reg := New(server.URL, core.DefaultClient())
	_, err := reg.FetchPackage(context.Background(), "nonexistent")

	var notFound *core.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %T", err)
	}
	if !errors.Is(err, core.ErrNotFound) {
		t.Error("NotFoundError should unwrap to ErrNotFound")
	}
}

func TestFetchVersions(t *testing.T) {
	server := serdeServer(t)

	reg := New(server.URL, core.DefaultClient())
	versions, err := reg.FetchVersions(context.Background(), "serde")
	if err != nil {
		t.Fatalf("FetchVersions failed: %v", err)
	}

	if len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(versions))
	}
	if versions[0].Number != "1.0.228" || versions[0].Status != core.StatusNone {
		t.Errorf("unexpected first version: %+v", versions[0])
	}
	if versions[1].Status != core.StatusYanked {
		t.Errorf("expected yanked status for second version, got %q", versions[1].Status)
	}
	if versions[2].Licenses != "MIT/Apache-2.0" {
		t.Errorf("legacy license field not kept verbatim: %q", versions[2].Licenses)
	}

	expectedTime, _ := time.Parse(time.RFC3339, "2025-09-27T16:51:35Z")
	if !versions[0].PublishedAt.Equal(expectedTime) {
		t.Errorf("unexpected published_at: %v", versions[0].PublishedAt)
	}
}

func TestDeclaredLicense(t *testing.T) {
	server := serdeServer(t)
	reg := New(server.URL, core.DefaultClient())

	got, err := core.DeclaredLicense(context.Background(), reg, "serde", "0.1.0")
	if err != nil {
		t.Fatalf("DeclaredLicense failed: %v", err)
	}
	if got != "MIT/Apache-2.0" {
		t.Errorf("DeclaredLicense = %q", got)
	}
	ids, err := core.ParseExpression(got)
	if err != nil || len(ids) != 2 {
		t.Errorf("ParseExpression(%q) = %v, %v", got, ids, err)
	}
}

func TestURLBuilder(t *testing.T) {
	reg := New("https://crates.io", nil)
	urls := reg.URLs()

	tests := []struct {
		name     string
		fn       func() string
		expected string
	}{
		{"registry with version", func() string { return urls.Registry("serde", "1.0.228") }, "https://crates.io/crates/serde/1.0.228"},
		{"registry without version", func() string { return urls.Registry("serde", "") }, "https://crates.io/crates/serde"},
		{"license", func() string { return urls.License("serde", "1.0.228") }, "https://crates.io/api/v1/crates/serde"},
		{"purl with version", func() string { return urls.PURL("serde", "1.0.228") }, "pkg:cargo/serde@1.0.228"},
		{"purl without version", func() string { return urls.PURL("serde", "") }, "pkg:cargo/serde"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn()
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestEcosystem(t *testing.T) {
	reg := New("", nil)
	if reg.Ecosystem() != "cargo" {
		t.Errorf("expected ecosystem 'cargo', got %q", reg.Ecosystem())
	}
}
