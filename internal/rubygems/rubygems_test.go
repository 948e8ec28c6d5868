package rubygems

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/git-pkgs/licenses/internal/core"
)

func TestFetchPackage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/gems/rails.json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(404)
			return
		}

		resp := gemResponse{
			Name:          "rails",
			Info:          "Ruby on Rails is a full-stack web framework",
			Version:       "7.1.0",
			Licenses:      []string{"MIT"},
			HomepageURI:   "https://rubyonrails.org",
			SourceCodeURI: "https://github.com/rails/rails",
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	reg := New(server.URL, core.DefaultClient())
	pkg, err := reg.FetchPackage(context.Background(), "rails")
	if err != nil {
		t.Fatalf("FetchPackage failed: %v", err)
	}

	if pkg.Name != "rails" {
		t.Errorf("expected name 'rails', got %q", pkg.Name)
	}
	if pkg.Repository != "https://github.com/rails/rails" {
		t.Errorf("unexpected repository: %q", pkg.Repository)
	}
	if pkg.Licenses != "MIT" {
		t.Errorf("unexpected licenses: %q", pkg.Licenses)
	}
}

func TestFetchPackageNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	reg := New(server.URL, core.DefaultClient())
	_, err := reg.FetchPackage(context.Background(), "nope")
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchVersions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/versions/nokogiri.json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(404)
			return
		}

		resp := []versionResponse{
			{
				Number:    "1.13.6",
				Platform:  "ruby",
				CreatedAt: "2022-05-08T14:34:51.113Z",
				Licenses:  []string{"MIT"},
			},
			{
				Number:    "1.13.6",
				Platform:  "x86_64-linux",
				CreatedAt: "2022-05-08T14:34:45.502Z",
				Licenses:  []string{"MIT", " BSD-3-Clause "},
			},
			{
				Number: "1.13.5",
				Yanked: true,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	reg := New(server.URL, core.DefaultClient())
	versions, err := reg.FetchVersions(context.Background(), "nokogiri")
	if err != nil {
		t.Fatalf("FetchVersions failed: %v", err)
	}

	if len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(versions))
	}

	if versions[0].Number != "1.13.6" {
		t.Errorf("expected version '1.13.6', got %q", versions[0].Number)
	}
	if versions[1].Number != "1.13.6-x86_64-linux" {
		t.Errorf("expected version '1.13.6-x86_64-linux', got %q", versions[1].Number)
	}
	if versions[1].Licenses != "MIT OR BSD-3-Clause" {
		t.Errorf("unexpected licenses: %q", versions[1].Licenses)
	}
	if versions[0].PublishedAt.IsZero() {
		t.Error("expected created_at to be parsed")
	}
	if versions[2].Status != core.StatusYanked {
		t.Errorf("expected yanked status, got %q", versions[2].Status)
	}
}

func TestDeclaredLicenseFallsBackToGem(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/versions/rack.json":
			_ = json.NewEncoder(w).Encode([]versionResponse{
				{Number: "3.0.0", Licenses: []string{"MIT"}},
				{Number: "0.1.0"},
			})
		case "/api/v1/gems/rack.json":
			_ = json.NewEncoder(w).Encode(gemResponse{Name: "rack", Licenses: []string{"MIT"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	reg := New(server.URL, core.DefaultClient())
	ctx := context.Background()

	for _, version := range []string{"3.0.0", "0.1.0"} {
		got, err := core.DeclaredLicense(ctx, reg, "rack", version)
		if err != nil {
			t.Fatalf("DeclaredLicense(%q) failed: %v", version, err)
		}
		if got != "MIT" {
			t.Errorf("DeclaredLicense(%q) = %q, want MIT", version, got)
		}
	}

	if _, err := core.DeclaredLicense(ctx, reg, "rack", "9.9.9"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown version, got %v", err)
	}
}

func TestURLBuilder(t *testing.T) {
	reg := New("https://rubygems.org", nil)
	urls := reg.URLs()

	tests := []struct {
		name     string
		fn       func() string
		expected string
	}{
		{"registry", func() string { return urls.Registry("rails", "7.1.0") }, "https://rubygems.org/gems/rails/versions/7.1.0"},
		{"license", func() string { return urls.License("rails", "7.1.0") }, "https://rubygems.org/api/v1/gems/rails.json"},
		{"purl", func() string { return urls.PURL("rails", "7.1.0") }, "pkg:gem/rails@7.1.0"},
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
	if reg.Ecosystem() != "gem" {
		t.Errorf("expected ecosystem 'gem', got %q", reg.Ecosystem())
	}
}
