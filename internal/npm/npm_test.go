package npm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/git-pkgs/licenses/internal/core"
)

func TestFetchPackage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"_id":         "react",
			"name":        "react",
			"description": "React is a JavaScript library for building user interfaces.",
			"homepage":    "https://reactjs.org/",
			"repository": map[string]string{
				"type": "git",
				"url":  "git+https://github.com/facebook/react.git",
			},
			"dist-tags": map[string]string{"latest": "18.3.1"},
			"versions": map[string]interface{}{
				"18.3.1": map[string]interface{}{
					"name":    "react",
					"version": "18.3.1",
					"license": "MIT",
				},
			},
			"time": map[string]string{
				"18.3.1": "2024-04-26T16:09:06.245Z",
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	reg := New(server.URL, core.DefaultClient())
	pkg, err := reg.FetchPackage(context.Background(), "react")
	if err != nil {
		t.Fatalf("FetchPackage failed: %v", err)
	}

	if pkg.Name != "react" {
		t.Errorf("expected name 'react', got %q", pkg.Name)
	}
	if pkg.Licenses != "MIT" {
		t.Errorf("expected license 'MIT', got %q", pkg.Licenses)
	}
	if pkg.Repository != "https://github.com/facebook/react" {
		t.Errorf("unexpected repository: %q", pkg.Repository)
	}
}

func TestFetchPackageScoped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/@babel/core" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		resp := map[string]interface{}{
			"_id":       "@babel/core",
			"name":      "@babel/core",
			"dist-tags": map[string]string{"latest": "7.24.0"},
			"versions": map[string]interface{}{
				"7.24.0": map[string]interface{}{"name": "@babel/core", "version": "7.24.0", "license": "MIT"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	reg := New(server.URL, core.DefaultClient())
	pkg, err := reg.FetchPackage(context.Background(), "@babel/core")
	if err != nil {
		t.Fatalf("FetchPackage failed: %v", err)
	}

	if pkg.Name != "@babel/core" {
		t.Errorf("expected name '@babel/core', got %q", pkg.Name)
	}
	if pkg.Namespace != "babel" {
		t.Errorf("expected namespace 'babel', got %q", pkg.Namespace)
	}
}

func TestFetchVersionsLicenseShapes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"_id": "legacy",
			"versions": map[string]interface{}{
				"3.0.0": map[string]interface{}{"license": "(MIT OR Apache-2.0)"},
				"2.0.0": map[string]interface{}{"license": map[string]string{"type": "BSD-3-Clause", "url": "https://example.com"}},
				"1.0.0": map[string]interface{}{
					"licenses": []map[string]string{{"type": "MIT"}, {"type": "GPL-2.0"}},
				},
				"0.1.0": map[string]interface{}{"deprecated": "do not use"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	reg := New(server.URL, core.DefaultClient())
	versions, err := reg.FetchVersions(context.Background(), "legacy")
	if err != nil {
		t.Fatalf("FetchVersions failed: %v", err)
	}

	got := make(map[string]core.Version, len(versions))
	for _, v := range versions {
		got[v.Number] = v
	}
	tests := map[string]string{
		"3.0.0": "(MIT OR Apache-2.0)",
		"2.0.0": "BSD-3-Clause",
		"1.0.0": "MIT OR GPL-2.0",
		"0.1.0": "",
	}
	for version, want := range tests {
		if got[version].Licenses != want {
			t.Errorf("%s: Licenses = %q, want %q", version, got[version].Licenses, want)
		}
	}
	if got["0.1.0"].Status != core.StatusDeprecated {
		t.Errorf("expected deprecated status, got %q", got["0.1.0"].Status)
	}

	lic, err := core.DeclaredLicense(context.Background(), reg, "legacy", "1.0.0")
	if err != nil || lic != "MIT OR GPL-2.0" {
		t.Errorf("DeclaredLicense = %q, %v", lic, err)
	}
}

func TestURLBuilder(t *testing.T) {
	reg := New("https://registry.npmjs.org", nil)
	urls := reg.URLs()

	tests := []struct {
		name     string
		fn       func() string
		expected string
	}{
		{"registry", func() string { return urls.Registry("lodash", "4.17.21") }, "https://www.npmjs.com/package/lodash/v/4.17.21"},
		{"license", func() string { return urls.License("lodash", "4.17.21") }, "https://registry.npmjs.org/lodash"},
		{"license scoped", func() string { return urls.License("@babel/core", "") }, "https://registry.npmjs.org/@babel%2Fcore"},
		{"purl", func() string { return urls.PURL("lodash", "4.17.21") }, "pkg:npm/lodash@4.17.21"},
		{"purl scoped", func() string { return urls.PURL("@babel/core", "7.24.0") }, "pkg:npm/%40babel/core@7.24.0"},
		{"purl no version", func() string { return urls.PURL("lodash", "") }, "pkg:npm/lodash"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestPURLRoundTrip(t *testing.T) {
	urls := New("", nil).URLs()
	p, err := core.ParsePURL(urls.PURL("@babel/core", "7.24.0"))
	if err != nil {
		t.Fatalf("ParsePURL failed: %v", err)
	}
	if p.FullName() != "@babel/core" || p.Version != "7.24.0" {
		t.Errorf("round trip = %q %q", p.FullName(), p.Version)
	}
}

func TestExtractNamespace(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"@babel/core", "babel"},
		{"lodash", ""},
		{"@types/node", "types"},
	}
	for _, tt := range tests {
		if got := extractNamespace(tt.id); got != tt.want {
			t.Errorf("extractNamespace(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}
