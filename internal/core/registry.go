package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry is the interface implemented by ecosystem clients that can report
// the license a package declares in its manifest.
type Registry interface {
	// Ecosystem returns the PURL type for this registry (e.g., "cargo", "npm", "gem").
	Ecosystem() string

	// FetchPackage retrieves package-level metadata, including the declared license
	// of the latest release.
	FetchPackage(ctx context.Context, name string) (*PackageInfo, error)

	// FetchVersions retrieves all versions of a package with their declared licenses.
	FetchVersions(ctx context.Context, name string) ([]Version, error)

	// URLs returns the URL builder for this registry.
	URLs() URLBuilder
}

// VersionLicenser is implemented by registries whose package document only
// describes the latest release and that serve per-version metadata from a
// separate endpoint.
type VersionLicenser interface {
	FetchVersionLicense(ctx context.Context, name, version string) (string, error)
}

// PackageInfo is registry metadata about a package.
type PackageInfo struct {
	Name        string
	Description string
	Homepage    string
	Repository  string
	Licenses    string // declared license expression as published
	Namespace   string
}

// Version is one published version and the license it declares.
type Version struct {
	Number      string
	PublishedAt time.Time
	Licenses    string
	Status      VersionStatus
}

// VersionStatus represents the status of a package version.
type VersionStatus string

const (
	StatusNone       VersionStatus = ""
	StatusYanked     VersionStatus = "yanked"
	StatusDeprecated VersionStatus = "deprecated"
	StatusRetracted  VersionStatus = "retracted"
)

// Factory creates a registry instance for a given base URL.
type Factory func(baseURL string, client *Client) Registry

var (
	factories = make(map[string]Factory)
	defaults  = make(map[string]string)
	mu        sync.RWMutex
)

// Register adds a registry factory to the global registry.
// ecosystem is the PURL type (e.g., "cargo", "npm", "gem", "pypi").
// defaultURL is the default registry URL for the ecosystem.
func Register(ecosystem string, defaultURL string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[ecosystem] = factory
	defaults[ecosystem] = defaultURL
}

// New creates a new registry for the given ecosystem.
// If baseURL is empty, the default registry URL is used.
func New(ecosystem string, baseURL string, client *Client) (Registry, error) {
	mu.RLock()
	factory, ok := factories[ecosystem]
	defaultURL := defaults[ecosystem]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown ecosystem: %s", ecosystem)
	}

	if baseURL == "" {
		baseURL = defaultURL
	}

	if client == nil {
		client = DefaultClient()
	}

	return factory(baseURL, client), nil
}

// SupportedEcosystems returns all registered ecosystem types, sorted.
func SupportedEcosystems() []string {
	mu.RLock()
	defer mu.RUnlock()

	ecosystems := make([]string, 0, len(factories))
	for eco := range factories {
		ecosystems = append(ecosystems, eco)
	}
	sort.Strings(ecosystems)
	return ecosystems
}

// DefaultURL returns the default registry URL for an ecosystem.
func DefaultURL(ecosystem string) string {
	mu.RLock()
	defer mu.RUnlock()
	return defaults[ecosystem]
}
