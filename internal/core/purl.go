package core

import (
	"context"
	"fmt"

	packageurl "github.com/package-url/packageurl-go"
)

// PURL wraps packageurl.PackageURL with registry-specific helpers.
type PURL struct {
	packageurl.PackageURL
}

// FullName returns the package name in the format expected by the registry.
// For npm: "@babel/core", for maven: "org.apache.commons:commons-lang3"
func (p PURL) FullName() string {
	if p.Namespace == "" {
		return p.Name
	}

	switch p.Type {
	case "npm":
		// packageurl-go keeps @ in namespace, so "@babel" + "/" + "core" = "@babel/core"
		return p.Namespace + "/" + p.Name
	case "maven":
		return p.Namespace + ":" + p.Name
	default:
		return p.Namespace + "/" + p.Name
	}
}

// ParsePURL parses a Package URL string into its components.
// Supports both package PURLs (pkg:cargo/serde) and version PURLs (pkg:cargo/serde@1.0.0).
func ParsePURL(purl string) (*PURL, error) {
	p, err := packageurl.FromString(purl)
	if err != nil {
		return nil, err
	}
	return &PURL{p}, nil
}

// NewFromPURL creates a registry client from a PURL and returns the parsed components.
// Returns the registry, full package name, and version (empty if not in PURL).
// If the PURL has a repository_url qualifier, it's used as the base URL for private registries.
func NewFromPURL(purl string, client *Client) (Registry, string, string, error) {
	p, err := ParsePURL(purl)
	if err != nil {
		return nil, "", "", err
	}

	baseURL := p.Qualifiers.Map()["repository_url"]

	reg, err := New(p.Type, baseURL, client)
	if err != nil {
		return nil, "", "", err
	}

	return reg, p.FullName(), p.Version, nil
}

// DeclaredLicense returns the license expression a package declares for a
// version. Registries that only publish package-level metadata, or versions
// without a license field, fall back to the package's latest declaration.
func DeclaredLicense(ctx context.Context, reg Registry, name, version string) (string, error) {
	if vl, ok := reg.(VersionLicenser); ok && version != "" {
		lic, err := vl.FetchVersionLicense(ctx, name, version)
		if err != nil || lic != "" {
			return lic, err
		}
	} else if version != "" {
		versions, err := reg.FetchVersions(ctx, name)
		if err != nil {
			return "", err
		}
		found := false
		for _, v := range versions {
			if v.Number != version {
				continue
			}
			found = true
			if v.Licenses != "" {
				return v.Licenses, nil
			}
			break
		}
		if !found {
			return "", &NotFoundError{Ecosystem: reg.Ecosystem(), Name: name, Version: version}
		}
	}

	pkg, err := reg.FetchPackage(ctx, name)
	if err != nil {
		return "", err
	}
	return pkg.Licenses, nil
}

// DeclaredLicenseFromPURL resolves the registry for a PURL and returns the
// license expression declared for its version.
func DeclaredLicenseFromPURL(ctx context.Context, purl string, client *Client) (string, error) {
	reg, name, version, err := NewFromPURL(purl, client)
	if err != nil {
		return "", err
	}
	lic, err := DeclaredLicense(ctx, reg, name, version)
	if err != nil {
		return "", fmt.Errorf("%s: %w", purl, err)
	}
	return lic, nil
}
