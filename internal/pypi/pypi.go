// Package pypi reads declared licenses from the PyPI JSON API.
package pypi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/git-pkgs/licenses/internal/core"
)

const (
	DefaultURL = "https://pypi.org"
	ecosystem  = "pypi"
)

func init() {
	core.Register(ecosystem, DefaultURL, func(baseURL string, client *core.Client) core.Registry {
		return New(baseURL, client)
	})
}

type Registry struct {
	baseURL string
	client  *core.Client
	urls    *URLs
}

func New(baseURL string, client *core.Client) *Registry {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	r := &Registry{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
	}
	r.urls = &URLs{baseURL: r.baseURL}
	return r
}

func (r *Registry) Ecosystem() string {
	return ecosystem
}

func (r *Registry) URLs() core.URLBuilder {
	return r.urls
}

type packageResponse struct {
	Info     infoBlock                `json:"info"`
	Releases map[string][]releaseFile `json:"releases"`
}

type infoBlock struct {
	Name              string            `json:"name"`
	Summary           string            `json:"summary"`
	HomePage          string            `json:"home_page"`
	License           string            `json:"license"`
	LicenseExpression string            `json:"license_expression"`
	Version           string            `json:"version"`
	Classifiers       []string          `json:"classifiers"`
	ProjectURLs       map[string]string `json:"project_urls"`
}

type releaseFile struct {
	UploadTime string `json:"upload_time"`
	Yanked     bool   `json:"yanked"`
}

func (r *Registry) fetch(ctx context.Context, name, version string) (*packageResponse, error) {
	var resp packageResponse
	if err := r.client.GetJSON(ctx, r.urls.License(name, version), &resp); err != nil {
		var httpErr *core.HTTPError
		if errors.As(err, &httpErr) && httpErr.IsNotFound() {
			return nil, &core.NotFoundError{Ecosystem: ecosystem, Name: name, Version: version}
		}
		return nil, err
	}
	return &resp, nil
}

func (r *Registry) FetchPackage(ctx context.Context, name string) (*core.PackageInfo, error) {
	resp, err := r.fetch(ctx, name, "")
	if err != nil {
		return nil, err
	}

	return &core.PackageInfo{
		Name:        normalizeName(resp.Info.Name),
		Description: resp.Info.Summary,
		Homepage:    extractHomepage(resp.Info.ProjectURLs, resp.Info.HomePage),
		Repository:  extractRepoURL(resp.Info.ProjectURLs, resp.Info.HomePage),
		Licenses:    extractLicense(resp.Info),
	}, nil
}

// FetchVersions lists releases. The package document only carries metadata
// for the latest release, so only that version has Licenses set; use
// FetchVersionLicense for the others.
func (r *Registry) FetchVersions(ctx context.Context, name string) ([]core.Version, error) {
	resp, err := r.fetch(ctx, name, "")
	if err != nil {
		return nil, err
	}

	latestLicense := extractLicense(resp.Info)
	versions := make([]core.Version, 0, len(resp.Releases))
	for num, files := range resp.Releases {
		v := core.Version{Number: num}
		if num == resp.Info.Version {
			v.Licenses = latestLicense
		}
		if len(files) > 0 {
			file := files[0]
			if file.UploadTime != "" {
				v.PublishedAt, _ = time.Parse("2006-01-02T15:04:05", file.UploadTime)
			}
			if file.Yanked {
				v.Status = core.StatusYanked
			}
		}
		versions = append(versions, v)
	}

	return versions, nil
}

// FetchVersionLicense reads the license metadata of one release.
func (r *Registry) FetchVersionLicense(ctx context.Context, name, version string) (string, error) {
	resp, err := r.fetch(ctx, name, version)
	if err != nil {
		return "", err
	}
	return extractLicense(resp.Info), nil
}

func extractRepoURL(projectURLs map[string]string, homePage string) string {
	priorityKeys := []string{"Repository", "Source", "Source Code", "Code"}
	for _, key := range priorityKeys {
		if url, ok := projectURLs[key]; ok && url != "" {
			if isRepoURL(url) {
				return url
			}
		}
	}

	for _, url := range projectURLs {
		if isRepoURL(url) && !strings.Contains(url, "github.com/sponsors") {
			return url
		}
	}

	if isRepoURL(homePage) {
		return homePage
	}

	return ""
}

func extractHomepage(projectURLs map[string]string, homePage string) string {
	if homePage != "" {
		return homePage
	}
	if url, ok := projectURLs["Homepage"]; ok {
		return url
	}
	if url, ok := projectURLs["Home"]; ok {
		return url
	}
	return ""
}

func isRepoURL(url string) bool {
	return strings.Contains(url, "github.com") ||
		strings.Contains(url, "gitlab.com") ||
		strings.Contains(url, "bitbucket.org") ||
		strings.Contains(url, "codeberg.org")
}

// classifierLicenses maps trove classifier leaves to SPDX identifiers.
var classifierLicenses = map[string]string{
	"MIT License":                                   "MIT",
	"Apache Software License":                       "Apache-2.0",
	"BSD License":                                   "BSD-3-Clause",
	"ISC License (ISCL)":                            "ISC",
	"Mozilla Public License 2.0 (MPL 2.0)":          "MPL-2.0",
	"GNU General Public License v2 (GPLv2)":         "GPL-2.0-only",
	"GNU General Public License v3 (GPLv3)":         "GPL-3.0-only",
	"GNU Lesser General Public License v3 (LGPLv3)": "LGPL-3.0-only",
	"The Unlicense (Unlicense)":                     "Unlicense",
	"Python Software Foundation License":            "PSF-2.0",
}

// extractLicense prefers the PEP 639 license_expression, then the free-form
// license field, then trove classifiers. A license field holding a pasted
// license text is not an expression and is skipped.
func extractLicense(info infoBlock) string {
	if expr := strings.TrimSpace(info.LicenseExpression); expr != "" {
		return expr
	}
	if lic := strings.TrimSpace(info.License); lic != "" && !strings.Contains(lic, "\n") && len(lic) <= 100 {
		return lic
	}

	var ids []string
	for _, classifier := range info.Classifiers {
		if !strings.HasPrefix(classifier, "License :: ") {
			continue
		}
		parts := strings.Split(classifier, " :: ")
		leaf := parts[len(parts)-1]
		if leaf == "OSI Approved" {
			continue
		}
		if id, ok := classifierLicenses[leaf]; ok {
			leaf = id
		}
		ids = append(ids, leaf)
	}
	return strings.Join(ids, " OR ")
}

func normalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "_", "-")
	name = strings.ReplaceAll(name, ".", "-")
	return name
}

type URLs struct {
	baseURL string
}

func (u *URLs) Registry(name, version string) string {
	if version != "" {
		return fmt.Sprintf("%s/project/%s/%s/", u.baseURL, name, version)
	}
	return fmt.Sprintf("%s/project/%s/", u.baseURL, name)
}

// License returns the JSON API document for the package or one release.
func (u *URLs) License(name, version string) string {
	if version != "" {
		return fmt.Sprintf("%s/pypi/%s/%s/json", u.baseURL, name, version)
	}
	return fmt.Sprintf("%s/pypi/%s/json", u.baseURL, name)
}

func (u *URLs) PURL(name, version string) string {
	normalized := normalizeName(name)
	if version != "" {
		return fmt.Sprintf("pkg:pypi/%s@%s", normalized, version)
	}
	return fmt.Sprintf("pkg:pypi/%s", normalized)
}
