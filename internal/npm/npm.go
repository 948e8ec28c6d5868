// Package npm reads declared licenses from the npm registry.
package npm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/git-pkgs/licenses/internal/core"
)

const (
	DefaultURL = "https://registry.npmjs.org"
	ecosystem  = "npm"
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
	ID          string                 `json:"_id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Homepage    interface{}            `json:"homepage"`
	Repository  interface{}            `json:"repository"`
	Versions    map[string]versionInfo `json:"versions"`
	Time        map[string]string      `json:"time"`
	DistTags    map[string]string      `json:"dist-tags"`
}

type versionInfo struct {
	Name        string      `json:"name"`
	Version     string      `json:"version"`
	Description string      `json:"description"`
	License     interface{} `json:"license"`
	Licenses    interface{} `json:"licenses"` // pre-2015 manifests
	Repository  interface{} `json:"repository"`
	Deprecated  string      `json:"deprecated"`
}

func (v versionInfo) declared() string {
	if l := extractLicense(v.License); l != "" {
		return l
	}
	return extractLicense(v.Licenses)
}

func (r *Registry) fetchDocument(ctx context.Context, name string) (*packageResponse, error) {
	var resp packageResponse
	if err := r.client.GetJSON(ctx, r.urls.License(name, ""), &resp); err != nil {
		var httpErr *core.HTTPError
		if errors.As(err, &httpErr) && httpErr.IsNotFound() {
			return nil, &core.NotFoundError{Ecosystem: ecosystem, Name: name}
		}
		return nil, err
	}
	return &resp, nil
}

// FetchPackage returns package metadata with the license of the "latest" dist-tag.
func (r *Registry) FetchPackage(ctx context.Context, name string) (*core.PackageInfo, error) {
	resp, err := r.fetchDocument(ctx, name)
	if err != nil {
		return nil, err
	}

	latestVersion := resp.DistTags["latest"]
	var latest versionInfo
	if latestVersion != "" {
		latest = resp.Versions[latestVersion]
	} else {
		for _, v := range resp.Versions {
			latest = v
			break
		}
	}

	return &core.PackageInfo{
		Name:        resp.ID,
		Description: coalesceString(latest.Description, resp.Description),
		Homepage:    extractString(resp.Homepage),
		Repository:  extractRepoURL(resp.Repository, latest.Repository),
		Licenses:    latest.declared(),
		Namespace:   extractNamespace(resp.ID),
	}, nil
}

// FetchVersions returns every published version with its license field.
func (r *Registry) FetchVersions(ctx context.Context, name string) ([]core.Version, error) {
	resp, err := r.fetchDocument(ctx, name)
	if err != nil {
		return nil, err
	}

	versions := make([]core.Version, 0, len(resp.Versions))
	for num, v := range resp.Versions {
		var publishedAt time.Time
		if timeStr, ok := resp.Time[num]; ok {
			publishedAt, _ = time.Parse(time.RFC3339, timeStr)
		}

		var status core.VersionStatus
		if v.Deprecated != "" {
			status = core.StatusDeprecated
		}

		versions = append(versions, core.Version{
			Number:      num,
			PublishedAt: publishedAt,
			Licenses:    v.declared(),
			Status:      status,
		})
	}

	return versions, nil
}

func extractString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if arr, ok := v.([]interface{}); ok && len(arr) > 0 {
		if s, ok := arr[0].(string); ok {
			return s
		}
	}
	return ""
}

func extractRepoURL(pkgRepo, versionRepo interface{}) string {
	for _, repo := range []interface{}{versionRepo, pkgRepo} {
		switch r := repo.(type) {
		case string:
			return normalizeGitURL(r)
		case map[string]interface{}:
			if url, ok := r["url"].(string); ok {
				return normalizeGitURL(url)
			}
		}
	}
	return ""
}

func normalizeGitURL(u string) string {
	u = strings.TrimPrefix(u, "git+")
	u = strings.TrimPrefix(u, "git://")
	u = strings.TrimSuffix(u, ".git")
	if strings.HasPrefix(u, "github.com/") {
		u = "https://" + u
	}
	return u
}

// extractLicense flattens the shapes npm has used for the license field: an
// SPDX string, a {"type": ...} object, or a list of either. Lists are offered
// alternatives and are joined with OR.
func extractLicense(v interface{}) string {
	switch l := v.(type) {
	case string:
		return strings.TrimSpace(l)
	case map[string]interface{}:
		if t, ok := l["type"].(string); ok {
			return strings.TrimSpace(t)
		}
	case []interface{}:
		var licenses []string
		for _, item := range l {
			if s := extractLicense(item); s != "" {
				licenses = append(licenses, s)
			}
		}
		return strings.Join(licenses, " OR ")
	}
	return ""
}

func extractNamespace(id string) string {
	if strings.HasPrefix(id, "@") && strings.Contains(id, "/") {
		parts := strings.SplitN(id, "/", 2)
		return strings.TrimPrefix(parts[0], "@")
	}
	return ""
}

func coalesceString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

type URLs struct {
	baseURL string
}

func (u *URLs) Registry(name, version string) string {
	if version != "" {
		return fmt.Sprintf("https://www.npmjs.com/package/%s/v/%s", name, version)
	}
	return fmt.Sprintf("https://www.npmjs.com/package/%s", name)
}

// License returns the packument the declared license is read from.
func (u *URLs) License(name, version string) string {
	return fmt.Sprintf("%s/%s", u.baseURL, url.PathEscape(name))
}

func (u *URLs) PURL(name, version string) string {
	pkgName := name
	namespace := ""
	if strings.HasPrefix(name, "@") && strings.Contains(name, "/") {
		parts := strings.SplitN(name, "/", 2)
		namespace = "%40" + strings.TrimPrefix(parts[0], "@")
		pkgName = parts[1]
	}

	purl := "pkg:npm/" + pkgName
	if namespace != "" {
		purl = "pkg:npm/" + namespace + "/" + pkgName
	}
	if version != "" {
		purl += "@" + version
	}
	return purl
}
