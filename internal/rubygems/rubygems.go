// Package rubygems reads declared licenses from rubygems.org.
package rubygems

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/git-pkgs/licenses/internal/core"
)

const (
	DefaultURL = "https://rubygems.org"
	ecosystem  = "gem"
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

type gemResponse struct {
	Name          string   `json:"name"`
	Info          string   `json:"info"`
	Version       string   `json:"version"`
	Licenses      []string `json:"licenses"`
	HomepageURI   string   `json:"homepage_uri"`
	SourceCodeURI string   `json:"source_code_uri"`
	WikiURI       string   `json:"wiki_uri"`
	DocumentURI   string   `json:"documentation_uri"`
	BugTrackerURI string   `json:"bug_tracker_uri"`
	ChangelogURI  string   `json:"changelog_uri"`
}

type versionResponse struct {
	Number    string   `json:"number"`
	Platform  string   `json:"platform"`
	CreatedAt string   `json:"created_at"`
	Licenses  []string `json:"licenses"`
	Yanked    bool     `json:"yanked"`
}

func (r *Registry) getJSON(ctx context.Context, url, name string, v any) error {
	if err := r.client.GetJSON(ctx, url, v); err != nil {
		var httpErr *core.HTTPError
		if errors.As(err, &httpErr) && httpErr.IsNotFound() {
			return &core.NotFoundError{Ecosystem: ecosystem, Name: name}
		}
		return err
	}
	return nil
}

func (r *Registry) FetchPackage(ctx context.Context, name string) (*core.PackageInfo, error) {
	var resp gemResponse
	if err := r.getJSON(ctx, r.urls.License(name, ""), name, &resp); err != nil {
		return nil, err
	}

	repoURL := extractRepoURL(resp.SourceCodeURI, resp.WikiURI, resp.DocumentURI, resp.BugTrackerURI, resp.ChangelogURI, resp.HomepageURI)

	return &core.PackageInfo{
		Name:        resp.Name,
		Description: resp.Info,
		Homepage:    resp.HomepageURI,
		Repository:  repoURL,
		Licenses:    joinLicenses(resp.Licenses),
	}, nil
}

func extractRepoURL(urls ...string) string {
	for _, u := range urls {
		if u == "" {
			continue
		}
		if strings.Contains(u, "github.com") || strings.Contains(u, "gitlab.com") || strings.Contains(u, "bitbucket.org") {
			return u
		}
	}
	for _, u := range urls {
		if u != "" {
			return u
		}
	}
	return ""
}

// joinLicenses turns a gemspec licenses list into an expression. A gem
// listing several licenses may be used under any of them.
func joinLicenses(licenses []string) string {
	parts := make([]string, 0, len(licenses))
	for _, l := range licenses {
		if l = strings.TrimSpace(l); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, " OR ")
}

// FetchVersions returns every release. Platform-specific builds are reported
// as "<number>-<platform>" so they do not shadow the pure-ruby release.
func (r *Registry) FetchVersions(ctx context.Context, name string) ([]core.Version, error) {
	var resp []versionResponse
	if err := r.getJSON(ctx, fmt.Sprintf("%s/api/v1/versions/%s.json", r.baseURL, name), name, &resp); err != nil {
		return nil, err
	}

	versions := make([]core.Version, len(resp))
	for i, v := range resp {
		var publishedAt time.Time
		if v.CreatedAt != "" {
			publishedAt, _ = time.Parse(time.RFC3339, v.CreatedAt)
		}

		number := v.Number
		if v.Platform != "" && v.Platform != "ruby" {
			number = fmt.Sprintf("%s-%s", v.Number, v.Platform)
		}

		var status core.VersionStatus
		if v.Yanked {
			status = core.StatusYanked
		}

		versions[i] = core.Version{
			Number:      number,
			PublishedAt: publishedAt,
			Licenses:    joinLicenses(v.Licenses),
			Status:      status,
		}
	}

	return versions, nil
}

type URLs struct {
	baseURL string
}

func (u *URLs) Registry(name, version string) string {
	if version != "" {
		return fmt.Sprintf("%s/gems/%s/versions/%s", u.baseURL, name, version)
	}
	return fmt.Sprintf("%s/gems/%s", u.baseURL, name)
}

// License returns the gem document carrying the latest licenses list.
func (u *URLs) License(name, version string) string {
	return fmt.Sprintf("%s/api/v1/gems/%s.json", u.baseURL, name)
}

func (u *URLs) PURL(name, version string) string {
	if version != "" {
		return fmt.Sprintf("pkg:gem/%s@%s", name, version)
	}
	return fmt.Sprintf("pkg:gem/%s", name)
}
