// Package pub reads declared licenses from pub.dev (Dart/Flutter).
package pub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/git-pkgs/licenses/internal/core"
)

const (
	DefaultURL = "https://pub.dev"
	ecosystem  = "pub"
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
	Name     string        `json:"name"`
	Latest   versionInfo   `json:"latest"`
	Versions []versionInfo `json:"versions"`
}

type versionInfo struct {
	Version   string    `json:"version"`
	Retracted bool      `json:"retracted"`
	Published time.Time `json:"published"`
	Pubspec   pubspec   `json:"pubspec"`
}

type pubspec struct {
	Description string `json:"description"`
	Homepage    string `json:"homepage"`
	Repository  string `json:"repository"`
	License     string `json:"license"`
}

func (r *Registry) fetchPackage(ctx context.Context, name string) (*packageResponse, error) {
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

// FetchPackage returns metadata from the latest version's pubspec. Most
// pubspecs carry no license field, in which case Licenses is empty and the
// package's LICENSE file is the only evidence.
func (r *Registry) FetchPackage(ctx context.Context, name string) (*core.PackageInfo, error) {
	resp, err := r.fetchPackage(ctx, name)
	if err != nil {
		return nil, err
	}

	latest := resp.Latest.Pubspec
	repository := latest.Repository
	if repository == "" {
		repository = latest.Homepage
	}

	return &core.PackageInfo{
		Name:        resp.Name,
		Description: latest.Description,
		Homepage:    latest.Homepage,
		Repository:  repository,
		Licenses:    strings.TrimSpace(latest.License),
	}, nil
}

func (r *Registry) FetchVersions(ctx context.Context, name string) ([]core.Version, error) {
	resp, err := r.fetchPackage(ctx, name)
	if err != nil {
		return nil, err
	}

	versions := make([]core.Version, len(resp.Versions))
	for i, v := range resp.Versions {
		var status core.VersionStatus
		if v.Retracted {
			status = core.StatusRetracted
		}
		versions[i] = core.Version{
			Number:      v.Version,
			PublishedAt: v.Published,
			Licenses:    strings.TrimSpace(v.Pubspec.License),
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
		return fmt.Sprintf("%s/packages/%s/versions/%s", u.baseURL, name, version)
	}
	return fmt.Sprintf("%s/packages/%s", u.baseURL, name)
}

func (u *URLs) License(name, version string) string {
	return fmt.Sprintf("%s/api/packages/%s", u.baseURL, name)
}

func (u *URLs) PURL(name, version string) string {
	if version != "" {
		return fmt.Sprintf("pkg:pub/%s@%s", name, version)
	}
	return fmt.Sprintf("pkg:pub/%s", name)
}
