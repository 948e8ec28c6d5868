// Package hex reads declared licenses from hex.pm (Elixir/Erlang).
package hex

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/git-pkgs/licenses/internal/core"
)

const (
	DefaultURL = "https://hex.pm"
	ecosystem  = "hex"
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
	Name        string                    `json:"name"`
	Meta        metaInfo                  `json:"meta"`
	Releases    []releaseInfo             `json:"releases"`
	Retirements map[string]retirementInfo `json:"retirements"`
}

type metaInfo struct {
	Description string            `json:"description"`
	Licenses    []string          `json:"licenses"`
	Links       map[string]string `json:"links"`
}

type releaseInfo struct {
	Version    string `json:"version"`
	InsertedAt string `json:"inserted_at"`
}

type retirementInfo struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
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

// FetchPackage returns package metadata. hex.pm declares licenses per
// package, so every release shares this expression.
func (r *Registry) FetchPackage(ctx context.Context, name string) (*core.PackageInfo, error) {
	resp, err := r.fetchPackage(ctx, name)
	if err != nil {
		return nil, err
	}

	var homepage, repository, homeKey string
	for k, v := range resp.Meta.Links {
		switch {
		case strings.EqualFold(k, "github"):
			repository = v
		case homeKey == "" || k < homeKey:
			homeKey, homepage = k, v
		}
	}

	return &core.PackageInfo{
		Name:        resp.Name,
		Description: resp.Meta.Description,
		Homepage:    homepage,
		Repository:  repository,
		Licenses:    joinLicenses(resp.Meta.Licenses),
	}, nil
}

// FetchVersions lists releases. Licenses is left empty because hex.pm only
// publishes it at package level.
func (r *Registry) FetchVersions(ctx context.Context, name string) ([]core.Version, error) {
	resp, err := r.fetchPackage(ctx, name)
	if err != nil {
		return nil, err
	}

	versions := make([]core.Version, 0, len(resp.Releases))
	for _, rel := range resp.Releases {
		var publishedAt time.Time
		if rel.InsertedAt != "" {
			publishedAt, _ = time.Parse(time.RFC3339, rel.InsertedAt)
		}

		var status core.VersionStatus
		if _, retired := resp.Retirements[rel.Version]; retired {
			status = core.StatusRetracted
		}

		versions = append(versions, core.Version{
			Number:      rel.Version,
			PublishedAt: publishedAt,
			Status:      status,
		})
	}

	return versions, nil
}

// joinLicenses turns the meta licenses list into an expression.
func joinLicenses(licenses []string) string {
	parts := make([]string, 0, len(licenses))
	for _, l := range licenses {
		if l = strings.TrimSpace(l); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, " OR ")
}

type URLs struct {
	baseURL string
}

func (u *URLs) Registry(name, version string) string {
	if version != "" {
		return fmt.Sprintf("%s/packages/%s/%s", u.baseURL, name, version)
	}
	return fmt.Sprintf("%s/packages/%s", u.baseURL, name)
}

func (u *URLs) License(name, version string) string {
	return fmt.Sprintf("%s/api/packages/%s", u.baseURL, name)
}

func (u *URLs) PURL(name, version string) string {
	if version != "" {
		return fmt.Sprintf("pkg:hex/%s@%s", name, version)
	}
	return fmt.Sprintf("pkg:hex/%s", name)
}
