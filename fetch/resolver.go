package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/git-pkgs/licenses/internal/core"
)

// DefaultBaseURL serves the JSON flavour of the SPDX license list.
const DefaultBaseURL = "https://raw.githubusercontent.com/spdx/license-list-data/main/json"

var ErrUnknownLicense = errors.New("license not in SPDX list")

// ListEntry is one license in the SPDX index.
type ListEntry struct {
	LicenseID    string `json:"licenseId"`
	Name         string `json:"name"`
	DetailsURL   string `json:"detailsUrl"`
	IsDeprecated bool   `json:"isDeprecatedLicenseId"`
	IsOSI        bool   `json:"isOsiApproved"`
}

// Index is the SPDX licenses.json document.
type Index struct {
	Version     string      `json:"licenseListVersion"`
	ReleaseDate string      `json:"releaseDate"`
	Licenses    []ListEntry `json:"licenses"`
}

// Lookup returns the entry for id, comparing case-insensitively.
func (ix *Index) Lookup(id string) (ListEntry, bool) {
	for _, e := range ix.Licenses {
		if strings.EqualFold(e.LicenseID, id) {
			return e, true
		}
	}
	return ListEntry{}, false
}

// Resolver builds license-list URLs under a base URL.
type Resolver struct {
	base string
}

// NewResolver creates a resolver for base. An empty base uses DefaultBaseURL.
func NewResolver(base string) *Resolver {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return &Resolver{base: base}
}

// BaseURL returns the resolver's base.
func (r *Resolver) BaseURL() string { return r.base }

// IndexURL returns the URL of licenses.json.
func (r *Resolver) IndexURL() string {
	return r.base + "/licenses.json"
}

// DetailsURL returns the URL of the detail document for id.
func (r *Resolver) DetailsURL(id string) string {
	return r.base + "/details/" + url.PathEscape(id) + ".json"
}

// FetchIndex downloads and decodes licenses.json.
func (r *Resolver) FetchIndex(ctx context.Context, g Getter) (*Index, []byte, error) {
	doc, err := g.Fetch(ctx, r.IndexURL())
	if err != nil {
		return nil, nil, fmt.Errorf("fetch license index: %w", err)
	}
	defer func() { _ = doc.Body.Close() }()

	data, err := io.ReadAll(doc.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read license index: %w", err)
	}
	var ix Index
	if err := json.Unmarshal(data, &ix); err != nil {
		return nil, nil, fmt.Errorf("decode license index: %w", err)
	}
	if len(ix.Licenses) == 0 {
		return nil, nil, errors.New("license index lists no licenses")
	}
	return &ix, data, nil
}

// Select returns the index entries to download, sorted by id. With no ids it
// returns every entry, dropping deprecated ones unless includeDeprecated is
// set. Requested ids are canonicalised and must be in the index.
func (r *Resolver) Select(ix *Index, ids []string, includeDeprecated bool) ([]ListEntry, error) {
	var out []ListEntry
	if len(ids) == 0 {
		for _, e := range ix.Licenses {
			if e.IsDeprecated && !includeDeprecated {
				continue
			}
			out = append(out, e)
		}
	} else {
		seen := make(map[string]struct{}, len(ids))
		for _, raw := range ids {
			id, err := core.NewIdentifier(raw)
			if err != nil {
				return nil, fmt.Errorf("license %q: %w", raw, err)
			}
			e, ok := ix.Lookup(id.String())
			if !ok {
				e, ok = ix.Lookup(strings.TrimSpace(raw))
			}
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownLicense, raw)
			}
			if _, dup := seen[e.LicenseID]; dup {
				continue
			}
			seen[e.LicenseID] = struct{}{}
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LicenseID < out[j].LicenseID })
	return out, nil
}
