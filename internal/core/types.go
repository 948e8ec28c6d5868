// Package core provides shared types, identifier canonicalisation and the registry system.
package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Source records which collaborator reported a dependency.
type Source int

const (
	// ManifestDeclared dependencies come from a package manager graph and carry SPDX metadata.
	ManifestDeclared Source = iota
	// ScrapedRaw dependencies come from a scraping tool and carry raw license text only.
	ScrapedRaw
)

func (s Source) String() string {
	switch s {
	case ManifestDeclared:
		return "manifest"
	case ScrapedRaw:
		return "scraped"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Source) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "manifest", "manifest_declared", "declared":
		*s = ManifestDeclared
	case "scraped", "scraped_raw", "raw":
		*s = ScrapedRaw
	default:
		return fmt.Errorf("unknown dependency source %q", string(b))
	}
	return nil
}

// LicenseText is the raw content of a scraped license file.
type LicenseText struct {
	Label      string // path or file name, for traceability
	Content    string
	SourceType string // selects the comment markers stripped during normalization
}

// Dependency is one input record from the graph walker or the scraper.
type Dependency struct {
	Name             string
	Version          string
	PURL             string
	Source           Source
	KnownIdentifiers []Identifier
	// Expression is the declared SPDX expression with its operators intact.
	// KnownIdentifiers flattens it; policy minimization needs the choices.
	Expression string
	RawTexts   []LicenseText
}

// Validate checks the input invariant: a dependency needs a name and at least
// one known identifier or raw text.
func (d Dependency) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return &MalformedDependencyError{Name: d.Name, Version: d.Version, Reason: "missing name"}
	}
	if len(d.KnownIdentifiers) == 0 && len(d.RawTexts) == 0 {
		return &MalformedDependencyError{Name: d.Name, Version: d.Version, Reason: "no known identifiers and no raw license texts"}
	}
	return nil
}

// Span is a byte range [Start, End) within a normalized text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int {
	if s.End <= s.Start {
		return 0
	}
	return s.End - s.Start
}

// Overlap returns the number of bytes shared by two spans.
func (s Span) Overlap(o Span) int {
	start := max(s.Start, o.Start)
	end := min(s.End, o.End)
	if end <= start {
		return 0
	}
	return end - start
}

// MatchCandidate is one identifier the matcher believes a blob contains.
type MatchCandidate struct {
	Identifier Identifier `json:"identifier"`
	Confidence float64    `json:"confidence"`
	Span       *Span      `json:"span,omitempty"`
}

// Package is the final per-dependency record.
type Package struct {
	Name            string       `json:"name"`
	Version         string       `json:"version"`
	PURL            string       `json:"purl,omitempty"`
	Expression      string       `json:"expression,omitempty"`
	Licenses        []Identifier `json:"licenses"`
	Unresolved      bool         `json:"unresolved"`
	UnresolvedTexts []string     `json:"unresolved_texts,omitempty"`
	// Minimized is the smallest accepted subset of Licenses that satisfies
	// the package, set only when an accepted license policy is in force.
	Minimized []Identifier `json:"minimized,omitempty"`
	// Rejected reports that no choice of accepted licenses satisfies the
	// package.
	Rejected bool `json:"rejected,omitempty"`
}

// Key returns the (name, version) pair identifying the package.
func (p Package) Key() PackageRef {
	return PackageRef{Name: p.Name, Version: p.Version}
}

// HasLicense reports whether id is in the package's license set.
func (p Package) HasLicense(id Identifier) bool {
	i := sort.Search(len(p.Licenses), func(i int) bool { return p.Licenses[i] >= id })
	return i < len(p.Licenses) && p.Licenses[i] == id
}

// PackageRef names a dependency by name and version.
type PackageRef struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (r PackageRef) String() string {
	if r.Version == "" {
		return r.Name
	}
	return r.Name + " " + r.Version
}

// Less orders refs by name, then version.
func (r PackageRef) Less(o PackageRef) bool {
	if r.Name != o.Name {
		return r.Name < o.Name
	}
	return r.Version < o.Version
}

// UnresolvedPackage names a package with at least one unclassified text.
type UnresolvedPackage struct {
	PackageRef
	Texts []string `json:"texts,omitempty"`
}

// SkippedDependency names an input record dropped from the result.
type SkippedDependency struct {
	PackageRef
	Reason string `json:"reason"`
}

// Summary holds run-level statistics for the reporting side.
type Summary struct {
	Total      int                 `json:"total"`
	Unresolved []UnresolvedPackage `json:"unresolved"`
	Skipped    []SkippedDependency `json:"skipped"`
	Rejected   []PackageRef        `json:"rejected,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	Duration   time.Duration       `json:"duration"`
}

// UnresolvedCount returns the number of unresolved packages.
func (s Summary) UnresolvedCount() int { return len(s.Unresolved) }

// SkippedCount returns the number of skipped malformed dependencies.
func (s Summary) SkippedCount() int { return len(s.Skipped) }

// RejectedCount returns the number of packages outside the accepted policy.
func (s Summary) RejectedCount() int { return len(s.Rejected) }
