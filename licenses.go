// Package licenses builds a consolidated license inventory for a product's
// third-party dependencies.
//
// Dependencies arrive from two collaborators: a package manager graph that
// already carries SPDX identifiers, and a scraper that harvests raw license
// files. Raw texts are normalized and matched against a reference corpus of
// license texts; the matches are reconciled with the declared identifiers
// into one record per (name, version).
//
// Basic usage:
//
//	import (
//		"context"
//		"github.com/git-pkgs/licenses"
//	)
//
//	corpus, err := licenses.BuiltinCorpus()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	deps := []licenses.Dependency{{
//		Name:     "left-pad",
//		Version:  "1.3.0",
//		Source:   licenses.ScrapedRaw,
//		RawTexts: []licenses.LicenseText{{Label: "LICENSE", Content: text}},
//	}}
//
//	result, err := licenses.Run(context.Background(), corpus, deps)
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, pkg := range result.Packages {
//		fmt.Println(pkg.Name, pkg.Version, pkg.Licenses)
//	}
//
// Declared licenses of dependencies that only carry a PURL can be looked up
// in their package registry. Import the ecosystems to register them:
//
//	import (
//		"github.com/git-pkgs/licenses"
//		_ "github.com/git-pkgs/licenses/all"
//	)
//
//	expr, err := licenses.DeclaredLicenseFromPURL(ctx, "pkg:cargo/serde@1.0.195", nil)
package licenses

import (
	"context"
	"log/slog"

	"github.com/git-pkgs/licenses/client"
	"github.com/git-pkgs/licenses/internal/aggregate"
	"github.com/git-pkgs/licenses/internal/core"
	"github.com/git-pkgs/licenses/internal/corpus"
	"github.com/git-pkgs/licenses/internal/ingest"
	"github.com/git-pkgs/licenses/internal/match"
	"github.com/git-pkgs/licenses/internal/normalize"
	"github.com/git-pkgs/licenses/internal/policy"
	"github.com/git-pkgs/purl"
)

// Re-export the data model from internal/core
type (
	// Identifier is a canonical license token.
	Identifier = core.Identifier

	// Source records which collaborator reported a dependency.
	Source = core.Source

	// LicenseText is the raw content of a scraped license file.
	LicenseText = core.LicenseText

	// Dependency is one input record.
	Dependency = core.Dependency

	// Package is the final per-dependency record.
	Package = core.Package

	// PackageRef names a dependency by name and version.
	PackageRef = core.PackageRef

	// Summary holds run-level statistics.
	Summary = core.Summary

	UnresolvedPackage = core.UnresolvedPackage
	SkippedDependency = core.SkippedDependency

	// MatchCandidate is one identifier the matcher found in a text.
	MatchCandidate = core.MatchCandidate

	// Span is a byte range within a normalized text.
	Span = core.Span
)

// Engine types
type (
	// Corpus is the reference set of license texts.
	Corpus = corpus.Corpus

	// Engine runs the pipeline over dependency sets.
	Engine = aggregate.Engine

	// EngineOption configures an Engine.
	EngineOption = aggregate.Option

	// Result is the output of a run.
	Result = aggregate.Result

	// MatchOptions tunes the matcher.
	MatchOptions = match.Options

	// Policy is an ordered list of accepted licenses.
	Policy = policy.Policy
)

// Registry types
type (
	// Registry is the interface implemented by ecosystem clients.
	Registry = core.Registry

	// PackageInfo is registry metadata about a package.
	PackageInfo = core.PackageInfo

	// Version is a published version and the license it declares.
	Version = core.Version

	// VersionStatus represents the status of a package version.
	VersionStatus = core.VersionStatus

	// Client is an HTTP client with retry logic for registry APIs.
	Client = client.Client

	// URLBuilder constructs URLs for a registry.
	URLBuilder = client.URLBuilder
)

// Re-export constants
const (
	ManifestDeclared = core.ManifestDeclared
	ScrapedRaw       = core.ScrapedRaw

	Unknown          = core.Unknown
	Unlicensed       = core.Unlicensed
	LicenseRefPrefix = core.LicenseRefPrefix

	DefaultThreshold = match.DefaultThreshold

	StatusNone       = core.StatusNone
	StatusYanked     = core.StatusYanked
	StatusDeprecated = core.StatusDeprecated
	StatusRetracted  = core.StatusRetracted
)

// Re-export errors
var (
	ErrNotFound = client.ErrNotFound
	ErrNoMatch  = core.ErrNoMatch
)

// Error types
type (
	EmptyInputError          = core.EmptyInputError
	MalformedDependencyError = core.MalformedDependencyError
	CorpusLoadError          = core.CorpusLoadError
	HTTPError                = client.HTTPError
	NotFoundError            = client.NotFoundError
	RateLimitError           = client.RateLimitError
)

// NewIdentifier canonicalises a license name. Informal spellings map to their
// SPDX short identifiers.
func NewIdentifier(raw string) (Identifier, error) {
	return core.NewIdentifier(raw)
}

// ParseExpression expands an SPDX license expression into its canonical
// identifiers. Operators are dropped: "MIT OR Apache-2.0" yields both.
func ParseExpression(expr string) ([]Identifier, error) {
	return core.ParseExpression(expr)
}

// BuiltinCorpus returns the embedded corpus of common permissive licenses.
func BuiltinCorpus() (*Corpus, error) {
	return corpus.Builtin()
}

// LoadCorpus reads a corpus directory: SPDX detail JSON files as written by
// fetch.Sync, or plain <id>.txt files.
func LoadCorpus(dir string) (*Corpus, error) {
	return corpus.LoadDir(dir)
}

// MergeCorpus returns a corpus holding every entry of base and over. Entries
// of over replace entries of base with the same identifier.
func MergeCorpus(base, over *Corpus) (*Corpus, error) {
	return corpus.Merge(base, over)
}

// DefaultMatchOptions returns the matcher defaults.
func DefaultMatchOptions() MatchOptions {
	return match.DefaultOptions()
}

// WithWorkers bounds the number of dependencies processed concurrently.
func WithWorkers(n int) EngineOption {
	return aggregate.WithWorkers(n)
}

// WithMatchOptions sets matcher options.
func WithMatchOptions(o MatchOptions) EngineOption {
	return aggregate.WithMatchOptions(o)
}

// WithThreshold sets the minimum match confidence, keeping the other matcher
// options. NewEngine fails for values outside (0, 1].
func WithThreshold(threshold float64) EngineOption {
	return aggregate.WithThreshold(threshold)
}

// NewPolicy builds an accepted license policy, most preferred license first.
func NewPolicy(accepted []string) (*Policy, error) {
	return policy.New(accepted)
}

// WithPolicy makes every package carry a minimized license view: the fewest
// accepted licenses that satisfy its declared expression.
func WithPolicy(p *Policy) EngineOption {
	return aggregate.WithPolicy(p)
}

// WithCommentMarkers replaces the comment markers stripped from texts, keyed
// by LicenseText.SourceType.
func WithCommentMarkers(markers map[string][]string) EngineOption {
	return aggregate.WithNormalizer(normalize.New(markers))
}

// WithLogger sets the logger for per-dependency warnings.
func WithLogger(l *slog.Logger) EngineOption {
	return aggregate.WithLogger(l)
}

// NewEngine builds an engine over a corpus. An empty corpus fails with
// *CorpusLoadError.
func NewEngine(c *Corpus, opts ...EngineOption) (*Engine, error) {
	return aggregate.New(c, opts...)
}

// Run builds an engine and processes deps once.
func Run(ctx context.Context, c *Corpus, deps []Dependency, opts ...EngineOption) (*Result, error) {
	return aggregate.Run(ctx, c, deps, opts...)
}

// ReadDependencies reads a dependency file: a JSON array of manifest packages
// or a scraper dump object.
func ReadDependencies(path string, logger *slog.Logger) ([]Dependency, error) {
	return ingest.ReadFile(path, logger)
}

// New creates a new registry for the given ecosystem.
// If baseURL is empty, the default registry URL is used.
// If client is nil, DefaultClient() is used.
//
// Supported ecosystems: "cargo", "gem", "hex", "npm", "pub", "pypi"
func New(ecosystem string, baseURL string, c *Client) (Registry, error) {
	return core.New(ecosystem, baseURL, c)
}

// DefaultClient returns a client with sensible defaults:
// - 30s timeout
// - 5 retries with exponential backoff
// - Retry on 429 and 5xx responses
func DefaultClient() *Client {
	return client.DefaultClient()
}

// NewClient creates a new client with the given options.
func NewClient(opts ...Option) *Client {
	return client.NewClient(opts...)
}

// Option configures a Client.
type Option = client.Option

// WithTimeout sets the HTTP client timeout.
var WithTimeout = client.WithTimeout

// WithMaxRetries sets the maximum number of retries.
var WithMaxRetries = client.WithMaxRetries

// SupportedEcosystems returns all registered ecosystem types.
// Note: ecosystems must be imported to be registered.
func SupportedEcosystems() []string {
	return core.SupportedEcosystems()
}

// BuildURLs returns a map of all non-empty URLs for a package.
// Keys are "registry", "license", and "purl".
func BuildURLs(urls URLBuilder, name, version string) map[string]string {
	return client.BuildURLs(urls, name, version)
}

// DefaultURL returns the default registry URL for an ecosystem.
func DefaultURL(ecosystem string) string {
	return core.DefaultURL(ecosystem)
}

// PURL represents a parsed Package URL.
type PURL = purl.PURL

// ParsePURL parses a Package URL string into its components.
// Supports both package PURLs (pkg:cargo/serde) and version PURLs (pkg:cargo/serde@1.0.0).
func ParsePURL(purlStr string) (*PURL, error) {
	return purl.Parse(purlStr)
}

// NewFromPURL creates a registry client from a PURL and returns the parsed components.
// Returns the registry, full package name, and version (empty if not in PURL).
func NewFromPURL(purl string, c *Client) (Registry, string, string, error) {
	return core.NewFromPURL(purl, c)
}

// DeclaredLicense returns the license expression a package declares for a
// version, falling back to the latest declaration.
func DeclaredLicense(ctx context.Context, reg Registry, name, version string) (string, error) {
	return core.DeclaredLicense(ctx, reg, name, version)
}

// DeclaredLicenseFromPURL resolves the registry for a PURL and returns the
// license expression its version declares.
func DeclaredLicenseFromPURL(ctx context.Context, purl string, c *Client) (string, error) {
	return core.DeclaredLicenseFromPURL(ctx, purl, c)
}

// BulkDeclaredLicenses looks up declared licenses for many PURLs in parallel.
// Failures are returned per PURL.
func BulkDeclaredLicenses(ctx context.Context, purls []string, c *Client) (map[string]string, map[string]error) {
	return core.BulkDeclaredLicenses(ctx, purls, c)
}
