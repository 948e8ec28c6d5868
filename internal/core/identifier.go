package core

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/git-pkgs/spdx"
	"github.com/github/go-spdx/v2/spdxexp"
)

// Identifier is a canonical license token: an SPDX short identifier, a
// LicenseRef- identifier, or the Unknown sentinel. Build one with
// NewIdentifier so spelling variants collapse to the same value.
type Identifier string

// Unknown marks declared metadata that names no license (UNKNOWN, NOASSERTION).
const Unknown Identifier = "unknown"

// LicenseRefPrefix is the SPDX prefix for non-standard license identifiers.
const LicenseRefPrefix = "LicenseRef-"

// Unlicensed is the npm "UNLICENSED" declaration: a package whose owner grants
// no rights at all. It is a known license fact, not missing metadata, and must
// not be confused with the SPDX "Unlicense" public domain dedication.
const Unlicensed Identifier = LicenseRefPrefix + "UNLICENSED"

var errEmptyIdentifier = errors.New("empty license identifier")

var unknownSpellings = map[string]struct{}{
	"UNKNOWN":     {},
	"NOASSERTION": {},
	"NONE":        {},
	"SEE LICENSE": {},
}

func (id Identifier) String() string { return string(id) }

// IsUnknown reports whether id is the Unknown sentinel.
func (id Identifier) IsUnknown() bool { return id == Unknown }

// NewIdentifier canonicalises a license name to a single vocabulary. Informal
// spellings ("Apache License 2.0", "MIT License") map to their SPDX short
// identifiers; strings that cannot be mapped are kept verbatim because
// declared metadata is trusted.
func NewIdentifier(raw string) (Identifier, error) {
	value := strings.TrimSpace(raw)
	value = strings.Trim(value, "()")
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errEmptyIdentifier
	}
	if _, ok := unknownSpellings[strings.ToUpper(value)]; ok {
		return Unknown, nil
	}
	if strings.EqualFold(string(Unknown), value) {
		return Unknown, nil
	}
	if strings.EqualFold(value, "UNLICENSED") {
		return Unlicensed, nil
	}
	if strings.HasPrefix(value, LicenseRefPrefix) {
		return Identifier(value), nil
	}
	if normalized, err := spdx.Normalize(value); err == nil && normalized != "" {
		return Identifier(normalized), nil
	}
	return Identifier(value), nil
}

// MustIdentifier is NewIdentifier for literals known to be valid.
func MustIdentifier(raw string) Identifier {
	id, err := NewIdentifier(raw)
	if err != nil {
		panic(err)
	}
	return id
}

var (
	legacySlash     = regexp.MustCompile(`\s*/\s*`)
	operatorPattern = regexp.MustCompile(`(?i)\s+(?:or|and|with)\s+`)
)

// ParseExpression expands a declared license string into its member
// identifiers. It accepts SPDX expressions ("MIT OR Apache-2.0"), the legacy
// cargo slash form ("MIT/Apache-2.0") and comma separated lists as produced by
// some registries. The result is deduplicated and sorted.
func ParseExpression(expr string) ([]Identifier, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	normalized := CanonicalExpression(expr)

	var members []string
	if ids, err := spdxexp.ExtractLicenses(normalized); err == nil && len(ids) > 0 {
		members = ids
	} else {
		cleaned := strings.NewReplacer("(", " ", ")", " ").Replace(normalized)
		members = operatorPattern.Split(cleaned, -1)
	}

	seen := make(map[Identifier]struct{}, len(members))
	var out []Identifier
	for _, m := range members {
		id, err := NewIdentifier(m)
		if err != nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, errEmptyIdentifier
	}
	SortIdentifiers(out)
	return out, nil
}

// CanonicalExpression rewrites the legacy slash form and comma separated lists
// as SPDX OR expressions.
func CanonicalExpression(expr string) string {
	expr = legacySlash.ReplaceAllString(strings.TrimSpace(expr), " OR ")
	return strings.ReplaceAll(expr, ",", " OR ")
}

// SortIdentifiers sorts ids in place.
func SortIdentifiers(ids []Identifier) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// IdentifierSet accumulates distinct identifiers.
type IdentifierSet map[Identifier]struct{}

// Add inserts ids into the set.
func (s IdentifierSet) Add(ids ...Identifier) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		s[id] = struct{}{}
	}
}

// Sorted returns the members in ascending order.
func (s IdentifierSet) Sorted() []Identifier {
	out := make([]Identifier, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	SortIdentifiers(out)
	return out
}
