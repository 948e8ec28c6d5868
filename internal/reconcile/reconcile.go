// Package reconcile folds a dependency's declared identifiers and the matcher
// results for its raw texts into one package record.
package reconcile

import (
	"sort"

	"github.com/git-pkgs/licenses/internal/core"
)

// DeclaredLabel is recorded in UnresolvedTexts when the declared metadata
// itself says the license is unknown.
const DeclaredLabel = "declared metadata"

// Outcome is the result of normalizing and matching one raw text.
type Outcome struct {
	Text       core.LicenseText
	Candidates []core.MatchCandidate
	// Err is set when the text could not be normalized.
	Err error
	// Nearest is the best score seen for the text, kept for diagnostics.
	Nearest   float64
	Truncated bool
}

// Resolved reports whether the text produced at least one candidate.
func (o Outcome) Resolved() bool {
	return o.Err == nil && len(o.Candidates) > 0
}

// Reconcile builds the package record for dep. Known identifiers are taken
// verbatim, every candidate of every outcome is unioned in, and any outcome
// without candidates marks the package unresolved. A dependency that fails
// validation returns *core.MalformedDependencyError.
func Reconcile(dep core.Dependency, outcomes []Outcome) (core.Package, error) {
	if err := dep.Validate(); err != nil {
		return core.Package{}, err
	}

	pkg := core.Package{Name: dep.Name, Version: dep.Version, PURL: dep.PURL, Expression: dep.Expression}
	set := core.IdentifierSet{}
	var labels []string

	for _, id := range dep.KnownIdentifiers {
		set.Add(id)
		if id.IsUnknown() {
			pkg.Unresolved = true
			labels = append(labels, DeclaredLabel)
		}
	}

	for _, o := range outcomes {
		if !o.Resolved() {
			pkg.Unresolved = true
			labels = append(labels, label(o.Text))
			continue
		}
		for _, c := range o.Candidates {
			set.Add(c.Identifier)
		}
	}

	pkg.Licenses = set.Sorted()
	pkg.UnresolvedTexts = dedupSorted(labels)
	return pkg, nil
}

// Merge combines two records for the same (name, version), typically one from
// each source.
func Merge(a, b core.Package) core.Package {
	out := core.Package{
		Name:       a.Name,
		Version:    a.Version,
		PURL:       a.PURL,
		Unresolved: a.Unresolved || b.Unresolved,
		Expression: mergeExpressions(a.Expression, b.Expression),
	}
	if out.PURL == "" {
		out.PURL = b.PURL
	}
	set := core.IdentifierSet{}
	set.Add(a.Licenses...)
	set.Add(b.Licenses...)
	out.Licenses = set.Sorted()

	labels := append(append([]string{}, a.UnresolvedTexts...), b.UnresolvedTexts...)
	out.UnresolvedTexts = dedupSorted(labels)
	return out
}

// mergeExpressions joins two declared expressions with AND, since both
// records describe the same package. The result does not depend on order.
func mergeExpressions(a, b string) string {
	if a > b {
		a, b = b, a
	}
	switch {
	case a == "" || a == b:
		return b
	case b == "":
		return a
	default:
		return "(" + a + ") AND (" + b + ")"
	}
}

func label(t core.LicenseText) string {
	if t.Label != "" {
		return t.Label
	}
	return "<unlabelled text>"
}

func dedupSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	sort.Strings(in)
	out := in[:1]
	for _, s := range in[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
