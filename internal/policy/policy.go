// Package policy reduces a package's licenses to the smallest set permitted
// by an ordered list of accepted licenses.
//
// A declared expression such as "MIT OR GPL-3.0-only" offers a choice; the
// policy picks the alternative it can satisfy with the fewest licenses,
// preferring licenses listed earlier. Packages with no declared expression
// are held to every license found for them.
package policy

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/git-pkgs/spdx"
	"github.com/github/go-spdx/v2/spdxexp"

	"github.com/git-pkgs/licenses/internal/core"
)

// maxChoices bounds the alternatives an expression may expand into.
const maxChoices = 256

var (
	// ErrEmpty is returned by New for an empty accepted list.
	ErrEmpty = errors.New("accepted license list is empty")

	errTooManyChoices = fmt.Errorf("expression expands to more than %d alternatives", maxChoices)
)

// Policy is an ordered accepted license list. It is read-only after New and
// safe for concurrent use.
type Policy struct {
	accepted []string
	rank     map[core.Identifier]int
}

// New canonicalises accepted and checks every entry is a license SPDX
// tooling can evaluate. Duplicates keep their first position.
func New(accepted []string) (*Policy, error) {
	if len(accepted) == 0 {
		return nil, ErrEmpty
	}
	p := &Policy{rank: make(map[core.Identifier]int, len(accepted))}
	for _, raw := range accepted {
		id, err := core.NewIdentifier(raw)
		if err != nil {
			return nil, fmt.Errorf("accepted license %q: %w", raw, err)
		}
		if id.IsUnknown() {
			return nil, fmt.Errorf("accepted license %q names no license", raw)
		}
		if _, dup := p.rank[id]; dup {
			continue
		}
		p.rank[id] = len(p.accepted)
		p.accepted = append(p.accepted, id.String())
	}
	if ok, invalid := spdxexp.ValidateLicenses(p.accepted); !ok {
		return nil, fmt.Errorf("accepted licenses not recognised: %s", strings.Join(invalid, ", "))
	}
	return p, nil
}

// Accepted returns the canonical accepted list in preference order.
func (p *Policy) Accepted() []core.Identifier {
	out := make([]core.Identifier, len(p.accepted))
	for i, a := range p.accepted {
		out[i] = core.Identifier(a)
	}
	return out
}

// Minimize returns the smallest accepted license set that satisfies pkg, and
// false when no such set exists. Licenses found in files but absent from the
// chosen alternative are left out of the result; pkg itself is not modified.
func (p *Policy) Minimize(pkg core.Package) ([]core.Identifier, bool) {
	if pkg.Expression != "" {
		if choices, err := Choices(pkg.Expression); err == nil {
			return p.best(choices)
		}
	}
	if len(pkg.Licenses) == 0 {
		return nil, false
	}
	return p.best([][]core.Identifier{pkg.Licenses})
}

// Satisfied reports whether every license in ids is acceptable on its own or
// through SPDX range rules (GPL-2.0-or-later accepted by GPL-3.0-only).
func (p *Policy) Satisfied(ids []core.Identifier) bool {
	if len(ids) == 0 {
		return false
	}
	listed := true
	for _, id := range ids {
		if id.IsUnknown() {
			return false
		}
		if _, ok := p.rank[id]; !ok {
			listed = false
		}
	}
	if listed {
		return true
	}
	ok, err := spdxexp.Satisfies(join(ids), p.accepted)
	return err == nil && ok
}

func (p *Policy) best(choices [][]core.Identifier) ([]core.Identifier, bool) {
	type scored struct {
		ids  []core.Identifier
		rank int
		key  string
	}
	var ok []scored
	for _, c := range choices {
		if !p.Satisfied(c) {
			continue
		}
		s := scored{ids: c, key: join(c)}
		for _, id := range c {
			r, listed := p.rank[id]
			if !listed {
				r = len(p.accepted)
			}
			s.rank += r
		}
		ok = append(ok, s)
	}
	if len(ok) == 0 {
		return nil, false
	}
	sort.Slice(ok, func(i, j int) bool {
		a, b := ok[i], ok[j]
		if len(a.ids) != len(b.ids) {
			return len(a.ids) < len(b.ids)
		}
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		return a.key < b.key
	})
	return append([]core.Identifier(nil), ok[0].ids...), true
}

// Choices expands a declared expression into its alternatives: each inner
// slice is one sorted set of licenses that together satisfy the expression.
func Choices(expr string) ([][]core.Identifier, error) {
	parsed, err := spdx.Parse(core.CanonicalExpression(expr))
	if err != nil {
		return nil, err
	}
	return expand(parsed)
}

func expand(e spdx.Expression) ([][]core.Identifier, error) {
	switch v := e.(type) {
	case *spdx.OrExpression:
		left, err := expand(v.Left)
		if err != nil {
			return nil, err
		}
		right, err := expand(v.Right)
		if err != nil {
			return nil, err
		}
		if len(left)+len(right) > maxChoices {
			return nil, errTooManyChoices
		}
		return append(left, right...), nil
	case *spdx.AndExpression:
		left, err := expand(v.Left)
		if err != nil {
			return nil, err
		}
		right, err := expand(v.Right)
		if err != nil {
			return nil, err
		}
		if len(left)*len(right) > maxChoices {
			return nil, errTooManyChoices
		}
		out := make([][]core.Identifier, 0, len(left)*len(right))
		for _, l := range left {
			for _, r := range right {
				set := core.IdentifierSet{}
				set.Add(l...)
				set.Add(r...)
				out = append(out, set.Sorted())
			}
		}
		return out, nil
	case *spdx.License:
		ids, err := core.ParseExpression(v.String())
		if err != nil {
			return nil, err
		}
		return [][]core.Identifier{ids}, nil
	case *spdx.LicenseRef:
		id, err := core.NewIdentifier(v.String())
		if err != nil {
			return nil, err
		}
		return [][]core.Identifier{{id}}, nil
	default:
		return nil, fmt.Errorf("unsupported expression node %T", e)
	}
}

func join(ids []core.Identifier) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, " AND ")
}
