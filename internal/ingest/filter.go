package ingest

import (
	"fmt"
	"log/slog"
	"path"

	"github.com/git-pkgs/licenses/internal/core"
	"github.com/git-pkgs/licenses/internal/logging"
)

// AnyVersion matches every version of a package in an override.
const AnyVersion = "*"

// Override is a human classification that replaces a dependency's evidence.
type Override struct {
	Name        string
	Version     string // AnyVersion for every version
	Identifiers []core.Identifier
	Note        string
}

// Filter drops ignored dependencies and applies overrides.
type Filter struct {
	ignore    []string
	overrides map[core.PackageRef]Override
	logger    *slog.Logger
}

// FilterReport counts what a filter did.
type FilterReport struct {
	Ignored    []core.PackageRef
	Overridden []core.PackageRef
}

// NewFilter validates the ignore patterns (path.Match syntax, matched against
// the dependency name) and indexes the overrides.
func NewFilter(ignore []string, overrides []Override, logger *slog.Logger) (*Filter, error) {
	for _, pattern := range ignore {
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("ignore pattern %q: %w", pattern, err)
		}
	}
	f := &Filter{
		ignore:    append([]string(nil), ignore...),
		overrides: make(map[core.PackageRef]Override, len(overrides)),
		logger:    logging.Component(logger, "ingest"),
	}
	for _, o := range overrides {
		if o.Version == "" {
			o.Version = AnyVersion
		}
		f.overrides[core.PackageRef{Name: o.Name, Version: o.Version}] = o
	}
	return f, nil
}

// Ignored reports whether name matches an ignore pattern.
func (f *Filter) Ignored(name string) bool {
	for _, pattern := range f.ignore {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// Lookup returns the override for a dependency. An exact version wins over AnyVersion.
func (f *Filter) Lookup(name, version string) (Override, bool) {
	if o, ok := f.overrides[core.PackageRef{Name: name, Version: version}]; ok {
		return o, true
	}
	o, ok := f.overrides[core.PackageRef{Name: name, Version: AnyVersion}]
	return o, ok
}

// Apply returns deps without ignored entries, with overridden entries
// carrying only the override's identifiers, all of which apply. The input
// slice is not modified.
func (f *Filter) Apply(deps []core.Dependency) ([]core.Dependency, FilterReport) {
	var report FilterReport
	out := make([]core.Dependency, 0, len(deps))
	for _, d := range deps {
		ref := core.PackageRef{Name: d.Name, Version: d.Version}
		if f.Ignored(d.Name) {
			report.Ignored = append(report.Ignored, ref)
			f.logger.Debug("ignoring dependency", "package", ref.String())
			continue
		}
		if o, ok := f.Lookup(d.Name, d.Version); ok {
			d.KnownIdentifiers = append([]core.Identifier(nil), o.Identifiers...)
			d.Expression = ""
			d.RawTexts = nil
			d.Source = core.ManifestDeclared
			report.Overridden = append(report.Overridden, ref)
			f.logger.Debug("applying license override", "package", ref.String(), "licenses", o.Identifiers)
		}
		out = append(out, d)
	}
	return out, report
}
