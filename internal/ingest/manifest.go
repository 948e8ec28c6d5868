// Package ingest turns collaborator output (package manager license lists and
// scraper dumps) into core.Dependency records, and applies the ignore list,
// manual overrides and registry enrichment before a run.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/git-pkgs/licenses/internal/core"
	"github.com/git-pkgs/licenses/internal/logging"
)

// ManifestLicenseFile is one license file in a manifest package list.
type ManifestLicenseFile struct {
	Name string  `json:"name"`
	SPDX *string `json:"spdx"`
	Text string  `json:"text"`
}

// ManifestPackage is one entry of the package list produced by a package
// manager walker. LicenseFiles without an SPDX value carry raw text only.
type ManifestPackage struct {
	PackageName    string                `json:"package_name"`
	PackageVersion string                `json:"package_version"`
	PackageURL     *string               `json:"package_url"`
	LicenseSPDX    *string               `json:"license_spdx"`
	LicenseFiles   []ManifestLicenseFile `json:"license_files"`
}

// ReadManifest decodes a JSON array of ManifestPackage.
//
// The package expression and every file with an SPDX value become known
// identifiers; files without one become raw texts for the matcher. Entries
// whose expression names a different number of licenses than files were found
// are logged, as are entries with no license files at all.
func ReadManifest(r io.Reader, logger *slog.Logger) ([]core.Dependency, error) {
	logger = logging.Component(logger, "ingest")

	var pkgs []ManifestPackage
	if err := json.NewDecoder(r).Decode(&pkgs); err != nil {
		return nil, fmt.Errorf("decode manifest package list: %w", err)
	}

	deps := make([]core.Dependency, 0, len(pkgs))
	for _, p := range pkgs {
		deps = append(deps, manifestDependency(p, logger))
	}
	return deps, nil
}

func manifestDependency(p ManifestPackage, logger *slog.Logger) core.Dependency {
	dep := core.Dependency{
		Name:    p.PackageName,
		Version: p.PackageVersion,
		Source:  core.ScrapedRaw,
	}
	ref := core.PackageRef{Name: p.PackageName, Version: p.PackageVersion}.String()
	if p.PackageURL != nil && strings.HasPrefix(*p.PackageURL, "pkg:") {
		dep.PURL = *p.PackageURL
	}

	known := core.IdentifierSet{}
	if p.LicenseSPDX != nil && strings.TrimSpace(*p.LicenseSPDX) != "" {
		dep.Source = core.ManifestDeclared
		dep.Expression = strings.TrimSpace(*p.LicenseSPDX)
		ids, err := core.ParseExpression(*p.LicenseSPDX)
		if err != nil {
			logger.Warn("unparseable license expression", "package", ref, "expression", *p.LicenseSPDX, "error", err)
		}
		known.Add(ids...)
		if len(ids) == 1 && ids[0].IsUnknown() {
			logger.Warn("package has unknown license", "package", ref)
		} else if len(ids) != len(p.LicenseFiles) {
			logger.Warn("mismatch between license expression and license files",
				"package", ref, "expression_licenses", len(ids), "license_files", len(p.LicenseFiles))
		}
	}

	for _, f := range p.LicenseFiles {
		if f.SPDX != nil && strings.TrimSpace(*f.SPDX) != "" {
			ids, err := core.ParseExpression(*f.SPDX)
			if err != nil {
				logger.Warn("unparseable license file identifier", "package", ref, "file", f.Name, "error", err)
				continue
			}
			known.Add(ids...)
			continue
		}
		dep.RawTexts = append(dep.RawTexts, core.LicenseText{
			Label:      f.Name,
			Content:    f.Text,
			SourceType: sourceTypeFor(f.Name),
		})
	}
	if len(p.LicenseFiles) == 0 {
		logger.Warn("no license files found", "package", ref)
	}

	if len(known) > 0 {
		dep.KnownIdentifiers = known.Sorted()
	}
	return dep
}

// ReadFile reads a dependency file of either supported format. A top-level
// JSON array is a manifest package list; an object is a scraper dump.
func ReadFile(path string, logger *slog.Logger) ([]core.Dependency, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dependency file: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	first, err := firstNonSpace(br)
	if err != nil {
		return nil, fmt.Errorf("read dependency file %s: %w", path, err)
	}
	switch first {
	case '[':
		return ReadManifest(br, logger)
	case '{':
		return ReadScraped(br, logger)
	default:
		return nil, fmt.Errorf("dependency file %s: unrecognised format", path)
	}
}

func firstNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		if !bytes.ContainsAny(b, " \t\r\n") {
			return b[0], nil
		}
		if _, err := br.ReadByte(); err != nil {
			return 0, err
		}
	}
}

var extSourceTypes = map[string]string{
	".c": "c", ".h": "c", ".cc": "cpp", ".cpp": "cpp", ".hpp": "cpp",
	".go": "go", ".rs": "rust", ".java": "java", ".js": "js", ".ts": "js",
	".py": "python", ".rb": "ruby", ".sh": "shell", ".cmake": "cmake",
	".html": "html", ".xml": "xml", ".sql": "sql", ".el": "lisp",
}

// sourceTypeFor guesses a comment marker set from a file name. Plain license
// files (LICENSE, COPYING.txt) get "text".
func sourceTypeFor(name string) string {
	base := strings.ToLower(filepath.Base(name))
	if base == "cmakelists.txt" {
		return "cmake"
	}
	if t, ok := extSourceTypes[filepath.Ext(base)]; ok {
		return t
	}
	return "text"
}
