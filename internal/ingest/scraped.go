package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/git-pkgs/licenses/internal/core"
	"github.com/git-pkgs/licenses/internal/logging"
)

// ScrapedFile is one harvested license file.
type ScrapedFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	// Type selects comment markers; derived from Path when empty.
	Type string `json:"type,omitempty"`
}

// ScrapedDependency is one dependency in a scraper dump.
type ScrapedDependency struct {
	Name    string        `json:"name"`
	Version string        `json:"version"`
	PURL    string        `json:"purl,omitempty"`
	Files   []ScrapedFile `json:"files"`
}

// ScrapedDump is the document a scraper writes.
type ScrapedDump struct {
	Dependencies []ScrapedDependency `json:"dependencies"`
}

// ReadScraped decodes a scraper dump. Dependencies without a name take name
// and version from their package URL.
func ReadScraped(r io.Reader, logger *slog.Logger) ([]core.Dependency, error) {
	logger = logging.Component(logger, "ingest")

	var dump ScrapedDump
	if err := json.NewDecoder(r).Decode(&dump); err != nil {
		return nil, fmt.Errorf("decode scraper output: %w", err)
	}

	deps := make([]core.Dependency, 0, len(dump.Dependencies))
	for _, d := range dump.Dependencies {
		dep := core.Dependency{
			Name:    d.Name,
			Version: d.Version,
			PURL:    d.PURL,
			Source:  core.ScrapedRaw,
		}
		if d.PURL != "" && (dep.Name == "" || dep.Version == "") {
			p, err := core.ParsePURL(d.PURL)
			if err != nil {
				logger.Warn("invalid package url", "purl", d.PURL, "error", err)
			} else {
				if dep.Name == "" {
					dep.Name = p.FullName()
				}
				if dep.Version == "" {
					dep.Version = p.Version
				}
			}
		}
		for _, f := range d.Files {
			st := f.Type
			if st == "" {
				st = sourceTypeFor(f.Path)
			}
			dep.RawTexts = append(dep.RawTexts, core.LicenseText{Label: f.Path, Content: f.Content, SourceType: st})
		}
		deps = append(deps, dep)
	}
	return deps, nil
}
