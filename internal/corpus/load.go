package corpus

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/git-pkgs/licenses/internal/core"
	"github.com/git-pkgs/licenses/internal/fingerprint"
)

// LockFileName is the lock a corpus sync holds while it rewrites a directory.
// Loaders take it shared when present.
const LockFileName = ".licenses.lock"

// IndexFileName is the SPDX license list index; it carries no license text.
const IndexFileName = "licenses.json"

//go:embed builtin/*.txt
var builtinFS embed.FS

// Details is the subset of an SPDX license-list-data detail file
// (json/details/<id>.json) the loader reads.
type Details struct {
	LicenseID    string `json:"licenseId"`
	Name         string `json:"name"`
	LicenseText  string `json:"licenseText"`
	IsDeprecated bool   `json:"isDeprecatedLicenseId"`
}

type loadOptions struct {
	includeDeprecated bool
	shingleSize       int
}

// LoadOption configures LoadDir.
type LoadOption func(*loadOptions)

// WithDeprecated keeps entries SPDX marks as deprecated.
func WithDeprecated(include bool) LoadOption {
	return func(o *loadOptions) { o.includeDeprecated = include }
}

// WithShingleSize sets the fingerprint shingle size.
func WithShingleSize(size int) LoadOption {
	return func(o *loadOptions) { o.shingleSize = size }
}

// LoadDir reads a corpus directory. It understands three layouts, which may
// be mixed:
//
//	<ID>.txt            one text per identifier
//	<ID>/<variant>.txt  several texts for one identifier
//	<ID>.json           SPDX license-list-data detail files
//
// A missing or unreadable directory, a malformed file, or a directory with no
// usable texts fails with *core.CorpusLoadError.
func LoadDir(dir string, opts ...LoadOption) (*Corpus, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &core.CorpusLoadError{Path: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &core.CorpusLoadError{Path: dir, Err: fmt.Errorf("not a directory")}
	}

	lockPath := filepath.Join(dir, LockFileName)
	if _, err := os.Stat(lockPath); err == nil {
		lock := flock.New(lockPath)
		if err := lock.RLock(); err != nil {
			return nil, &core.CorpusLoadError{Path: dir, Err: fmt.Errorf("acquire corpus lock: %w", err)}
		}
		defer func() { _ = lock.Unlock() }()
	}

	c, err := loadFS(os.DirFS(dir), ".", opts...)
	if err != nil {
		var loadErr *core.CorpusLoadError
		if errors.As(err, &loadErr) {
			loadErr.Path = filepath.Join(dir, loadErr.Path)
			return nil, loadErr
		}
		return nil, &core.CorpusLoadError{Path: dir, Err: err}
	}
	return c, nil
}

// Builtin returns the embedded corpus of common permissive licenses.
func Builtin() (*Corpus, error) {
	return loadFS(builtinFS, "builtin")
}

func loadFS(fsys fs.FS, root string, opts ...LoadOption) (*Corpus, error) {
	o := loadOptions{shingleSize: fingerprint.DefaultSize}
	for _, opt := range opts {
		opt(&o)
	}

	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, &core.CorpusLoadError{Err: err}
	}

	b := NewBuilder(o.shingleSize)
	for _, de := range entries {
		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		p := path.Join(root, name)

		switch {
		case de.IsDir():
			if err := addVariants(b, fsys, p, name); err != nil {
				return nil, err
			}
		case strings.HasSuffix(name, ".txt"):
			if err := addTextFile(b, fsys, p, strings.TrimSuffix(name, ".txt")); err != nil {
				return nil, err
			}
		case strings.HasSuffix(name, ".json") && name != IndexFileName && name != "exceptions.json":
			if err := addDetailsFile(b, fsys, p, o.includeDeprecated); err != nil {
				return nil, err
			}
		}
	}

	if b.Len() == 0 {
		return nil, &core.CorpusLoadError{Path: root}
	}
	return b.Build()
}

func addVariants(b *Builder, fsys fs.FS, dir, rawID string) error {
	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return &core.CorpusLoadError{Path: dir, Err: err}
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".txt") {
			continue
		}
		if err := addTextFile(b, fsys, path.Join(dir, f.Name()), rawID); err != nil {
			return err
		}
	}
	return nil
}

func addTextFile(b *Builder, fsys fs.FS, p, rawID string) error {
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		return &core.CorpusLoadError{Path: p, Err: err}
	}
	id, err := core.NewIdentifier(rawID)
	if err != nil {
		return &core.CorpusLoadError{Path: p, Err: err}
	}
	if err := b.Add(id, rawID, string(data)); err != nil {
		return &core.CorpusLoadError{Path: p, Err: err}
	}
	return nil
}

func addDetailsFile(b *Builder, fsys fs.FS, p string, includeDeprecated bool) error {
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		return &core.CorpusLoadError{Path: p, Err: err}
	}
	var d Details
	if err := json.Unmarshal(data, &d); err != nil {
		return &core.CorpusLoadError{Path: p, Err: fmt.Errorf("decode license details: %w", err)}
	}
	if d.IsDeprecated && !includeDeprecated {
		return nil
	}
	if d.LicenseID == "" {
		d.LicenseID = strings.TrimSuffix(path.Base(p), ".json")
	}
	id, err := core.NewIdentifier(d.LicenseID)
	if err != nil {
		return &core.CorpusLoadError{Path: p, Err: err}
	}
	if err := b.Add(id, d.Name, d.LicenseText); err != nil {
		return &core.CorpusLoadError{Path: p, Err: err}
	}
	return nil
}
