// Package corpus holds the reference license texts the matcher compares
// against. A Corpus is built once, then shared read-only by every worker.
package corpus

import (
	"fmt"
	"sort"

	"github.com/git-pkgs/licenses/internal/core"
	"github.com/git-pkgs/licenses/internal/fingerprint"
	"github.com/git-pkgs/licenses/internal/normalize"
)

// Entry is one reference license with every known text variant.
type Entry struct {
	ID           core.Identifier
	Name         string
	Texts        []string // normalized
	Fingerprints []*fingerprint.Fingerprint
}

// Corpus is an immutable set of entries keyed by identifier.
type Corpus struct {
	entries     []*Entry
	byID        map[core.Identifier]*Entry
	shingleSize int
}

// Len returns the number of entries.
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Lookup returns the entry for id.
func (c *Corpus) Lookup(id core.Identifier) (*Entry, bool) {
	if c == nil {
		return nil, false
	}
	e, ok := c.byID[id]
	return e, ok
}

// Entries returns the entries ordered by identifier. The slice must not be modified.
func (c *Corpus) Entries() []*Entry {
	if c == nil {
		return nil
	}
	return c.entries
}

// IDs returns the identifiers of every entry in order.
func (c *Corpus) IDs() []core.Identifier {
	ids := make([]core.Identifier, 0, c.Len())
	for _, e := range c.Entries() {
		ids = append(ids, e.ID)
	}
	return ids
}

// ShingleSize returns the shingle size the stored fingerprints were built with.
func (c *Corpus) ShingleSize() int {
	if c == nil {
		return fingerprint.DefaultSize
	}
	return c.shingleSize
}

// Text is a raw reference text handed to New.
type Text struct {
	ID      core.Identifier
	Name    string
	Content string
}

// New builds a corpus from raw texts with the default shingle size.
func New(texts ...Text) (*Corpus, error) {
	b := NewBuilder(fingerprint.DefaultSize)
	for _, t := range texts {
		if err := b.Add(t.ID, t.Name, t.Content); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

// Builder accumulates entries before freezing them into a Corpus.
type Builder struct {
	size       int
	normalizer *normalize.Normalizer
	entries    map[core.Identifier]*Entry
}

// NewBuilder returns a builder fingerprinting texts with shingles of size words.
func NewBuilder(size int) *Builder {
	if size <= 0 {
		size = fingerprint.DefaultSize
	}
	return &Builder{
		size:       size,
		normalizer: normalize.New(nil),
		entries:    make(map[core.Identifier]*Entry),
	}
}

// Add normalizes text and appends it as a variant of id. The first non-empty
// name given for an id is kept.
func (b *Builder) Add(id core.Identifier, name, text string) error {
	if id == "" {
		return fmt.Errorf("corpus entry has no identifier")
	}
	normalized, err := b.normalizer.NormalizeString(text)
	if err != nil {
		return fmt.Errorf("corpus entry %s: %w", id, err)
	}
	b.addNormalized(id, name, normalized)
	return nil
}

func (b *Builder) addNormalized(id core.Identifier, name, normalized string) {
	e, ok := b.entries[id]
	if !ok {
		e = &Entry{ID: id}
		b.entries[id] = e
	}
	if e.Name == "" {
		e.Name = name
	}
	for _, existing := range e.Texts {
		if existing == normalized {
			return
		}
	}
	e.Texts = append(e.Texts, normalized)
	e.Fingerprints = append(e.Fingerprints, fingerprint.New(normalized, b.size))
}

// Len returns the number of distinct identifiers added so far.
func (b *Builder) Len() int { return len(b.entries) }

// Build freezes the builder. An empty builder fails with *core.CorpusLoadError.
func (b *Builder) Build() (*Corpus, error) {
	if len(b.entries) == 0 {
		return nil, &core.CorpusLoadError{}
	}
	c := &Corpus{
		entries:     make([]*Entry, 0, len(b.entries)),
		byID:        make(map[core.Identifier]*Entry, len(b.entries)),
		shingleSize: b.size,
	}
	for id, e := range b.entries {
		if e.Name == "" {
			e.Name = string(id)
		}
		c.entries = append(c.entries, e)
		c.byID[id] = e
	}
	sort.Slice(c.entries, func(i, j int) bool { return c.entries[i].ID < c.entries[j].ID })
	return c, nil
}

// Merge layers over on top of base: an identifier present in both takes the
// texts from over. Fingerprints are rebuilt at base's shingle size.
func Merge(base, over *Corpus) (*Corpus, error) {
	b := NewBuilder(base.ShingleSize())
	for _, e := range base.Entries() {
		if _, shadowed := over.Lookup(e.ID); shadowed {
			continue
		}
		for _, t := range e.Texts {
			b.addNormalized(e.ID, e.Name, t)
		}
	}
	for _, e := range over.Entries() {
		for _, t := range e.Texts {
			b.addNormalized(e.ID, e.Name, t)
		}
	}
	return b.Build()
}
