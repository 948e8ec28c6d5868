// Package match identifies which reference licenses a normalized text contains.
//
// Every corpus entry is compared against the blob with a window as long as the
// entry's shingle sequence, slid one shingle at a time; the window with the
// highest Sorensen-Dice score decides the entry's confidence and span. Scoring
// windows rather than the whole blob lets a single file that concatenates
// several licenses match each of them at full confidence.
package match

import (
	"fmt"
	"sort"

	"github.com/git-pkgs/licenses/internal/core"
	"github.com/git-pkgs/licenses/internal/corpus"
	"github.com/git-pkgs/licenses/internal/fingerprint"
)

const (
	DefaultThreshold = 0.9
	maxShingleSize   = 5
)

// Options tunes the matcher. Zero fields take their defaults.
type Options struct {
	// Threshold is the minimum confidence for a candidate to be reported.
	Threshold float64
	// ShingleSize is the number of words per shingle.
	ShingleSize int
	// OverlapRatio is the share of the smaller span a higher scoring
	// candidate must cover before the lower one is dropped. Zero keeps
	// every candidate at or above Threshold.
	OverlapRatio float64
	// MaxTokens truncates longer blobs. Zero means unbounded.
	MaxTokens int
}

// DefaultOptions returns the stock matcher settings.
func DefaultOptions() Options {
	return Options{
		Threshold:   DefaultThreshold,
		ShingleSize: fingerprint.DefaultSize,
	}
}

func (o Options) withDefaults() Options {
	if o.Threshold == 0 {
		o.Threshold = DefaultThreshold
	}
	if o.ShingleSize == 0 {
		o.ShingleSize = fingerprint.DefaultSize
	}
	return o
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	if o.Threshold <= 0 || o.Threshold > 1 {
		return fmt.Errorf("threshold must be in (0, 1], got %v", o.Threshold)
	}
	if o.ShingleSize < 1 || o.ShingleSize > maxShingleSize {
		return fmt.Errorf("shingle size must be between 1 and %d, got %d", maxShingleSize, o.ShingleSize)
	}
	if o.OverlapRatio < 0 || o.OverlapRatio > 1 {
		return fmt.Errorf("overlap ratio must be in [0, 1], got %v", o.OverlapRatio)
	}
	if o.MaxTokens < 0 {
		return fmt.Errorf("max tokens must not be negative, got %d", o.MaxTokens)
	}
	return nil
}

type entryPrints struct {
	id     core.Identifier
	prints []*fingerprint.Fingerprint
}

// Matcher scores normalized texts against a corpus. It is read-only after New
// and safe for concurrent use.
type Matcher struct {
	opts    Options
	entries []entryPrints
}

// New builds a matcher over c. A nil or empty corpus fails with
// *core.CorpusLoadError.
func New(c *corpus.Corpus, opts Options) (*Matcher, error) {
	if c.Len() == 0 {
		return nil, &core.CorpusLoadError{}
	}
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	m := &Matcher{opts: opts, entries: make([]entryPrints, 0, c.Len())}
	reuse := c.ShingleSize() == opts.ShingleSize
	for _, e := range c.Entries() {
		ep := entryPrints{id: e.ID}
		if reuse {
			ep.prints = e.Fingerprints
		} else {
			for _, text := range e.Texts {
				ep.prints = append(ep.prints, fingerprint.New(text, opts.ShingleSize))
			}
		}
		m.entries = append(m.entries, ep)
	}
	return m, nil
}

// Options returns the effective options.
func (m *Matcher) Options() Options { return m.opts }

// Analysis is the full result of scoring one blob.
type Analysis struct {
	// Candidates holds every entry at or above the threshold, less any
	// dropped by overlap suppression when OverlapRatio is set, ordered by
	// confidence descending then identifier.
	Candidates []core.MatchCandidate
	// Nearest is the best scoring entry regardless of threshold, nil when
	// nothing shares a single shingle with the blob.
	Nearest *core.MatchCandidate
	// Truncated reports that the blob exceeded MaxTokens.
	Truncated bool
	Tokens    int
}

// Match returns the candidates for a normalized blob.
func (m *Matcher) Match(normalized string) []core.MatchCandidate {
	return m.Analyze(normalized).Candidates
}

// Nearest returns the best scoring entry even when it is below the threshold.
func (m *Matcher) Nearest(normalized string) (core.MatchCandidate, bool) {
	a := m.Analyze(normalized)
	if a.Nearest == nil {
		return core.MatchCandidate{}, false
	}
	return *a.Nearest, true
}

// Score returns the confidence of a single entry against the blob.
func (m *Matcher) Score(normalized string, id core.Identifier) (float64, bool) {
	blob, _ := m.fingerprint(normalized)
	for _, e := range m.entries {
		if e.id != id {
			continue
		}
		score, _ := bestOf(blob, e.prints)
		return score, true
	}
	return 0, false
}

// Analyze scores every corpus entry against the blob.
func (m *Matcher) Analyze(normalized string) Analysis {
	blob, a := m.fingerprint(normalized)
	if blob.Len() == 0 {
		return a
	}

	var (
		found   []core.MatchCandidate
		nearest core.MatchCandidate
	)
	for _, e := range m.entries {
		if bound := upperBound(blob, e.prints); bound < m.opts.Threshold && bound <= nearest.Confidence {
			continue
		}
		score, span := bestOf(blob, e.prints)
		if score == 0 {
			continue
		}
		c := core.MatchCandidate{Identifier: e.id, Confidence: score, Span: &span}
		if score > nearest.Confidence {
			nearest = c
		}
		if score >= m.opts.Threshold {
			found = append(found, c)
		}
	}

	if nearest.Identifier != "" {
		a.Nearest = &nearest
	}
	a.Candidates = suppressOverlaps(found, m.opts.OverlapRatio)
	return a
}

func (m *Matcher) fingerprint(normalized string) (*fingerprint.Fingerprint, Analysis) {
	tokens := fingerprint.Tokenize(normalized)
	a := Analysis{Tokens: len(tokens)}
	if m.opts.MaxTokens > 0 && len(tokens) > m.opts.MaxTokens {
		tokens = tokens[:m.opts.MaxTokens]
		a.Truncated = true
	}
	return fingerprint.FromTokens(tokens, m.opts.ShingleSize), a
}

// upperBound is the best score any window could reach for an entry: no
// window can share more shingles with the entry than the whole blob does.
func upperBound(blob *fingerprint.Fingerprint, prints []*fingerprint.Fingerprint) float64 {
	var best float64
	for _, fp := range prints {
		if fp.Len() == 0 {
			continue
		}
		inter := fingerprint.Intersection(blob, fp)
		var bound float64
		if blob.Len() <= fp.Len() {
			bound = 2 * float64(inter) / float64(blob.Len()+fp.Len())
		} else {
			bound = float64(inter) / float64(fp.Len())
		}
		best = max(best, bound)
	}
	return best
}

func bestOf(blob *fingerprint.Fingerprint, prints []*fingerprint.Fingerprint) (float64, core.Span) {
	var (
		best     float64
		bestSpan core.Span
	)
	for _, fp := range prints {
		score, span := scoreWindow(blob, fp)
		if score > best {
			best, bestSpan = score, span
		}
	}
	return best, bestSpan
}

// scoreWindow slides a window of the entry's length over the blob keeping the
// multiset intersection up to date incrementally. With equal sized windows
// the Dice coefficient reduces to intersection / window length.
func scoreWindow(blob, entry *fingerprint.Fingerprint) (float64, core.Span) {
	m, n := entry.Len(), blob.Len()
	if m == 0 || n == 0 {
		return 0, core.Span{}
	}
	if n <= m {
		span := core.Span{Start: blob.Shingles[0].Start, End: blob.Shingles[n-1].End}
		return fingerprint.Dice(blob, entry), span
	}

	win := make(map[uint64]int, m)
	inter := 0
	add := func(h uint64) {
		need := entry.Counts[h]
		if need == 0 {
			return
		}
		if win[h] < need {
			inter++
		}
		win[h]++
	}
	remove := func(h uint64) {
		need := entry.Counts[h]
		if need == 0 {
			return
		}
		win[h]--
		if win[h] < need {
			inter--
		}
	}

	for i := 0; i < m; i++ {
		add(blob.Shingles[i].Hash)
	}
	best, bestStart := inter, 0
	for i := m; i < n && best < m; i++ {
		remove(blob.Shingles[i-m].Hash)
		add(blob.Shingles[i].Hash)
		if inter > best {
			best, bestStart = inter, i-m+1
		}
	}

	span := core.Span{Start: blob.Shingles[bestStart].Start, End: blob.Shingles[bestStart+m-1].End}
	return float64(best) / float64(m), span
}

// suppressOverlaps orders candidates and, for a positive ratio, drops any
// whose span is mostly covered by a strictly higher scoring accepted
// candidate. Ties survive.
func suppressOverlaps(found []core.MatchCandidate, ratio float64) []core.MatchCandidate {
	sort.Slice(found, func(i, j int) bool {
		if found[i].Confidence != found[j].Confidence {
			return found[i].Confidence > found[j].Confidence
		}
		return found[i].Identifier < found[j].Identifier
	})
	if ratio == 0 {
		return found
	}

	kept := make([]core.MatchCandidate, 0, len(found))
	for _, c := range found {
		if !covered(c, kept, ratio) {
			kept = append(kept, c)
		}
	}
	return kept
}

func covered(c core.MatchCandidate, kept []core.MatchCandidate, ratio float64) bool {
	for _, k := range kept {
		if k.Confidence <= c.Confidence || k.Span == nil || c.Span == nil {
			continue
		}
		smaller := min(k.Span.Len(), c.Span.Len())
		if smaller == 0 {
			continue
		}
		if float64(k.Span.Overlap(*c.Span)) > ratio*float64(smaller) {
			return true
		}
	}
	return false
}
