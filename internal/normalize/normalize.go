// Package normalize canonicalises raw license text so that formatting noise
// (comment markers, copyright statements, typography, case, whitespace) does
// not affect matching.
package normalize

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/git-pkgs/licenses/internal/core"
)

// DefaultMarkers maps a scrape source type to the comment markers stripped
// from the start of each line. Types not listed strip nothing.
var DefaultMarkers = map[string][]string{
	"c":      {"//", "/*", "*"},
	"cpp":    {"//", "/*", "*"},
	"go":     {"//", "/*", "*"},
	"java":   {"//", "/*", "*"},
	"js":     {"//", "/*", "*"},
	"rust":   {"//!", "///", "//", "/*", "*"},
	"python": {"#"},
	"ruby":   {"#"},
	"shell":  {"#"},
	"cmake":  {"#"},
	"html":   {"<!--"},
	"xml":    {"<!--"},
	"lisp":   {";;;", ";;", ";"},
	"sql":    {"--"},
	"text":   nil,
}

// closers pairs block comment openers with the marker that ends them.
var closers = map[string]string{
	"/*":   "*/",
	"<!--": "-->",
}

var yearToken = regexp.MustCompile(`^\(?\d{4}`)

const (
	// holderTokens caps how much of a statement is consumed after its marker
	// when no sentence end is found.
	holderTokens = 4
	// sentenceTokens bounds the search for a sentence end within a line.
	sentenceTokens = 12
	// lineTokens is the longest line dropped whole as a copyright line.
	lineTokens = 8
)

var typography = strings.NewReplacer(
	"‘", "'", "’", "'", "‚", "'", "‛", "'",
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`,
	"«", `"`, "»", `"`,
	"‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-", "―", "-", "−", "-",
	"•", "*", " ", " ",
)

// Normalized is the canonical form of one license text.
type Normalized struct {
	Text     string
	Original string
	Label    string
}

type markerSet struct {
	openers []string
	closers []string
}

// Normalizer applies the normalization pipeline. It holds no mutable state and
// is safe for concurrent use.
type Normalizer struct {
	markers map[string]markerSet
}

// New builds a normalizer for the given source type to marker table. A nil
// table uses DefaultMarkers.
func New(markers map[string][]string) *Normalizer {
	if markers == nil {
		markers = DefaultMarkers
	}
	n := &Normalizer{markers: make(map[string]markerSet, len(markers))}
	for sourceType, list := range markers {
		set := markerSet{}
		for _, m := range list {
			m = strings.TrimSpace(m)
			if m == "" {
				continue
			}
			set.openers = append(set.openers, m)
			if c, ok := closers[m]; ok {
				set.closers = append(set.closers, c)
			}
		}
		sortLongestFirst(set.openers)
		sortLongestFirst(set.closers)
		n.markers[strings.ToLower(sourceType)] = set
	}
	return n
}

func sortLongestFirst(s []string) {
	sort.SliceStable(s, func(i, j int) bool {
		if len(s[i]) != len(s[j]) {
			return len(s[i]) > len(s[j])
		}
		return s[i] < s[j]
	})
}

// Normalize returns the canonical form of text. It fails with
// *core.EmptyInputError when nothing is left after normalization.
func (n *Normalizer) Normalize(text core.LicenseText) (Normalized, error) {
	set := n.markers[strings.ToLower(text.SourceType)]
	out := n.apply(text.Content, set)
	if out == "" {
		return Normalized{}, &core.EmptyInputError{Label: text.Label}
	}
	return Normalized{Text: out, Original: text.Content, Label: text.Label}, nil
}

// NormalizeString normalizes s without stripping any comment markers. Corpus
// texts go through this path.
func (n *Normalizer) NormalizeString(s string) (string, error) {
	out := n.apply(s, markerSet{})
	if out == "" {
		return "", &core.EmptyInputError{}
	}
	return out, nil
}

// String is NormalizeString on a default normalizer.
func String(s string) (string, error) {
	return New(nil).NormalizeString(s)
}

func (n *Normalizer) apply(s string, set markerSet) string {
	s = norm.NFKC.String(s)
	s = typography.Replace(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = stripCopyrightLine(stripMarkers(line, set))
		if line == "" {
			continue
		}
		kept = append(kept, line)
	}
	s = strings.Join(kept, "\n")

	// cases.Caser is stateful, one per call.
	s = cases.Fold().String(s)
	s = norm.NFKC.String(s)

	// Statements wrapped across lines only become visible once the text is
	// joined, so they are stripped again from the token stream. Running to a
	// fixed point keeps the output stable under renormalization.
	tokens := strings.Fields(s)
	for {
		var removed bool
		tokens, removed = stripStatements(tokens)
		if !removed {
			break
		}
	}
	return strings.Join(tokens, " ")
}

// stripMarkers removes closing markers from the end of line before and after
// removing openers from its start, so a bare "*/" is not read as "*" + "/".
func stripMarkers(line string, set markerSet) string {
	line = strings.TrimSpace(line)
	line = trimClosers(line, set.closers)
	for stripped := true; stripped && line != ""; {
		stripped = false
		for _, m := range set.openers {
			if strings.HasPrefix(line, m) {
				line = strings.TrimSpace(line[len(m):])
				stripped = true
				break
			}
		}
	}
	return trimClosers(line, set.closers)
}

func trimClosers(line string, closers []string) string {
	for stripped := true; stripped && line != ""; {
		stripped = false
		for _, c := range closers {
			if strings.HasSuffix(line, c) {
				line = strings.TrimSpace(line[:len(line)-len(c)])
				stripped = true
				break
			}
		}
	}
	return line
}

// stripCopyrightLine removes a copyright statement that opens line. The
// statement ends at the first sentence end; a short line with no sentence end
// is dropped whole. Longer lines are left to stripStatements.
func stripCopyrightLine(line string) string {
	fields := strings.Fields(line)
	n := markerLen(fields, 0)
	if n == 0 {
		return line
	}
	for i := n - 1; i < len(fields) && i < sentenceTokens; i++ {
		if endsSentence(fields[i]) {
			return strings.Join(fields[i+1:], " ")
		}
	}
	if len(fields) <= lineTokens {
		return ""
	}
	return line
}

// stripStatements removes copyright statements and "all rights reserved"
// phrases from anywhere in a token stream. A statement is its marker plus at
// most holderTokens following tokens, stopping early at a sentence end or at
// the start of the next statement.
func stripStatements(tokens []string) ([]string, bool) {
	out := make([]string, 0, len(tokens))
	removed := false
	for i := 0; i < len(tokens); {
		if n := rightsLen(tokens, i); n > 0 {
			i += n
			removed = true
			continue
		}
		n := markerLen(tokens, i)
		if n == 0 {
			out = append(out, tokens[i])
			i++
			continue
		}
		j := i + n
		if !endsSentence(tokens[j-1]) {
			for k := 0; k < holderTokens && j < len(tokens); k++ {
				if markerLen(tokens, j) > 0 || rightsLen(tokens, j) > 0 {
					break
				}
				j++
				if endsSentence(tokens[j-1]) {
					break
				}
			}
		}
		i = j
		removed = true
	}
	return out, removed
}

// markerLen reports how many tokens starting at i form a copyright marker
// such as "copyright (c)", "copyright 2019", "(c) 2019" or "©", or 0.
func markerLen(tokens []string, i int) int {
	t := strings.ToLower(tokens[i])
	switch {
	case t == "copyright":
		if i+1 >= len(tokens) {
			return 0
		}
		next := strings.ToLower(tokens[i+1])
		if opensNotice(next) || next == "by" || next == "-" || next == ":" {
			return 2
		}
	case strings.HasPrefix(t, "copyright"):
		rest := t[len("copyright"):]
		if opensNotice(rest) || rest == "-" || rest == ":" {
			return 1
		}
	case t == "(c)":
		if i+1 < len(tokens) && yearToken.MatchString(tokens[i+1]) {
			return 1
		}
	case strings.HasPrefix(t, "(c)"):
		if yearToken.MatchString(t[len("(c)"):]) {
			return 1
		}
	case strings.HasPrefix(t, "©"):
		return 1
	}
	return 0
}

func opensNotice(t string) bool {
	return strings.HasPrefix(t, "(c)") || strings.HasPrefix(t, "©") || yearToken.MatchString(t)
}

func rightsLen(tokens []string, i int) int {
	if i+2 >= len(tokens) {
		return 0
	}
	if strings.EqualFold(tokens[i], "all") && strings.EqualFold(tokens[i+1], "rights") &&
		strings.EqualFold(strings.TrimRight(tokens[i+2], ".,;"), "reserved") {
		return 3
	}
	return 0
}

func endsSentence(t string) bool {
	return strings.HasSuffix(t, ".")
}
