// Package fingerprint builds word n-gram fingerprints of normalized text and
// compares them with the Sorensen-Dice coefficient.
//
// A fingerprint keeps both the ordered shingle sequence, which the matcher
// slides windows over, and the shingle multiset used for whole-text scores.
// Shingles are hashed with 64-bit FNV-1a so comparisons never touch strings.
package fingerprint

import (
	"hash/fnv"
	"unicode"
)

// DefaultSize is the number of words per shingle.
const DefaultSize = 2

// Token is one word of normalized text with its byte range.
type Token struct {
	Text  string
	Start int
	End   int
}

// Tokenize splits text into runs of letters and digits. Punctuation and
// whitespace separate tokens and are otherwise ignored.
func Tokenize(text string) []Token {
	var tokens []Token
	start := -1
	for i, r := range text {
		word := unicode.IsLetter(r) || unicode.IsDigit(r)
		switch {
		case word && start < 0:
			start = i
		case !word && start >= 0:
			tokens = append(tokens, Token{Text: text[start:i], Start: start, End: i})
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, Token{Text: text[start:], Start: start, End: len(text)})
	}
	return tokens
}

// Shingle is a hashed run of consecutive tokens.
type Shingle struct {
	Hash  uint64
	Start int // byte offset of the first token
	End   int // byte offset past the last token
}

// Fingerprint is the shingle sequence of a text and its multiset.
type Fingerprint struct {
	Size     int
	Shingles []Shingle
	Counts   map[uint64]int
	Tokens   int
}

// New fingerprints text with shingles of size words. Texts shorter than size
// produce a single shingle covering every token.
func New(text string, size int) *Fingerprint {
	return FromTokens(Tokenize(text), size)
}

// FromTokens fingerprints an already tokenized text.
func FromTokens(tokens []Token, size int) *Fingerprint {
	if size <= 0 {
		size = DefaultSize
	}
	fp := &Fingerprint{Size: size, Counts: make(map[uint64]int), Tokens: len(tokens)}
	if len(tokens) == 0 {
		return fp
	}

	width := min(size, len(tokens))
	fp.Shingles = make([]Shingle, 0, len(tokens)-width+1)
	for i := 0; i+width <= len(tokens); i++ {
		sh := Shingle{
			Hash:  hashTokens(tokens[i : i+width]),
			Start: tokens[i].Start,
			End:   tokens[i+width-1].End,
		}
		fp.Shingles = append(fp.Shingles, sh)
		fp.Counts[sh.Hash]++
	}
	return fp
}

func hashTokens(tokens []Token) uint64 {
	h := fnv.New64a()
	for i, t := range tokens {
		if i > 0 {
			_, _ = h.Write([]byte{' '})
		}
		_, _ = h.Write([]byte(t.Text))
	}
	return h.Sum64()
}

// Len returns the number of shingles.
func (f *Fingerprint) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Shingles)
}

// Intersection returns the multiset intersection size of two fingerprints.
func Intersection(a, b *Fingerprint) int {
	if a.Len() == 0 || b.Len() == 0 {
		return 0
	}
	small, large := a.Counts, b.Counts
	if len(small) > len(large) {
		small, large = large, small
	}
	var inter int
	for h, c := range small {
		inter += min(c, large[h])
	}
	return inter
}

// Dice computes 2|A∩B| / (|A|+|B|) over the shingle multisets. Two empty
// fingerprints score 0.
func Dice(a, b *Fingerprint) float64 {
	total := a.Len() + b.Len()
	if total == 0 {
		return 0
	}
	return 2 * float64(Intersection(a, b)) / float64(total)
}
