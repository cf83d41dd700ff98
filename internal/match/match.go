// Package match scores candidate strings against a prepared query string
package match

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// DefaultErrorToleranceDivisor allows one edit per four characters of a word
const DefaultErrorToleranceDivisor = 4

// Config controls how a Matcher compares words
type Config struct {
	CaseSensitive   bool
	Fuzzy           bool // Tolerate ceil(len/divisor) edits per word
	IgnoreWordOrder bool // Sort both word lists before walking them
	LeftAnchored    bool // Prefix match against the whole candidate (trigger matching)

	// Separators splits strings into words. Nil means whitespace.
	Separators *regexp.Regexp
	// ErrorToleranceDivisor is used when Fuzzy is set. Zero means DefaultErrorToleranceDivisor.
	ErrorToleranceDivisor int
}

// DefaultConfig returns the configuration used for global queries
func DefaultConfig() Config {
	return Config{IgnoreWordOrder: true}
}

// Match is the result of matching one candidate. Negative means no match.
type Match float64

// NoMatch is the sentinel returned for non-matching candidates
const NoMatch Match = -1

// IsMatch reports whether every query word was consumed
func (m Match) IsMatch() bool { return m >= 0 }

// IsEmptyMatch reports a match of the empty query
func (m Match) IsEmptyMatch() bool { return m == 0 }

// IsExactMatch reports that the query covers the whole candidate
func (m Match) IsExactMatch() bool { return m == 1 }

// Score returns the raw score
func (m Match) Score() float64 { return float64(m) }

// Matcher is a reusable, read-only matcher for one reference string.
// It is safe for concurrent use.
type Matcher struct {
	cfg     Config
	ref     string
	words   [][]rune
	divisor int
}

// New prepares a matcher for the reference string
func New(reference string, cfg Config) *Matcher {
	m := &Matcher{cfg: cfg, divisor: cfg.ErrorToleranceDivisor}
	if m.divisor <= 0 {
		m.divisor = DefaultErrorToleranceDivisor
	}

	if cfg.LeftAnchored {
		m.ref = fold(reference, cfg.CaseSensitive)
		return m
	}

	words := Tokenize(reference, cfg.Separators, cfg.CaseSensitive)
	if cfg.IgnoreWordOrder {
		sort.Strings(words)
	}
	m.words = make([][]rune, len(words))
	for i, w := range words {
		m.words[i] = []rune(w)
	}
	m.ref = strings.Join(words, " ")
	return m
}

// Reference returns the normalized reference string
func (m *Matcher) Reference() string {
	return m.ref
}

// Match scores candidate against the reference.
// Score is matched characters divided by the candidate's length in runes.
// An empty reference matches everything with score 0.
func (m *Matcher) Match(candidate string) Match {
	if m.cfg.LeftAnchored {
		return m.matchAnchored(candidate)
	}
	if len(m.words) == 0 {
		return 0
	}

	total := utf8.RuneCountInString(candidate)
	if total == 0 {
		return NoMatch
	}

	words := Tokenize(candidate, m.cfg.Separators, m.cfg.CaseSensitive)
	if m.cfg.IgnoreWordOrder {
		sort.Strings(words)
	}

	matched := 0
	ri := 0
	for _, w := range words {
		if ri == len(m.words) {
			break
		}
		if n := m.matchWord(m.words[ri], []rune(w)); n > 0 {
			matched += n
			ri++
		}
	}

	if ri < len(m.words) {
		return NoMatch
	}
	return Match(float64(matched) / float64(total))
}

// MatchAny returns the best match over several candidates
func (m *Matcher) MatchAny(candidates ...string) Match {
	best := NoMatch
	for _, c := range candidates {
		if s := m.Match(c); s > best {
			best = s
		}
	}
	return best
}

// matchWord returns the number of matched characters of ref against the
// prefix of cand, or 0 when ref does not match.
func (m *Matcher) matchWord(ref, cand []rune) int {
	if len(ref) > len(cand) {
		return 0
	}
	prefix := cand[:len(ref)]
	if equalRunes(ref, prefix) {
		return len(ref)
	}
	if !m.cfg.Fuzzy {
		return 0
	}
	limit := Tolerance(len(ref), m.divisor)
	if d := Distance(ref, prefix, limit); d <= limit && len(ref)-d > 0 {
		return len(ref) - d
	}
	return 0
}

func (m *Matcher) matchAnchored(candidate string) Match {
	total := utf8.RuneCountInString(candidate)
	if m.ref == "" {
		return 0
	}
	if total == 0 {
		return NoMatch
	}
	c := fold(candidate, m.cfg.CaseSensitive)
	if strings.HasPrefix(c, m.ref) {
		return Match(float64(utf8.RuneCountInString(m.ref)) / float64(total))
	}
	return NoMatch
}

// Tokenize splits s into non-empty words, lower-cased unless caseSensitive
func Tokenize(s string, separators *regexp.Regexp, caseSensitive bool) []string {
	s = fold(s, caseSensitive)
	var parts []string
	if separators == nil {
		parts = strings.Fields(s)
	} else {
		parts = separators.Split(s, -1)
	}

	words := parts[:0]
	for _, p := range parts {
		if p != "" {
			words = append(words, p)
		}
	}
	return words
}

// Tolerance returns the number of edits allowed for a word of the given length
func Tolerance(length, divisor int) int {
	if divisor <= 0 {
		return 0
	}
	return (length + divisor - 1) / divisor
}

func fold(s string, caseSensitive bool) string {
	if caseSensitive {
		return s
	}
	return strings.ToLower(s)
}

func equalRunes(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
