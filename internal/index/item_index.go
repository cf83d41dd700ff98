package index

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync/atomic"
	"unicode/utf8"

	"github.com/igusev/launchq/internal/match"
	"github.com/igusev/launchq/internal/model"
	"github.com/tchap/go-patricia/v2/patricia"
)

// DefaultSeparators splits lookup strings on whitespace and common punctuation
const DefaultSeparators = `[\s\\/\-\[\](){}#!?<>"'=+*.:,;_]+`

// abortStride is how many inner-loop iterations run between cancellation checks
const abortStride = 256

// fuzzyOnlyWeight scales the score of items that matched only through edit tolerance
const fuzzyOnlyWeight = 0.5

// ErrInvalidConfig indicates a rejected index configuration
var ErrInvalidConfig = errors.New("invalid index configuration")

var errAborted = errors.New("search aborted")

// Config is fixed at construction
type Config struct {
	Separators            string // Word separator pattern
	CaseSensitive         bool
	Fuzzy                 bool // Fall back to edit-tolerant lookup when a word has no prefix match
	NGramSize             int  // Size of character n-grams used to find fuzzy candidates
	ErrorToleranceDivisor int  // Max edits for a word of length L is ceil(L / divisor)
}

// DefaultConfig returns the configuration used by first-party handlers
func DefaultConfig() Config {
	return Config{
		Separators:            DefaultSeparators,
		Fuzzy:                 true,
		NGramSize:             2,
		ErrorToleranceDivisor: match.DefaultErrorToleranceDivisor,
	}
}

// Validate rejects configurations that cannot build a usable index
func (c Config) Validate() error {
	if c.NGramSize < 1 {
		return fmt.Errorf("%w: ngram size %d must be at least 1", ErrInvalidConfig, c.NGramSize)
	}
	if c.ErrorToleranceDivisor < 1 {
		return fmt.Errorf("%w: error tolerance divisor %d must be at least 1", ErrInvalidConfig, c.ErrorToleranceDivisor)
	}
	if _, err := regexp.Compile(c.Separators); err != nil {
		return fmt.Errorf("%w: separators: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ItemIndex is a rebuildable fuzzy search structure over (item, lookup string) pairs.
// Rebuilds produce a new immutable Snapshot that is swapped in atomically;
// searches keep using the snapshot that was current when they started.
type ItemIndex struct {
	cfg     Config
	sep     *regexp.Regexp
	fuzzy   atomic.Bool
	current atomic.Pointer[Snapshot]
}

// Snapshot is one immutable generation of the index
type Snapshot struct {
	items    []model.IndexItem
	words    []wordEntry        // Dictionary, sorted by word
	trie     *patricia.Trie     // word -> position in words
	ngrams   map[string][]int32 // n-gram -> positions in words, ascending
	gramSize int
}

type wordEntry struct {
	word  []rune
	items []int32 // IndexItem positions containing the word, ascending
}

// New creates an empty index
func New(cfg Config) (*ItemIndex, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	idx := &ItemIndex{
		cfg: cfg,
		sep: regexp.MustCompile(cfg.Separators),
	}
	idx.fuzzy.Store(cfg.Fuzzy)
	idx.current.Store(emptySnapshot())
	return idx, nil
}

func emptySnapshot() *Snapshot {
	return &Snapshot{trie: patricia.NewTrie(), ngrams: map[string][]int32{}, gramSize: 1}
}

// SetFuzzy toggles edit-tolerant lookup for subsequent searches
func (x *ItemIndex) SetFuzzy(fuzzy bool) {
	x.fuzzy.Store(fuzzy)
}

// Fuzzy reports whether edit-tolerant lookup is enabled
func (x *ItemIndex) Fuzzy() bool {
	return x.fuzzy.Load()
}

// Config returns the construction configuration
func (x *ItemIndex) Config() Config {
	return x.cfg
}

// SetItems rebuilds the index wholesale
func (x *ItemIndex) SetItems(items []model.IndexItem) {
	s, _ := x.Build(context.Background(), items) // Background context never aborts
	x.Swap(s)
}

// Build prepares a new generation without publishing it.
// Returns ctx.Err() if the build was aborted.
func (x *ItemIndex) Build(ctx context.Context, items []model.IndexItem) (*Snapshot, error) {
	dict := make(map[string][]int32)
	for i, ii := range items {
		if i%abortStride == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		seen := make(map[string]struct{})
		for _, w := range match.Tokenize(ii.String, x.sep, x.cfg.CaseSensitive) {
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			dict[w] = append(dict[w], int32(i))
		}
	}

	keys := make([]string, 0, len(dict))
	for w := range dict {
		keys = append(keys, w)
	}
	sort.Strings(keys)

	s := &Snapshot{
		items:    append([]model.IndexItem(nil), items...),
		words:    make([]wordEntry, len(keys)),
		trie:     patricia.NewTrie(),
		ngrams:   make(map[string][]int32),
		gramSize: x.cfg.NGramSize,
	}

	for wi, w := range keys {
		if wi%abortStride == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		runes := []rune(w)
		s.words[wi] = wordEntry{word: runes, items: dict[w]}
		s.trie.Insert(patricia.Prefix(w), wi)

		for _, g := range ngrams(runes, x.cfg.NGramSize) {
			postings := s.ngrams[g]
			if n := len(postings); n > 0 && postings[n-1] == int32(wi) {
				continue
			}
			s.ngrams[g] = append(postings, int32(wi))
		}
	}

	return s, nil
}

// Swap publishes a generation built by Build. Nil is ignored.
func (x *ItemIndex) Swap(s *Snapshot) {
	if s == nil {
		return
	}
	x.current.Store(s)
}

// Snapshot returns the current generation
func (x *ItemIndex) Snapshot() *Snapshot {
	return x.current.Load()
}

// Len returns the number of index items in the current generation
func (x *ItemIndex) Len() int {
	return len(x.current.Load().items)
}

// Len returns the number of index items
func (s *Snapshot) Len() int {
	return len(s.items)
}

// WordCount returns the dictionary size
func (s *Snapshot) WordCount() int {
	return len(s.words)
}

// Search returns the items whose lookup strings match every word of query.
// Results are sorted by score, then by shorter lookup string, then lexicographically.
// An empty query returns every item with score 0 in insertion order.
// A cancelled ctx yields nil.
func (x *ItemIndex) Search(ctx context.Context, query string) []model.RankItem {
	if ctx.Err() != nil {
		return nil
	}
	s := x.current.Load()
	qwords := match.Tokenize(query, x.sep, x.cfg.CaseSensitive)
	if len(qwords) == 0 {
		return s.all()
	}

	fuzzy := x.fuzzy.Load()
	var hits map[int32]struct{}
	for qi, qw := range qwords {
		if ctx.Err() != nil {
			return nil
		}
		q := []rune(qw)
		set, err := s.prefixItems(ctx, qw)
		if err == nil && len(set) == 0 && fuzzy {
			set, err = s.fuzzyItems(ctx, q, x.cfg.ErrorToleranceDivisor)
		}
		if err != nil {
			return nil
		}

		if qi == 0 {
			hits = set
		} else {
			for i := range hits {
				if _, ok := set[i]; !ok {
					delete(hits, i)
				}
			}
		}
		if len(hits) == 0 {
			return []model.RankItem{}
		}
	}

	if ctx.Err() != nil {
		return nil
	}

	matcher := match.New(query, match.Config{
		CaseSensitive:         x.cfg.CaseSensitive,
		Fuzzy:                 fuzzy,
		IgnoreWordOrder:       true,
		Separators:            x.sep,
		ErrorToleranceDivisor: x.cfg.ErrorToleranceDivisor,
	})
	queryLen := 0
	for _, qw := range qwords {
		queryLen += utf8.RuneCountInString(qw)
	}

	return s.score(ctx, hits, matcher, queryLen)
}

// candidate is the best lookup string found so far for one item
type candidate struct {
	item   *model.Item
	lookup string
	length int
	pos    int32
	score  float64
}

func (c candidate) better(o candidate) bool {
	if c.score != o.score {
		return c.score > o.score
	}
	if c.length != o.length {
		return c.length < o.length
	}
	if c.lookup != o.lookup {
		return c.lookup < o.lookup
	}
	return c.pos < o.pos
}

func (s *Snapshot) score(ctx context.Context, hits map[int32]struct{}, matcher *match.Matcher, queryLen int) []model.RankItem {
	best := make(map[*model.Item]candidate, len(hits))
	n := 0
	for pos := range hits {
		n++
		if n%abortStride == 0 && ctx.Err() != nil {
			return nil
		}
		ii := s.items[pos]
		length := utf8.RuneCountInString(ii.String)
		m := matcher.Match(ii.String)

		score := m.Score()
		if !m.IsMatch() {
			score = fuzzyOnlyScore(queryLen, length)
		}

		c := candidate{item: ii.Item, lookup: ii.String, length: length, pos: pos, score: score}
		if prev, ok := best[ii.Item]; !ok || c.better(prev) {
			best[ii.Item] = c
		}
	}

	ranked := make([]candidate, 0, len(best))
	for _, c := range best {
		ranked = append(ranked, c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].better(ranked[j])
	})

	out := make([]model.RankItem, len(ranked))
	for i, c := range ranked {
		out[i] = model.RankItem{Item: c.item, Score: c.score}
	}
	return out
}

// fuzzyOnlyScore scores a lookup string that matched only through edit tolerance.
// It stays strictly inside (0,1) so it never looks like an empty or exact match.
func fuzzyOnlyScore(queryLen, lookupLen int) float64 {
	if lookupLen == 0 {
		return 0.01
	}
	score := fuzzyOnlyWeight * float64(queryLen) / float64(lookupLen)
	if score >= fuzzyOnlyWeight {
		score = fuzzyOnlyWeight
	}
	if score <= 0 {
		score = 0.01
	}
	return score
}

// all returns every item once, in insertion order, with score 0
func (s *Snapshot) all() []model.RankItem {
	seen := make(map[*model.Item]struct{}, len(s.items))
	out := make([]model.RankItem, 0, len(s.items))
	for _, ii := range s.items {
		if _, dup := seen[ii.Item]; dup {
			continue
		}
		seen[ii.Item] = struct{}{}
		out = append(out, model.RankItem{Item: ii.Item, Score: 0})
	}
	return out
}

// prefixItems collects the items containing a dictionary word that starts with word
func (s *Snapshot) prefixItems(ctx context.Context, word string) (map[int32]struct{}, error) {
	set := make(map[int32]struct{})
	visited := 0
	err := s.trie.VisitSubtree(patricia.Prefix(word), func(_ patricia.Prefix, item patricia.Item) error {
		visited++
		if visited%abortStride == 0 && ctx.Err() != nil {
			return errAborted
		}
		for _, pos := range s.words[item.(int)].items {
			set[pos] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// fuzzyItems collects the items containing a dictionary word within edit tolerance of word.
// Candidates share at least one padded n-gram with word; each is verified against the full
// dictionary word and against its prefix of the same length.
// Words short enough that every n-gram can be destroyed by the allowed edits are
// compared against the whole dictionary instead.
func (s *Snapshot) fuzzyItems(ctx context.Context, word []rune, divisor int) (map[int32]struct{}, error) {
	limit := match.Tolerance(len(word), divisor)

	var candidates []int32
	if len(word) <= s.gramSize*limit {
		candidates = make([]int32, len(s.words))
		for wi := range s.words {
			candidates[wi] = int32(wi)
		}
	} else {
		seen := make(map[int32]struct{})
		n := 0
		for _, g := range ngrams(word, s.gramSize) {
			for _, wi := range s.ngrams[g] {
				n++
				if n%abortStride == 0 && ctx.Err() != nil {
					return nil, errAborted
				}
				if _, dup := seen[wi]; dup {
					continue
				}
				seen[wi] = struct{}{}
				candidates = append(candidates, wi)
			}
		}
	}

	set := make(map[int32]struct{})
	for n, wi := range candidates {
		if (n+1)%abortStride == 0 && ctx.Err() != nil {
			return nil, errAborted
		}
		w := s.words[wi].word
		ok := match.Distance(word, w, limit) <= limit
		if !ok && len(w) > len(word) {
			ok = match.Distance(word, w[:len(word)], limit) <= limit
		}
		if !ok {
			continue
		}
		for _, pos := range s.words[wi].items {
			set[pos] = struct{}{}
		}
	}
	return set, nil
}

// Word boundary markers padding the n-grams of every word
const (
	wordStart = '\x02'
	wordEnd   = '\x03'
)

// ngrams returns the distinct contiguous n-grams of word padded with n-1 boundary
// markers on each side, so every rune takes part in n grams
func ngrams(word []rune, n int) []string {
	if len(word) == 0 {
		return nil
	}
	padded := make([]rune, 0, len(word)+2*(n-1))
	for i := 1; i < n; i++ {
		padded = append(padded, wordStart)
	}
	padded = append(padded, word...)
	for i := 1; i < n; i++ {
		padded = append(padded, wordEnd)
	}
	seen := make(map[string]struct{}, len(padded)-n+1)
	out := make([]string, 0, len(padded)-n+1)
	for i := 0; i+n <= len(padded); i++ {
		g := string(padded[i : i+n])
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}
