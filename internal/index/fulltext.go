package index

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
)

// snippetLength caps fallback snippets taken from the body
const snippetLength = 150

// Document is one full-text indexed entry
type Document struct {
	ID    string // Unique document id, also returned in matches
	Title string
	Body  string
}

// FullTextMatch is a search result from the full-text index
type FullTextMatch struct {
	ID      string
	Title   string
	Snippet string  // Context snippet around the match
	Score   float64 // Relevance score from bleve
}

// FullText is an in-memory bleve index over titles and bodies.
// Like ItemIndex it is rebuilt wholesale: Replace builds a fresh index and
// swaps it in, closing the previous generation.
type FullText struct {
	mu    sync.RWMutex
	index bleve.Index
}

// NewFullText creates an empty in-memory full-text index
func NewFullText() (*FullText, error) {
	idx, err := bleve.NewMemOnly(buildFullTextMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	return &FullText{index: idx}, nil
}

// buildFullTextMapping creates the index mapping for documents
func buildFullTextMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	// Use standard analyzer (supports stemming and stop words)
	indexMapping.DefaultAnalyzer = standard.Name

	docMapping := bleve.NewDocumentMapping()

	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = standard.Name
	titleFieldMapping.Store = true
	titleFieldMapping.Index = true
	docMapping.AddFieldMappingsAt("Title", titleFieldMapping)

	bodyFieldMapping := bleve.NewTextFieldMapping()
	bodyFieldMapping.Analyzer = standard.Name
	bodyFieldMapping.Store = true // Store for snippet extraction
	bodyFieldMapping.Index = true
	bodyFieldMapping.IncludeTermVectors = true // For snippet highlighting
	docMapping.AddFieldMappingsAt("Body", bodyFieldMapping)

	// ID is only needed to rebuild the match
	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Store = true
	idFieldMapping.Index = false
	docMapping.AddFieldMappingsAt("ID", idFieldMapping)

	indexMapping.DefaultMapping = docMapping

	return indexMapping
}

// buildFieldQuery creates a query for a specific field with multi-token support
// Each token matches fuzzily (distance 1) or as a prefix; all tokens are required
func buildFieldQuery(tokens []string, field string, boost float64) query.Query {
	if len(tokens) == 0 {
		return bleve.NewMatchNoneQuery()
	}

	tokenQueries := make([]query.Query, 0, len(tokens))
	for _, token := range tokens {
		// MatchQuery: exact matches and typos (e.g., "tmeplate" -> "template")
		matchQ := bleve.NewMatchQuery(token)
		matchQ.SetField(field)
		matchQ.SetFuzziness(1)

		// PrefixQuery: partial matches (e.g., "templa" -> "template")
		prefixQ := bleve.NewPrefixQuery(token)
		prefixQ.SetField(field)

		tokenQueries = append(tokenQueries, bleve.NewDisjunctionQuery(matchQ, prefixQ))
	}

	if len(tokenQueries) == 1 {
		q := tokenQueries[0].(*query.DisjunctionQuery)
		q.SetBoost(boost)
		return q
	}

	conjunction := bleve.NewConjunctionQuery(tokenQueries...)
	conjunction.SetBoost(boost)
	return conjunction
}

// Replace rebuilds the index from docs. The old generation stays searchable until the swap.
func (ft *FullText) Replace(ctx context.Context, docs []Document) error {
	next, err := bleve.NewMemOnly(buildFullTextMapping())
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	batch := next.NewBatch()
	for i, doc := range docs {
		if i%abortStride == 0 && ctx.Err() != nil {
			_ = next.Close()
			return ctx.Err()
		}
		if err := batch.Index(doc.ID, doc); err != nil {
			_ = next.Close()
			return fmt.Errorf("failed to add document %s to batch: %w", doc.ID, err)
		}
	}
	if err := next.Batch(batch); err != nil {
		_ = next.Close()
		return fmt.Errorf("failed to index batch: %w", err)
	}

	ft.mu.Lock()
	prev := ft.index
	ft.index = next
	ft.mu.Unlock()

	return prev.Close()
}

// Search performs a full-text search across Title and Body
// Title matches are boosted 5x; all query words must be present in a field
func (ft *FullText) Search(ctx context.Context, q string, maxResults int) ([]FullTextMatch, error) {
	tokens := strings.Fields(strings.ToLower(q))
	if len(tokens) == 0 {
		return []FullTextMatch{}, nil
	}

	titleQuery := buildFieldQuery(tokens, "Title", 5.0)
	bodyQuery := buildFieldQuery(tokens, "Body", 1.0)
	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(titleQuery, bodyQuery), maxResults, 0, false)
	req.Highlight = bleve.NewHighlight()
	req.Fields = []string{"ID", "Title", "Body"}

	ft.mu.RLock()
	defer ft.mu.RUnlock()

	res, err := ft.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	matches := make([]FullTextMatch, 0, len(res.Hits))
	for _, hit := range res.Hits {
		title, _ := hit.Fields["Title"].(string)
		matches = append(matches, FullTextMatch{
			ID:      hit.ID,
			Title:   title,
			Score:   hit.Score,
			Snippet: extractSnippet(hit),
		})
	}
	return matches, nil
}

// Count returns the number of indexed documents
func (ft *FullText) Count() (uint64, error) {
	ft.mu.RLock()
	defer ft.mu.RUnlock()
	return ft.index.DocCount()
}

// Close closes the index
func (ft *FullText) Close() error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.index.Close()
}

// extractSnippet extracts a relevant snippet from search hit
func extractSnippet(hit *search.DocumentMatch) string {
	if fragments := hit.Fragments["Body"]; len(fragments) > 0 {
		if len(fragments) > 2 {
			fragments = fragments[:2]
		}
		// Bleve wraps highlights in <mark> tags
		return stripHTMLTags(strings.Join(fragments, " ... "))
	}

	if body, ok := hit.Fields["Body"].(string); ok {
		if r := []rune(body); len(r) > snippetLength {
			return string(r[:snippetLength]) + "..."
		}
		return body
	}
	return ""
}

// stripHTMLTags removes HTML tags from a string
func stripHTMLTags(s string) string {
	var result strings.Builder
	inTag := false
	for _, ch := range s {
		switch {
		case ch == '<':
			inTag = true
		case ch == '>':
			inTag = false
		case !inTag:
			result.WriteRune(ch)
		}
	}
	return result.String()
}
