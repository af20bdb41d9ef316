// Package reranker ranks candidate fixes by lexical overlap with a problem
// description. It is the local fallback when the AI backend cannot rank.
package reranker

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode"
)

// ErrNilContext is returned when a nil context is passed to Rerank.
var ErrNilContext = errors.New("context cannot be nil")

// Document is a candidate to rank.
type Document struct {
	ID      string
	Content string
	// Prior is a score from an earlier stage in [0,1], e.g. attribute similarity.
	Prior float32
}

// ScoredDocument is a Document with its overlap score.
type ScoredDocument struct {
	Document
	Overlap      float32
	OriginalRank int
}

// Reranker orders documents by relevance to a query.
type Reranker interface {
	// Rerank returns at most topK documents scoring at least the reranker's
	// threshold, best first. A topK of zero means no limit.
	Rerank(ctx context.Context, query string, docs []Document, topK int) ([]ScoredDocument, error)
}

// Lexical scores documents by the share of query terms they contain.
type Lexical struct {
	// MinOverlap drops documents below this share of matched query terms.
	MinOverlap float32
}

// NewLexical returns a Lexical reranker with the given threshold.
func NewLexical(minOverlap float64) *Lexical {
	return &Lexical{MinOverlap: float32(minOverlap)}
}

var _ Reranker = (*Lexical)(nil)

// Rerank combines overlap (70%) with the prior (30%) and keeps the original
// order on ties.
func (r *Lexical) Rerank(ctx context.Context, query string, docs []Document, topK int) ([]ScoredDocument, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	queryTerms := Terms(query)
	if len(queryTerms) == 0 || len(docs) == 0 {
		return []ScoredDocument{}, nil
	}

	type scored struct {
		doc      ScoredDocument
		combined float32
	}
	out := make([]scored, 0, len(docs))
	for i, doc := range docs {
		overlap := overlap(queryTerms, Terms(doc.Content))
		if overlap < r.MinOverlap || overlap == 0 {
			continue
		}
		out = append(out, scored{
			doc:      ScoredDocument{Document: doc, Overlap: overlap, OriginalRank: i},
			combined: 0.7*overlap + 0.3*doc.Prior,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].combined > out[j].combined
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}

	result := make([]ScoredDocument, len(out))
	for i := range out {
		result[i] = out[i].doc
	}
	return result, nil
}

// Terms lowercases text, splits on non-alphanumerics and drops stopwords and
// single characters. Each term appears once, in first-seen order.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

// overlap is the share of query terms present in the document.
func overlap(queryTerms, docTerms []string) float32 {
	set := make(map[string]struct{}, len(docTerms))
	for _, t := range docTerms {
		set[t] = struct{}{}
	}
	n := 0
	for _, t := range queryTerms {
		if _, ok := set[t]; ok {
			n++
		}
	}
	return float32(n) / float32(len(queryTerms))
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"it": true, "its": true, "this": true, "that": true, "of": true, "in": true,
	"on": true, "at": true, "to": true, "for": true, "with": true, "from": true,
	"my": true, "our": true, "we": true, "i": true, "me": true, "you": true,
	"not": true, "no": true, "does": true, "doesn": true, "do": true, "don": true,
	"has": true, "have": true, "had": true, "when": true, "after": true, "any": true,
	"some": true, "very": true, "just": true, "again": true, "all": true,
}
