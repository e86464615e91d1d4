// Package knowledge provides the retrieval backend for the support agent's
// knowledge-base lookups: an in-memory vector index searched by cosine
// similarity, with pluggable embeddings and a query-result cache.
package knowledge

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/careline/careline/errors"
)

// Document is one searchable unit of knowledge-base content.
type Document struct {
	Content  string `json:"content"`
	Category string `json:"category"`
	Type     string `json:"type"`
}

// SearchResult pairs a document with its similarity score in [0, 1].
type SearchResult struct {
	Document
	Score float64
}

// Embedder converts text into a fixed-length vector. Implementations must be
// deterministic for equal input.
type Embedder interface {
	Embed(text string) []float64
}

// Query describes one search against the index.
type Query struct {
	Text       string
	Categories []string
	K          int
	MinScore   float64
}

const defaultK = 3

// Index is an in-memory vector index over knowledge-base documents. Add is
// called at startup; Search is safe for concurrent use afterwards.
type Index struct {
	embedder Embedder

	mu   sync.RWMutex
	docs []indexedDoc

	cache *ristretto.Cache[string, []SearchResult]
}

type indexedDoc struct {
	doc Document
	vec []float64
}

// NewIndex creates an empty index using the given embedder, or the built-in
// term-hashing embedder when nil.
func NewIndex(embedder Embedder) (*Index, error) {
	if embedder == nil {
		embedder = NewHashingEmbedder(0)
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []SearchResult]{
		NumCounters: 10_000,
		MaxCost:     1 << 22,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create knowledge cache")
	}
	return &Index{embedder: embedder, cache: cache}, nil
}

// Add embeds and stores documents.
func (ix *Index) Add(docs ...Document) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, d := range docs {
		ix.docs = append(ix.docs, indexedDoc{doc: d, vec: ix.embedder.Embed(d.Content)})
	}
	ix.cache.Clear()
}

// Len reports the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Search returns the top-K documents ranked by cosine similarity, filtered
// by category and minimum score. Results are cached per query; a cache miss
// just recomputes.
func (ix *Index) Search(q Query) []SearchResult {
	if q.K <= 0 {
		q.K = defaultK
	}
	key := cacheKey(q)
	if cached, ok := ix.cache.Get(key); ok {
		return cached
	}

	queryVec := ix.embedder.Embed(q.Text)
	wanted := make(map[string]bool, len(q.Categories))
	for _, c := range q.Categories {
		wanted[strings.ToLower(strings.TrimSpace(c))] = true
	}

	ix.mu.RLock()
	results := make([]SearchResult, 0, len(ix.docs))
	for _, entry := range ix.docs {
		if len(wanted) > 0 && !wanted[strings.ToLower(entry.doc.Category)] {
			continue
		}
		score := cosine(queryVec, entry.vec)
		if score < q.MinScore {
			continue
		}
		results = append(results, SearchResult{Document: entry.doc, Score: score})
	}
	ix.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > q.K {
		results = results[:q.K]
	}

	ix.cache.Set(key, results, int64(len(results)+1))
	return results
}

func cacheKey(q Query) string {
	return fmt.Sprintf("%s|%s|%d|%.3f", strings.ToLower(q.Text), strings.ToLower(strings.Join(q.Categories, ",")), q.K, q.MinScore)
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
