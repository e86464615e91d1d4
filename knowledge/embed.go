package knowledge

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultDims = 512

// HashingEmbedder produces deterministic term-frequency vectors by hashing
// tokens into a fixed number of dimensions. It needs no model download or
// network access, which keeps the agent self-contained; swap in a real
// embedding client via the Embedder interface for production-quality recall.
type HashingEmbedder struct {
	dims int
}

func NewHashingEmbedder(dims int) *HashingEmbedder {
	if dims <= 0 {
		dims = defaultDims
	}
	return &HashingEmbedder{dims: dims}
}

// Embed tokenizes the text, hashes each token and token bigram into a
// bucket, and L2-normalizes the resulting counts.
func (e *HashingEmbedder) Embed(text string) []float64 {
	vec := make([]float64, e.dims)
	tokens := tokenize(text)
	for i, tok := range tokens {
		vec[e.bucket(tok)]++
		if i+1 < len(tokens) {
			vec[e.bucket(tok+" "+tokens[i+1])] += 0.5
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

func (e *HashingEmbedder) bucket(token string) int {
	h := fnv.New32a()
	h.Write([]byte(token))
	return int(h.Sum32() % uint32(e.dims))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
