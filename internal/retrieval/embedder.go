package retrieval

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hellofriends/hellofriends/internal/llm"
)

// Embedder turns text into vectors. Implementations must be deterministic
// for identical input within a single index lifetime; mixing vectors from
// different backends in one index produces meaningless similarity scores.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Name identifies the backend for status reporting.
	Name() string
}

const (
	// apiBatchSize caps how many texts go into one embeddings API call.
	apiBatchSize = 64
	// apiConcurrency bounds concurrent API calls during batch embedding.
	apiConcurrency = 4
)

// APIEmbedder generates embeddings through an OpenAI-compatible API.
type APIEmbedder struct {
	client *llm.Client
	model  string
}

// NewAPIEmbedder creates an APIEmbedder using the given client and model.
func NewAPIEmbedder(client *llm.Client, model string) *APIEmbedder {
	return &APIEmbedder{client: client, model: model}
}

func (e *APIEmbedder) Name() string { return "api:" + e.model }

// Embed returns the embedding vector for a single text.
func (e *APIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.client.Embed(ctx, e.model, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return vecs[0], nil
}

// EmbedBatch returns embedding vectors for multiple texts. Texts are grouped
// into API-sized batches embedded concurrently. Returns nil (not error) for
// empty input.
func (e *APIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(apiConcurrency)

	for start := 0; start < len(texts); start += apiBatchSize {
		end := min(start+apiBatchSize, len(texts))
		start, end := start, end
		g.Go(func() error {
			vecs, err := e.client.Embed(gCtx, e.model, texts[start:end])
			if err != nil {
				return fmt.Errorf("embedding batch %d-%d: %w", start, end, err)
			}
			copy(results[start:], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// localDimensions is the vector size of the feature-hashing embedder.
const localDimensions = 256

// Character n-gram sizes hashed per token.
const (
	minGram = 3
	maxGram = 5
)

// LocalEmbedder is an in-process fallback used when no API credential is
// configured. It hashes each lowercased token plus its character n-grams
// into a fixed-size vector (the hashing trick) and L2-normalizes the
// result. The n-grams make morphological variants share most of their
// features, so "passport" still matches a chunk saying "passports".
// Quality is far below a model embedding but it is deterministic,
// dependency-free and keeps document search functional offline.
type LocalEmbedder struct{}

// NewLocalEmbedder returns a LocalEmbedder.
func NewLocalEmbedder() *LocalEmbedder {
	return &LocalEmbedder{}
}

func (e *LocalEmbedder) Name() string { return "local" }

// Embed returns the hashed feature vector for the text.
func (e *LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, localDimensions)
	for _, word := range tokenize(text) {
		addFeature(vec, word)
		for n := minGram; n <= maxGram && n < len(word); n++ {
			for i := 0; i+n <= len(word); i++ {
				addFeature(vec, word[i:i+n])
			}
		}
	}

	var sumSq float64
	for _, f := range vec {
		sumSq += float64(f) * float64(f)
	}
	if sumSq == 0 {
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(sumSq))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

// EmbedBatch embeds each text in order.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}
	return results, nil
}

// addFeature hashes one feature into its vector slot.
func addFeature(vec []float32, feature string) {
	h := fnv.New32a()
	h.Write([]byte(feature))
	sum := h.Sum32()
	idx := sum % localDimensions
	// The high bit picks the sign so colliding features can cancel
	// instead of always accumulating.
	if sum&0x80000000 != 0 {
		vec[idx]--
	} else {
		vec[idx]++
	}
}

// tokenize lowercases the text and splits it into alphanumeric word runs.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}
