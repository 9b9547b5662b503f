// Package retrieval embeds document chunks, stores the vectors and serves
// similarity search over them.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hellofriends/hellofriends/internal/ingest"
)

// ContextChunk is a retrieved document fragment with its similarity score.
type ContextChunk struct {
	ID      string
	Source  string
	Index   int
	Content string
	Score   float32
}

// Info describes the current state of the index.
type Info struct {
	ChunkCount int
	Backend    string
}

// Retriever combines an Embedder and a VectorStore into the document search
// facility. Search runs concurrently; Index, Rebuild and Clear take the
// write lock so readers never observe a half-built index.
type Retriever struct {
	embedder Embedder
	store    VectorStore
	logger   *slog.Logger

	mu sync.RWMutex
}

// NewRetriever creates a Retriever backed by the given Embedder and VectorStore.
func NewRetriever(embedder Embedder, store VectorStore, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, store: store, logger: logger}
}

// Index embeds the chunks and adds them to the store. Returns the number of
// records written. Chunks from a source already present are replaced so
// re-ingesting a document never duplicates it.
func (r *Retriever) Index(ctx context.Context, chunks []ingest.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	records, err := r.embed(ctx, chunks)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, source := range sources(chunks) {
		removed, err := r.store.DeleteBySource(source)
		if err != nil {
			return 0, err
		}
		if removed > 0 {
			r.logger.Info("replacing indexed document", "source", source, "removed", removed)
		}
	}

	if err := r.store.Insert(records); err != nil {
		return 0, fmt.Errorf("storing vectors: %w", err)
	}
	r.logger.Info("documents indexed", "chunks", len(records), "backend", r.embedder.Name())
	return len(records), nil
}

// Rebuild replaces the whole index with the given chunks. Embeddings are
// computed before anything is deleted, so a failed rebuild leaves the
// existing index untouched.
func (r *Retriever) Rebuild(ctx context.Context, chunks []ingest.Chunk) (int, error) {
	records, err := r.embed(ctx, chunks)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Clear(); err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	if err := r.store.Insert(records); err != nil {
		return 0, fmt.Errorf("storing vectors: %w", err)
	}
	r.logger.Info("index rebuilt", "chunks", len(records), "backend", r.embedder.Name())
	return len(records), nil
}

// Search embeds the query and returns the top-K most similar chunks. When
// the store reports corruption the index is cleared so the next rebuild
// starts from a clean table; the failed query returns empty results rather
// than an error.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]ContextChunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	r.mu.RLock()
	scored, err := r.store.Search(vec, topK)
	r.mu.RUnlock()

	if errors.Is(err, ErrCorrupt) {
		r.logger.Error("vector store corrupt, clearing index", "error", err)
		r.mu.Lock()
		clearErr := r.store.Clear()
		r.mu.Unlock()
		if clearErr != nil {
			return nil, fmt.Errorf("clearing corrupt index: %w", clearErr)
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	chunks := make([]ContextChunk, len(scored))
	for i, s := range scored {
		chunks[i] = ContextChunk{
			ID:      s.ID,
			Source:  s.Source,
			Index:   s.ChunkIndex,
			Content: s.Content,
			Score:   s.Score,
		}
	}
	return chunks, nil
}

// Clear removes every record from the index.
func (r *Retriever) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Clear()
}

// Info reports the chunk count and embedding backend.
func (r *Retriever) Info() (Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count, err := r.store.Count()
	if err != nil {
		return Info{}, err
	}
	return Info{ChunkCount: count, Backend: r.embedder.Name()}, nil
}

// embed turns chunks into store records with fresh IDs.
func (r *Retriever) embed(ctx context.Context, chunks []ingest.Chunk) ([]Record, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vecs, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}

	records := make([]Record, len(chunks))
	for i, c := range chunks {
		records[i] = Record{
			ID:         uuid.NewString(),
			Source:     c.Source,
			ChunkIndex: c.Index,
			Content:    c.Content,
			Embedding:  vecs[i],
		}
	}
	return records, nil
}

// sources returns the distinct chunk sources in first-seen order.
func sources(chunks []ingest.Chunk) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range chunks {
		if !seen[c.Source] {
			seen[c.Source] = true
			out = append(out, c.Source)
		}
	}
	return out
}
