package retrieval

import (
	"errors"
	"time"
)

// ErrCorrupt wraps storage-level decode failures that indicate the vector
// table holds damaged data. Callers may recover by clearing and rebuilding
// the index.
var ErrCorrupt = errors.New("vector store corrupt")

// VectorStore is the interface for embedding storage and similarity search
// backends. The default implementation uses SQLite with brute-force cosine
// similarity, which is comfortable for knowledge bases of a few thousand
// chunks.
type VectorStore interface {
	// Insert adds records to the store.
	Insert(records []Record) error

	// Search returns the top-K records most similar to the query vector,
	// ordered by descending score.
	Search(vector []float32, topK int) ([]ScoredRecord, error)

	// DeleteBySource removes every record ingested from the named source
	// document. Returns the number of records removed.
	DeleteBySource(source string) (int, error)

	// Clear removes all records.
	Clear() error

	// Count returns the number of stored records.
	Count() (int, error)
}

// Record is a stored document chunk with its embedding.
type Record struct {
	ID         string
	Source     string
	ChunkIndex int
	Content    string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
