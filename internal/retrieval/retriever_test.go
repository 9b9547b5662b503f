package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/hellofriends/hellofriends/internal/ingest"
)

// mockVectorStore implements VectorStore for testing.
type mockVectorStore struct {
	insertFn func(records []Record) error
	searchFn func(vector []float32, topK int) ([]ScoredRecord, error)
	deleteFn func(source string) (int, error)
	clearFn  func() error
	countFn  func() (int, error)
}

func (m *mockVectorStore) Insert(records []Record) error {
	if m.insertFn != nil {
		return m.insertFn(records)
	}
	return nil
}
func (m *mockVectorStore) Search(vector []float32, topK int) ([]ScoredRecord, error) {
	return m.searchFn(vector, topK)
}
func (m *mockVectorStore) DeleteBySource(source string) (int, error) {
	if m.deleteFn != nil {
		return m.deleteFn(source)
	}
	return 0, nil
}
func (m *mockVectorStore) Clear() error {
	if m.clearFn != nil {
		return m.clearFn()
	}
	return nil
}
func (m *mockVectorStore) Count() (int, error) {
	if m.countFn != nil {
		return m.countFn()
	}
	return 0, nil
}

func TestSearchReturnsChunks(t *testing.T) {
	store := &mockVectorStore{
		searchFn: func(_ []float32, topK int) ([]ScoredRecord, error) {
			if topK != 3 {
				t.Errorf("topK = %d, want 3", topK)
			}
			return []ScoredRecord{
				{Record: Record{ID: "r1", Source: "guide.pdf", ChunkIndex: 2, Content: "salary rules"}, Score: 0.9},
			}, nil
		},
	}

	r := NewRetriever(NewLocalEmbedder(), store, slog.Default())
	chunks, err := r.Search(context.Background(), "unpaid salary", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	want := ContextChunk{ID: "r1", Source: "guide.pdf", Index: 2, Content: "salary rules", Score: 0.9}
	if chunks[0] != want {
		t.Errorf("chunk = %+v, want %+v", chunks[0], want)
	}
}

func TestSearchCorruptionClearsIndex(t *testing.T) {
	cleared := false
	store := &mockVectorStore{
		searchFn: func(_ []float32, _ int) ([]ScoredRecord, error) {
			return nil, fmt.Errorf("decoding embedding: %w", ErrCorrupt)
		},
		clearFn: func() error {
			cleared = true
			return nil
		},
	}

	r := NewRetriever(NewLocalEmbedder(), store, slog.Default())
	chunks, err := r.Search(context.Background(), "query", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if chunks != nil {
		t.Errorf("chunks = %v, want nil after corruption", chunks)
	}
	if !cleared {
		t.Error("corrupt store was not cleared")
	}
}

func TestSearchOtherErrorsPropagate(t *testing.T) {
	store := &mockVectorStore{
		searchFn: func(_ []float32, _ int) ([]ScoredRecord, error) {
			return nil, errors.New("disk on fire")
		},
		clearFn: func() error {
			t.Fatal("Clear must not run for non-corruption errors")
			return nil
		},
	}

	r := NewRetriever(NewLocalEmbedder(), store, slog.Default())
	if _, err := r.Search(context.Background(), "query", 3); err == nil {
		t.Fatal("expected error")
	}
}

func TestIndexReplacesSource(t *testing.T) {
	var deleted []string
	var inserted []Record
	store := &mockVectorStore{
		deleteFn: func(source string) (int, error) {
			deleted = append(deleted, source)
			return 1, nil
		},
		insertFn: func(records []Record) error {
			inserted = records
			return nil
		},
	}

	r := NewRetriever(NewLocalEmbedder(), store, slog.Default())
	chunks := []ingest.Chunk{
		{Source: "guide.pdf", Index: 0, Content: "first"},
		{Source: "guide.pdf", Index: 1, Content: "second"},
		{Source: "faq.txt", Index: 0, Content: "third"},
	}

	n, err := r.Index(context.Background(), chunks)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	if n != 3 {
		t.Errorf("indexed = %d, want 3", n)
	}
	if len(deleted) != 2 || deleted[0] != "guide.pdf" || deleted[1] != "faq.txt" {
		t.Errorf("deleted sources = %v, want [guide.pdf faq.txt]", deleted)
	}
	if len(inserted) != 3 {
		t.Fatalf("inserted %d records, want 3", len(inserted))
	}
	for i, rec := range inserted {
		if rec.ID == "" {
			t.Errorf("record %d has empty ID", i)
		}
		if rec.Content != chunks[i].Content || rec.Source != chunks[i].Source || rec.ChunkIndex != chunks[i].Index {
			t.Errorf("record %d = %+v does not match chunk %+v", i, rec, chunks[i])
		}
		if len(rec.Embedding) != localDimensions {
			t.Errorf("record %d embedding dim = %d, want %d", i, len(rec.Embedding), localDimensions)
		}
	}
}

func TestIndexEmpty(t *testing.T) {
	store := &mockVectorStore{
		insertFn: func(_ []Record) error {
			t.Fatal("Insert must not run for empty input")
			return nil
		},
	}

	r := NewRetriever(NewLocalEmbedder(), store, slog.Default())
	n, err := r.Index(context.Background(), nil)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if n != 0 {
		t.Errorf("indexed = %d, want 0", n)
	}
}

func TestRebuildKeepsIndexOnEmbedFailure(t *testing.T) {
	store := &mockVectorStore{
		clearFn: func() error {
			t.Fatal("Clear must not run when embedding fails")
			return nil
		},
	}

	r := NewRetriever(failingEmbedder{}, store, slog.Default())
	_, err := r.Rebuild(context.Background(), []ingest.Chunk{{Source: "a", Content: "x"}})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRebuildClearsThenInserts(t *testing.T) {
	var order []string
	store := &mockVectorStore{
		clearFn: func() error {
			order = append(order, "clear")
			return nil
		},
		insertFn: func(_ []Record) error {
			order = append(order, "insert")
			return nil
		},
	}

	r := NewRetriever(NewLocalEmbedder(), store, slog.Default())
	n, err := r.Rebuild(context.Background(), []ingest.Chunk{{Source: "a", Index: 0, Content: "x"}})
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	if n != 1 {
		t.Errorf("rebuilt = %d, want 1", n)
	}
	if len(order) != 2 || order[0] != "clear" || order[1] != "insert" {
		t.Errorf("order = %v, want [clear insert]", order)
	}
}

func TestInfo(t *testing.T) {
	store := &mockVectorStore{
		countFn: func() (int, error) { return 42, nil },
	}

	r := NewRetriever(NewLocalEmbedder(), store, slog.Default())
	info, err := r.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}

	if info.ChunkCount != 42 || info.Backend != "local" {
		t.Errorf("info = %+v, want 42/local", info)
	}
}

func TestIndexThenSearchFindsRelevantChunk(t *testing.T) {
	r := NewRetriever(NewLocalEmbedder(), NewSQLiteStore(openTestDB(t)), slog.Default())
	ctx := context.Background()

	// The relevant sentence sits late in the batch so ranking, not
	// insertion order, must surface it.
	chunks := []ingest.Chunk{
		{Source: "guide.pdf", Index: 0, Content: "Salary must be paid within seven days of the salary period."},
		{Source: "guide.pdf", Index: 1, Content: "One rest day per week is required for all workers."},
		{Source: "guide.pdf", Index: 2, Content: "Overtime is paid at one and a half times the basic rate."},
		{Source: "guide.pdf", Index: 3, Content: "Dormitories must meet space and hygiene standards."},
		{Source: "guide.pdf", Index: 4, Content: "Employers must not withhold passports"},
	}
	if _, err := r.Index(ctx, chunks); err != nil {
		t.Fatalf("Index: %v", err)
	}

	results, err := r.Search(ctx, "passport confiscation", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no results")
	}

	found := false
	for _, c := range results {
		if strings.Contains(c.Content, "withhold passports") {
			found = true
			if c.Score <= 0 {
				t.Errorf("passport chunk score = %f, want > 0", c.Score)
			}
		}
	}
	if !found {
		t.Errorf("passport sentence not in top-3: %+v", results)
	}
}

func TestRebuildEmptyClearsRealStore(t *testing.T) {
	r := NewRetriever(NewLocalEmbedder(), NewSQLiteStore(openTestDB(t)), slog.Default())
	ctx := context.Background()

	if _, err := r.Index(ctx, []ingest.Chunk{
		{Source: "guide.pdf", Index: 0, Content: "some indexed text"},
	}); err != nil {
		t.Fatalf("Index: %v", err)
	}

	n, err := r.Rebuild(ctx, nil)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if n != 0 {
		t.Errorf("rebuilt = %d, want 0", n)
	}

	info, err := r.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.ChunkCount != 0 {
		t.Errorf("chunk count after empty rebuild = %d, want 0", info.ChunkCount)
	}
}

// failingEmbedder always errors; used to verify all-or-nothing rebuilds.
type failingEmbedder struct{}

func (failingEmbedder) Name() string { return "failing" }
func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embed error")
}
func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embed error")
}
