package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hellofriends/hellofriends/internal/llm"
)

func TestLocalEmbedderDeterministic(t *testing.T) {
	e := NewLocalEmbedder()

	a, err := e.Embed(context.Background(), "my employer keeps my passport")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := e.Embed(context.Background(), "my employer keeps my passport")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if len(a) != localDimensions {
		t.Fatalf("dim = %d, want %d", len(a), localDimensions)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embeddings differ at %d: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestLocalEmbedderNormalized(t *testing.T) {
	e := NewLocalEmbedder()

	vec, err := e.Embed(context.Background(), "salary payment rules for workers")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	var sumSq float64
	for _, f := range vec {
		sumSq += float64(f) * float64(f)
	}
	if math.Abs(math.Sqrt(sumSq)-1) > 1e-5 {
		t.Errorf("norm = %f, want 1", math.Sqrt(sumSq))
	}
}

func TestLocalEmbedderSimilarTextsScoreHigher(t *testing.T) {
	e := NewLocalEmbedder()
	ctx := context.Background()

	query, _ := e.Embed(ctx, "employer did not pay my salary")
	related, _ := e.Embed(ctx, "your employer must pay salary on time")
	unrelated, _ := e.Embed(ctx, "the weather in june is rainy")

	qNorm := norm(query)
	if dotProduct(query, related, qNorm) <= dotProduct(query, unrelated, qNorm) {
		t.Error("related text did not score above unrelated text")
	}
}

func TestLocalEmbedderMatchesWordForms(t *testing.T) {
	e := NewLocalEmbedder()
	ctx := context.Background()

	query, _ := e.Embed(ctx, "passport confiscation")
	target, _ := e.Embed(ctx, "Employers must not withhold passports")
	unrelated, _ := e.Embed(ctx, "the weather in june is rainy")

	qNorm := norm(query)
	targetScore := dotProduct(query, target, qNorm)
	if targetScore <= 0 {
		t.Errorf("passport/passports score = %f, want > 0", targetScore)
	}
	if targetScore <= dotProduct(query, unrelated, qNorm) {
		t.Error("inflected match did not score above unrelated text")
	}
}

func TestLocalEmbedderEmptyText(t *testing.T) {
	e := NewLocalEmbedder()

	vec, err := e.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for i, f := range vec {
		if f != 0 {
			t.Fatalf("vec[%d] = %f, want all zeros", i, f)
		}
	}
}

func TestLocalEmbedderBatch(t *testing.T) {
	e := NewLocalEmbedder()

	vecs, err := e.EmbedBatch(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}

	if vecs, err := e.EmbedBatch(context.Background(), nil); err != nil || vecs != nil {
		t.Errorf("EmbedBatch(nil) = %v, %v, want nil, nil", vecs, err)
	}
}

func TestAPIEmbedderBatching(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req llm.EmbeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}

		var parts []string
		for i := range req.Input {
			parts = append(parts, fmt.Sprintf(`{"index":%d,"embedding":[%d]}`, i, len(req.Input[i])))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"model":%q,"data":[%s]}`, req.Model, strings.Join(parts, ","))
	}))
	defer srv.Close()

	client := llm.NewClientWithBaseURL("test-key", srv.URL)
	e := NewAPIEmbedder(client, "text-embedding-3-small")

	// 100 texts exceed one API batch; expect two calls and order preserved.
	texts := make([]string, 100)
	for i := range texts {
		texts[i] = strings.Repeat("x", i+1)
	}

	vecs, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}

	if len(vecs) != 100 {
		t.Fatalf("got %d vectors, want 100", len(vecs))
	}
	for i, v := range vecs {
		if len(v) != 1 || v[0] != float32(i+1) {
			t.Fatalf("vecs[%d] = %v, want [%d]", i, v, i+1)
		}
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("API calls = %d, want 2", got)
	}
}

func TestAPIEmbedderName(t *testing.T) {
	e := NewAPIEmbedder(llm.NewClient("k"), "text-embedding-3-small")
	if got := e.Name(); got != "api:text-embedding-3-small" {
		t.Errorf("Name = %q", got)
	}
}
