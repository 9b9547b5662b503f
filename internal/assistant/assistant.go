// Package assistant orchestrates the query resolution pipeline: emergency
// short-circuit, greeting handling, document retrieval, model generation and
// the knowledge base fallback.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hellofriends/hellofriends/internal/classify"
	"github.com/hellofriends/hellofriends/internal/generator"
	"github.com/hellofriends/hellofriends/internal/kb"
	"github.com/hellofriends/hellofriends/internal/retrieval"
)

// Resolution methods reported on a Response.
const (
	MethodEmergency = "emergency"
	MethodGreeting  = "greeting"
	MethodRAG       = "rag"
	MethodFallback  = "fallback"
)

const (
	// defaultTopK is how many chunks retrieval contributes to generation.
	defaultTopK = 3
	// maxSources caps the source citations appended to a RAG answer.
	maxSources = 2
	// maxSearchResults caps keyword-search hits used in the KB fallback.
	maxSearchResults = 3
	// maxGenericEntries is how many leading KB entries serve as generic
	// guidance when nothing matches.
	maxGenericEntries = 2
	// snippetLimit bounds the raw context echoed when no model is
	// configured.
	snippetLimit = 500
)

const (
	ragBanner     = "🤖 **RAG Response** (Based on uploaded documents)\n\n"
	generalBanner = "⚠️ **General Response**\n\n"
)

// Searcher is the retrieval dependency of the pipeline.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]retrieval.ContextChunk, error)
}

// Generating is the answer generation dependency of the pipeline.
type Generating interface {
	Available() bool
	Generate(ctx context.Context, message string, hints generator.Hints) generator.Reply
}

// Response is a resolved answer. Sources lists the cited document names,
// present only on retrieval-augmented answers.
type Response struct {
	Text    string
	Method  string
	Sources []string
}

// Assistant resolves queries. Construct once at process start and share
// across sessions; all dependencies are read-mostly or internally locked.
type Assistant struct {
	classifier *classify.Classifier
	kb         *kb.Store
	retriever  Searcher
	generator  Generating
	logger     *slog.Logger
	topK       int
}

// New creates an Assistant over the given collaborators. topK is how many
// chunks retrieval contributes per query; zero or negative selects the
// default of 3.
func New(classifier *classify.Classifier, store *kb.Store, retriever Searcher, gen Generating, topK int, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Assistant{
		classifier: classifier,
		kb:         store,
		retriever:  retriever,
		generator:  gen,
		logger:     logger,
		topK:       topK,
	}
}

// Resolve answers a single query. The emergency check always runs first and
// never touches the network; retrieval or generation trouble degrades to the
// knowledge base fallback rather than surfacing an error.
func (a *Assistant) Resolve(ctx context.Context, query string) Response {
	a.logger.Info("resolving query", "query", query)

	if a.classifier.IsEmergency(query) {
		a.logger.Info("emergency detected", "query", query)
		return Response{Text: emergencyResponse, Method: MethodEmergency}
	}

	if a.classifier.IsGreeting(query) {
		a.logger.Info("greeting detected, skipping retrieval")
		reply := a.generator.Generate(ctx, query, generator.Hints{KBCount: a.kb.Count()})
		return Response{Text: reply.Text, Method: MethodGreeting}
	}

	chunks, err := a.retriever.Search(ctx, query, a.topK)
	if err != nil {
		a.logger.Error("retrieval failed, using knowledge base fallback", "error", err)
		return a.kbFallback(query)
	}
	if len(chunks) == 0 {
		a.logger.Info("no relevant documents, using knowledge base fallback")
		return a.kbFallback(query)
	}

	return a.composeRAG(ctx, query, chunks)
}

// composeRAG answers from retrieved context. With a live model the reply is
// the generation output; when the model is unconfigured or fails the raw
// context snippet stands in. Either way the answer carries the RAG banner
// and up to two source citations, since its content came from the documents.
func (a *Assistant) composeRAG(ctx context.Context, query string, chunks []retrieval.ContextChunk) Response {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	contextText := strings.Join(texts, "\n\n")

	var body string
	if a.generator.Available() {
		reply := a.generator.Generate(ctx, query, generator.Hints{
			RetrievedContext: contextText,
			KBCount:          a.kb.Count(),
		})
		if reply.Method == generator.MethodGenerated {
			body = reply.Text
		} else {
			// Model call failed; the retrieved text is still the best
			// available answer.
			body = contextSnippet(contextText)
		}
	} else {
		body = contextSnippet(contextText)
	}

	sources := sourceNames(chunks)
	text := ragBanner + body + formatSources(sources)

	a.logger.Info("retrieval-augmented answer composed", "chunks", len(chunks), "sources", sources)
	return Response{Text: text, Method: MethodRAG, Sources: sources}
}

// kbFallback builds the structured knowledge base answer: entries matching
// the query's categories, else keyword search, else leading entries as
// generic guidance.
func (a *Assistant) kbFallback(query string) Response {
	var entries []kb.Entry
	seen := make(map[string]bool)
	for _, category := range a.classifier.Categorize(query) {
		for _, e := range a.kb.ByCategory(category) {
			if !seen[e.ID] {
				seen[e.ID] = true
				entries = append(entries, e)
			}
		}
	}

	if len(entries) == 0 {
		results := a.kb.Search(query)
		if len(results) > maxSearchResults {
			results = results[:maxSearchResults]
		}
		entries = results
	}

	if len(entries) == 0 {
		all := a.kb.All()
		if len(all) > maxGenericEntries {
			all = all[:maxGenericEntries]
		}
		entries = all
	}

	a.logger.Info("knowledge base fallback answer composed", "entries", len(entries))
	return Response{Text: generalBanner + formatEntries(entries), Method: MethodFallback}
}

// contextSnippet truncates joined chunk text for the no-model answer.
func contextSnippet(contextText string) string {
	if len(contextText) > snippetLimit {
		contextText = contextText[:snippetLimit] + "..."
	}
	return "Based on the available information:\n\n" + contextText
}

// sourceNames returns the distinct source documents in rank order, capped
// at maxSources.
func sourceNames(chunks []retrieval.ContextChunk) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range chunks {
		name := c.Source
		if name == "" {
			name = "Document"
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
		if len(out) == maxSources {
			break
		}
	}
	return out
}

func formatSources(sources []string) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n---\n**📚 Sources:**\n")
	for i, s := range sources {
		fmt.Fprintf(&b, "%d. 📄 %s\n", i+1, s)
	}
	return b.String()
}
