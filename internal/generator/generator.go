// Package generator produces natural-language answers through a hosted
// language model, with a deterministic local fallback when the model is
// unconfigured or fails.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hellofriends/hellofriends/internal/kb"
	"github.com/hellofriends/hellofriends/internal/llm"
)

// Generation methods reported on a Reply.
const (
	MethodGenerated = "generated"
	MethodFallback  = "fallback"
)

// maxHintEntries caps how many knowledge base entries are quoted in the
// system prompt.
const maxHintEntries = 3

// Hints is optional context attached to a generation request.
type Hints struct {
	// RetrievedContext is concatenated document chunk text from retrieval.
	RetrievedContext string
	// Entries are knowledge base entries relevant to the query.
	Entries []kb.Entry
	// KBCount is the total number of knowledge base entries.
	KBCount int
}

// Reply is a generated answer plus how it was produced.
type Reply struct {
	Text   string
	Method string
}

// Generator wraps the model client. A nil client means no credential was
// configured; every request then takes the local fallback path. Model
// failures never propagate to callers: the last error is recorded for
// diagnostics and the fallback text is returned instead.
type Generator struct {
	client      *llm.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *slog.Logger

	mu      sync.Mutex
	lastErr string
}

// Status reports the generator's configuration and last model failure.
type Status struct {
	Available bool
	Model     string
	LastError string
}

// New creates a Generator. Pass a nil client to run in fallback-only mode.
func New(client *llm.Client, model string, maxTokens int, temperature float64, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}
}

// Available reports whether a model client was configured at startup. It
// does not probe connectivity.
func (g *Generator) Available() bool {
	return g.client != nil
}

// Generate produces an answer for the message. With a configured client it
// requests a completion conditioned on the hints; otherwise, or on any model
// failure, it returns the deterministic local fallback.
func (g *Generator) Generate(ctx context.Context, message string, hints Hints) Reply {
	if !g.Available() {
		return Reply{Text: fallbackResponse(message), Method: MethodFallback}
	}

	content, err := g.client.Chat(ctx, llm.ChatRequest{
		Model: g.model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt(hints)},
			{Role: "user", Content: message},
		},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		g.recordError(err)
		g.logger.Error("model call failed, using fallback", "error", err)
		return Reply{Text: fallbackResponse(message), Method: MethodFallback}
	}

	return Reply{Text: strings.TrimSpace(content), Method: MethodGenerated}
}

// Status returns the current generator status.
func (g *Generator) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{Available: g.client != nil, Model: g.model, LastError: g.lastErr}
}

func (g *Generator) recordError(err error) {
	g.mu.Lock()
	g.lastErr = err.Error()
	g.mu.Unlock()
}

// basePrompt is the fixed persona and guidelines block sent as the system
// instruction.
const basePrompt = `You are Hello Friends, a helpful assistant for migrant workers in Singapore.
You provide guidance on workers' rights and employment issues. You are friendly, empathetic, and knowledgeable about Singapore's labor laws.

Key guidelines:
- Always be supportive and understanding
- Provide practical, actionable advice
- Include relevant contact information when appropriate
- If unsure about legal matters, recommend consulting MOM or qualified professionals
- Keep responses concise but comprehensive
- Use a warm, encouraging tone

Important contacts to mention when relevant:
- MOM Hotline: 6438 5122
- HOME: 6341 5535
- Police Emergency: 999
- Fire/Medical Emergency: 995

Remember: This is guidance only, not legal advice.`

// systemPrompt appends the knowledge base size, retrieved document context
// and a few relevant entries to the persona block.
func systemPrompt(h Hints) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if h.KBCount > 0 {
		fmt.Fprintf(&b, "\n\nYou have access to a knowledge base with %d rights entries that you can reference for specific information.", h.KBCount)
	}

	if h.RetrievedContext != "" {
		b.WriteString("\n\nRelevant information from uploaded documents:\n")
		b.WriteString(h.RetrievedContext)
	}

	if len(h.Entries) > 0 {
		b.WriteString("\n\nRelevant rights entries:")
		for i, e := range h.Entries {
			if i == maxHintEntries {
				break
			}
			fmt.Fprintf(&b, "\n- %s: %s", e.Title, e.Summary)
		}
	}

	return b.String()
}
