package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hellofriends/hellofriends/internal/kb"
	"github.com/hellofriends/hellofriends/internal/retrieval"
)

// Searcher abstracts document search for the MCP layer. Implemented by
// retrieval.Retriever.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]retrieval.ContextChunk, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Assistant Resolver
	Retriever Searcher
	KB        *kb.Store
}

// NewMCPServer creates an MCP server exposing the assistant to agent clients:
// the full resolution pipeline as ask_rights, raw document search, the rights
// catalog and the knowledge base as a resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"hellofriends",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("Hello Friends: migrant worker rights assistant for Singapore. Ask questions about employment rights, search uploaded guidance documents, or browse the rights catalog."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_rights",
			mcp.WithDescription("Answer a question about migrant worker rights in Singapore using uploaded documents and the curated knowledge base."),
			mcp.WithString("query", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpAskRights(deps),
	)

	s.AddTool(
		mcp.NewTool("search_documents",
			mcp.WithDescription("Semantically search the uploaded guidance documents and return matching text chunks."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("list_rights",
			mcp.WithDescription("List the curated rights entries, optionally filtered by category (payment, passport, medical, rest, accommodation, employer, hours, contract)."),
			mcp.WithString("category", mcp.Description("Category to filter by")),
		),
		mcpListRights(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"kb://entries",
			"Rights Knowledge Base",
			mcp.WithResourceDescription("All curated rights entries as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceEntries(deps),
	)

	return s
}

func mcpAskRights(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		resp := deps.Assistant.Resolve(ctx, query)

		b, err := json.Marshal(map[string]any{
			"answer":  resp.Text,
			"method":  resp.Method,
			"sources": resp.Sources,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 20 {
			limit = 20
		}

		chunks, err := deps.Retriever.Search(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(chunks) == 0 {
			return mcpText("[]"), nil
		}

		type chunkResult struct {
			Source  string  `json:"source"`
			Index   int     `json:"index"`
			Content string  `json:"content"`
			Score   float32 `json:"score"`
		}

		results := make([]chunkResult, len(chunks))
		for i, c := range chunks {
			results[i] = chunkResult{
				Source:  c.Source,
				Index:   c.Index,
				Content: c.Content,
				Score:   c.Score,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListRights(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		category := req.GetString("category", "")

		var entries []kb.Entry
		if category == "" {
			entries = deps.KB.All()
		} else {
			entries = deps.KB.ByCategory(category)
		}

		type entrySummary struct {
			ID         string   `json:"id"`
			Title      string   `json:"title"`
			Categories []string `json:"categories"`
			Summary    string   `json:"summary"`
		}

		summaries := make([]entrySummary, len(entries))
		for i, e := range entries {
			summaries[i] = entrySummary{
				ID:         e.ID,
				Title:      e.Title,
				Categories: e.Categories,
				Summary:    e.Summary,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal entries: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceEntries(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.KB.All())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal entries: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
