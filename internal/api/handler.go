// Package api exposes the assistant over HTTP and MCP. The chat surface is
// open; admin routes sit behind bearer auth when a token is configured.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hellofriends/hellofriends/internal/assistant"
	"github.com/hellofriends/hellofriends/internal/ingest"
	"github.com/hellofriends/hellofriends/internal/kb"
	"github.com/hellofriends/hellofriends/internal/retrieval"
	"github.com/hellofriends/hellofriends/internal/session"
	"github.com/hellofriends/hellofriends/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Resolver answers user queries. Implemented by assistant.Assistant.
type Resolver interface {
	Resolve(ctx context.Context, query string) assistant.Response
}

// Indexer manages the document index. Implemented by retrieval.Retriever.
type Indexer interface {
	Index(ctx context.Context, chunks []ingest.Chunk) (int, error)
	Rebuild(ctx context.Context, chunks []ingest.Chunk) (int, error)
	Info() (retrieval.Info, error)
}

// Deps holds everything the HTTP surface needs.
type Deps struct {
	Assistant Resolver
	Sessions  *session.Manager
	Store     *storage.Store
	Indexer   Indexer
	Processor *ingest.Processor
	KB        *kb.Store
	UploadDir string
	Token     string // empty disables admin auth (dev mode)
	Logger    *slog.Logger
}

// NewHandler builds the chi router for the whole HTTP surface.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/chat", handleChat(deps))
	r.Get("/sessions/{id}/history", handleSessionHistory(deps))
	r.Delete("/sessions/{id}", handleSessionDelete(deps))

	r.Group(func(admin chi.Router) {
		if deps.Token != "" {
			admin.Use(BearerAuth(deps.Token))
		}
		admin.Post("/documents/process", handleDocumentsProcess(deps))
		admin.Post("/documents/rebuild", handleDocumentsRebuild(deps))
		admin.Get("/documents", handleDocumentsList(deps))
		admin.Get("/index/info", handleIndexInfo(deps))
		admin.Post("/kb/reload", handleKBReload(deps))
		admin.Get("/interactions", handleListInteractions(deps))
		admin.Get("/interactions/{id}", handleGetInteraction(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type ChatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

type ChatResponse struct {
	SessionID string   `json:"session_id"`
	Answer    string   `json:"answer"`
	Method    string   `json:"method"`
	Sources   []string `json:"sources,omitempty"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		sessionID, history := deps.Sessions.Open(req.SessionID)
		history.Append(session.Turn{Role: session.RoleUser, Text: req.Query})

		resp := resolveSafe(r.Context(), deps, req.Query)

		history.Append(session.Turn{
			Role:    session.RoleAssistant,
			Text:    resp.Text,
			Method:  resp.Method,
			Sources: resp.Sources,
		})

		saveInteraction(deps, req.Query, resp)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ChatResponse{
			SessionID: sessionID,
			Answer:    resp.Text,
			Method:    resp.Method,
			Sources:   resp.Sources,
		})
	}
}

// resolveSafe guards the pipeline: a chat client always gets a readable
// answer with contact numbers, never a bare 500.
func resolveSafe(ctx context.Context, deps Deps, query string) (resp assistant.Response) {
	defer func() {
		if r := recover(); r != nil {
			deps.Logger.Error("panic while resolving query", "panic", r)
			resp = assistant.Response{
				Text:   assistant.FormatError("an unexpected internal error occurred"),
				Method: assistant.MethodFallback,
			}
		}
	}()
	return deps.Assistant.Resolve(ctx, query)
}

// saveInteraction appends to the audit log. The answer was already composed,
// so a logging failure is reported but never surfaces to the client.
func saveInteraction(deps Deps, query string, resp assistant.Response) {
	if deps.Store == nil {
		return
	}

	sources := "[]"
	if len(resp.Sources) > 0 {
		if b, err := json.Marshal(resp.Sources); err == nil {
			sources = string(b)
		}
	}

	err := deps.Store.SaveInteraction(storage.Interaction{
		ID:        uuid.NewString(),
		UserQuery: query,
		Answer:    resp.Text,
		Method:    resp.Method,
		Sources:   sources,
	})
	if err != nil {
		deps.Logger.Error("saving interaction", "error", err)
	}
}

func handleSessionHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		history, ok := deps.Sessions.Get(id)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"session_id": id,
			"turns":      history.Turns(),
		})
	}
}

func handleSessionDelete(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Sessions.Drop(chi.URLParam(r, "id"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

// FileReport mirrors an ingest.FileResult with a JSON-friendly error field.
type FileReport struct {
	Path   string `json:"path"`
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`
}

type ProcessResponse struct {
	Files   []FileReport `json:"files"`
	Indexed int          `json:"indexed"`
}

func handleDocumentsProcess(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		processDocuments(w, r, deps, deps.Indexer.Index)
	}
}

func handleDocumentsRebuild(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		processDocuments(w, r, deps, deps.Indexer.Rebuild)
	}
}

func processDocuments(w http.ResponseWriter, r *http.Request, deps Deps, index func(context.Context, []ingest.Chunk) (int, error)) {
	report, err := deps.Processor.ProcessDir(deps.UploadDir)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "processing documents: %v", err)
		return
	}

	indexed, err := index(r.Context(), report.Chunks)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "indexing documents: %v", err)
		return
	}

	resp := ProcessResponse{Files: []FileReport{}, Indexed: indexed}
	for _, f := range report.Files {
		fr := FileReport{Path: f.Path, Chunks: f.Chunks}
		if f.Err != nil {
			fr.Error = f.Err.Error()
		}
		resp.Files = append(resp.Files, fr)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type DocumentInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

func handleDocumentsList(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := os.ReadDir(deps.UploadDir)
		if err != nil && !os.IsNotExist(err) {
			httpError(w, http.StatusInternalServerError, "api_error", "reading upload directory: %v", err)
			return
		}

		docs := []DocumentInfo{}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			docs = append(docs, DocumentInfo{Name: e.Name(), Size: info.Size(), Modified: info.ModTime()})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(docs)
	}
}

func handleIndexInfo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := deps.Indexer.Info()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading index info: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"chunks":  info.ChunkCount,
			"backend": info.Backend,
		})
	}
}

func handleKBReload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		book := deps.KB.Reload()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"entries": len(book.Rights)})
	}
}

func handleListInteractions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		interactions, err := deps.Store.GetRecentInteractions(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing interactions: %v", err)
			return
		}
		if interactions == nil {
			interactions = []storage.Interaction{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(interactions)
	}
}

func handleGetInteraction(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		interaction, err := deps.Store.GetInteraction(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "interaction not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "getting interaction: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(interaction)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
