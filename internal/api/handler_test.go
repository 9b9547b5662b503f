package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/hellofriends/hellofriends/internal/assistant"
	"github.com/hellofriends/hellofriends/internal/ingest"
	"github.com/hellofriends/hellofriends/internal/kb"
	"github.com/hellofriends/hellofriends/internal/retrieval"
	"github.com/hellofriends/hellofriends/internal/session"
	"github.com/hellofriends/hellofriends/internal/storage"
)

const testToken = "test-token-12345"

// --- mocks ---

type mockResolver struct {
	response assistant.Response
	lastQ    string
}

func (m *mockResolver) Resolve(_ context.Context, query string) assistant.Response {
	m.lastQ = query
	return m.response
}

type mockIndexer struct {
	indexed   int
	rebuilt   int
	info      retrieval.Info
	lastCount int
}

func (m *mockIndexer) Index(_ context.Context, chunks []ingest.Chunk) (int, error) {
	m.indexed++
	m.lastCount = len(chunks)
	return len(chunks), nil
}

func (m *mockIndexer) Rebuild(_ context.Context, chunks []ingest.Chunk) (int, error) {
	m.rebuilt++
	m.lastCount = len(chunks)
	return len(chunks), nil
}

func (m *mockIndexer) Info() (retrieval.Info, error) {
	return m.info, nil
}

// --- helpers ---

type testEnv struct {
	handler   http.Handler
	store     *storage.Store
	sessions  *session.Manager
	resolver  *mockResolver
	indexer   *mockIndexer
	uploadDir string
}

func setupHandler(t *testing.T, token string) *testEnv {
	t.Helper()

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	kbPath := filepath.Join(t.TempDir(), "rights.yaml")
	if err := os.WriteFile(kbPath, []byte("rights:\n  - id: p1\n    title: Unpaid Wages\n    categories: [payment]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	env := &testEnv{
		store:    store,
		sessions: session.NewManager(),
		resolver: &mockResolver{response: assistant.Response{
			Text:    "You should contact MOM.",
			Method:  assistant.MethodRAG,
			Sources: []string{"guide.pdf"},
		}},
		indexer:   &mockIndexer{info: retrieval.Info{ChunkCount: 7, Backend: "local"}},
		uploadDir: t.TempDir(),
	}
	env.handler = NewHandler(Deps{
		Assistant: env.resolver,
		Sessions:  env.sessions,
		Store:     store,
		Indexer:   env.indexer,
		Processor: ingest.NewProcessor(ingest.NewSplitter(0, 0), nil),
		KB:        kb.NewStore(kbPath),
		UploadDir: env.uploadDir,
		Token:     token,
	})
	return env
}

func doRequest(h http.Handler, method, url, body, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// --- tests ---

func TestHealth(t *testing.T) {
	env := setupHandler(t, "")

	rr := doRequest(env.handler, http.MethodGet, "/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestChatHappyPath(t *testing.T) {
	env := setupHandler(t, "")

	rr := doRequest(env.handler, http.MethodPost, "/chat", `{"query":"my salary is late"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rr.Code, rr.Body.String())
	}

	var resp ChatResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if _, err := uuid.Parse(resp.SessionID); err != nil {
		t.Errorf("session_id %q is not a UUID", resp.SessionID)
	}
	if resp.Answer != "You should contact MOM." || resp.Method != assistant.MethodRAG {
		t.Errorf("answer/method = %q/%q", resp.Answer, resp.Method)
	}
	if len(resp.Sources) != 1 || resp.Sources[0] != "guide.pdf" {
		t.Errorf("sources = %v", resp.Sources)
	}
	if env.resolver.lastQ != "my salary is late" {
		t.Errorf("resolver got query %q", env.resolver.lastQ)
	}
}

func TestChatRecordsSessionTurns(t *testing.T) {
	env := setupHandler(t, "")

	rr := doRequest(env.handler, http.MethodPost, "/chat", `{"query":"first"}`, "")
	var resp ChatResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)

	rr2 := doRequest(env.handler, http.MethodPost, "/chat", `{"query":"second","session_id":"`+resp.SessionID+`"}`, "")
	var resp2 ChatResponse
	json.Unmarshal(rr2.Body.Bytes(), &resp2)

	if resp2.SessionID != resp.SessionID {
		t.Errorf("session_id changed: %q -> %q", resp.SessionID, resp2.SessionID)
	}

	history, ok := env.sessions.Get(resp.SessionID)
	if !ok {
		t.Fatal("session not found")
	}
	turns := history.Turns()
	if len(turns) != 4 {
		t.Fatalf("len(turns) = %d, want 4 (two user/assistant pairs)", len(turns))
	}
	if turns[0].Role != session.RoleUser || turns[1].Role != session.RoleAssistant {
		t.Error("turn roles out of order")
	}
	if turns[1].Method != assistant.MethodRAG {
		t.Errorf("assistant turn method = %q", turns[1].Method)
	}
}

func TestChatValidation(t *testing.T) {
	env := setupHandler(t, "")

	if rr := doRequest(env.handler, http.MethodPost, "/chat", `{"query":"  "}`, ""); rr.Code != http.StatusBadRequest {
		t.Errorf("blank query: status = %d, want 400", rr.Code)
	}
	if rr := doRequest(env.handler, http.MethodPost, "/chat", `{not json`, ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad json: status = %d, want 400", rr.Code)
	}
}

func TestChatSavesInteraction(t *testing.T) {
	env := setupHandler(t, "")

	doRequest(env.handler, http.MethodPost, "/chat", `{"query":"my salary is late"}`, "")

	interactions, err := env.store.GetRecentInteractions(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(interactions) != 1 {
		t.Fatalf("len(interactions) = %d, want 1", len(interactions))
	}
	got := interactions[0]
	if got.UserQuery != "my salary is late" || got.Method != assistant.MethodRAG {
		t.Errorf("interaction = %+v", got)
	}
	if got.Sources != `["guide.pdf"]` {
		t.Errorf("sources = %q", got.Sources)
	}
}

func TestSessionHistoryEndpoint(t *testing.T) {
	env := setupHandler(t, "")

	rr := doRequest(env.handler, http.MethodPost, "/chat", `{"query":"first"}`, "")
	var resp ChatResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)

	hr := doRequest(env.handler, http.MethodGet, "/sessions/"+resp.SessionID+"/history", "", "")
	if hr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", hr.Code)
	}
	if !strings.Contains(hr.Body.String(), `"assistant"`) {
		t.Errorf("history body = %s", hr.Body.String())
	}

	if rr := doRequest(env.handler, http.MethodGet, "/sessions/"+uuid.NewString()+"/history", "", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown session: status = %d, want 404", rr.Code)
	}
}

func TestSessionDelete(t *testing.T) {
	env := setupHandler(t, "")

	rr := doRequest(env.handler, http.MethodPost, "/chat", `{"query":"first"}`, "")
	var resp ChatResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)

	dr := doRequest(env.handler, http.MethodDelete, "/sessions/"+resp.SessionID, "", "")
	if dr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", dr.Code)
	}
	if _, ok := env.sessions.Get(resp.SessionID); ok {
		t.Error("session still present after delete")
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	env := setupHandler(t, testToken)

	if rr := doRequest(env.handler, http.MethodGet, "/index/info", "", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rr.Code)
	}
	if rr := doRequest(env.handler, http.MethodGet, "/index/info", "", "wrong-token"); rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rr.Code)
	}
	if rr := doRequest(env.handler, http.MethodGet, "/index/info", "", testToken); rr.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", rr.Code)
	}
	// Chat stays open regardless of the admin token.
	if rr := doRequest(env.handler, http.MethodPost, "/chat", `{"query":"hi"}`, ""); rr.Code != http.StatusOK {
		t.Errorf("chat with admin token set: status = %d, want 200", rr.Code)
	}
}

func TestAdminRoutesOpenWithoutToken(t *testing.T) {
	env := setupHandler(t, "")

	if rr := doRequest(env.handler, http.MethodGet, "/index/info", "", ""); rr.Code != http.StatusOK {
		t.Errorf("dev mode: status = %d, want 200", rr.Code)
	}
}

func TestDocumentsProcessPartialFailure(t *testing.T) {
	env := setupHandler(t, "")

	if err := os.WriteFile(filepath.Join(env.uploadDir, "good.txt"), []byte("Salary must be paid within 7 days of the end of the salary period."), 0o644); err != nil {
		t.Fatal(err)
	}
	// Not a real PDF; extraction fails but the run continues.
	if err := os.WriteFile(filepath.Join(env.uploadDir, "bad.pdf"), []byte("not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}

	rr := doRequest(env.handler, http.MethodPost, "/documents/process", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rr.Code, rr.Body.String())
	}

	var resp ProcessResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Files) != 2 {
		t.Fatalf("len(files) = %d, want 2", len(resp.Files))
	}

	byName := map[string]FileReport{}
	for _, f := range resp.Files {
		byName[filepath.Base(f.Path)] = f
	}
	if byName["bad.pdf"].Error == "" {
		t.Error("bad.pdf should report an extraction error")
	}
	if byName["good.txt"].Error != "" || byName["good.txt"].Chunks == 0 {
		t.Errorf("good.txt report = %+v", byName["good.txt"])
	}
	if resp.Indexed == 0 || env.indexer.indexed != 1 {
		t.Errorf("indexed = %d, Index calls = %d", resp.Indexed, env.indexer.indexed)
	}
}

func TestDocumentsRebuild(t *testing.T) {
	env := setupHandler(t, "")

	if err := os.WriteFile(filepath.Join(env.uploadDir, "guide.txt"), []byte("Rest day rules."), 0o644); err != nil {
		t.Fatal(err)
	}

	rr := doRequest(env.handler, http.MethodPost, "/documents/rebuild", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if env.indexer.rebuilt != 1 {
		t.Errorf("Rebuild calls = %d, want 1", env.indexer.rebuilt)
	}
}

func TestDocumentsList(t *testing.T) {
	env := setupHandler(t, "")

	if err := os.WriteFile(filepath.Join(env.uploadDir, "guide.txt"), []byte("text"), 0o644); err != nil {
		t.Fatal(err)
	}

	rr := doRequest(env.handler, http.MethodGet, "/documents", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var docs []DocumentInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &docs); err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Name != "guide.txt" {
		t.Errorf("docs = %+v", docs)
	}
}

func TestIndexInfo(t *testing.T) {
	env := setupHandler(t, "")

	rr := doRequest(env.handler, http.MethodGet, "/index/info", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"chunks":7`) || !strings.Contains(rr.Body.String(), `"local"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestKBReload(t *testing.T) {
	env := setupHandler(t, "")

	rr := doRequest(env.handler, http.MethodPost, "/kb/reload", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"entries":1`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestGetInteraction(t *testing.T) {
	env := setupHandler(t, "")

	doRequest(env.handler, http.MethodPost, "/chat", `{"query":"my salary is late"}`, "")
	interactions, err := env.store.GetRecentInteractions(1)
	if err != nil || len(interactions) != 1 {
		t.Fatalf("seeding interaction: %v, %d rows", err, len(interactions))
	}

	rr := doRequest(env.handler, http.MethodGet, "/interactions/"+interactions[0].ID, "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "my salary is late") {
		t.Errorf("body = %s", rr.Body.String())
	}

	if rr := doRequest(env.handler, http.MethodGet, "/interactions/"+uuid.NewString(), "", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown interaction: status = %d, want 404", rr.Code)
	}
}

type panicResolver struct{}

func (panicResolver) Resolve(context.Context, string) assistant.Response {
	panic("boom")
}

func TestChatRecoversFromResolvePanic(t *testing.T) {
	h := NewHandler(Deps{
		Assistant: panicResolver{},
		Sessions:  session.NewManager(),
	})

	rr := doRequest(h, http.MethodPost, "/chat", `{"query":"hello"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp ChatResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Method != assistant.MethodFallback {
		t.Errorf("method = %q, want fallback", resp.Method)
	}
	// The error template keeps the support contacts in front of the user.
	if !strings.Contains(resp.Answer, "6438 5122") {
		t.Error("error answer missing support contact")
	}
}

func TestListInteractionsEmpty(t *testing.T) {
	env := setupHandler(t, "")

	rr := doRequest(env.handler, http.MethodGet, "/interactions", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("body = %q, want empty array", rr.Body.String())
	}
}
