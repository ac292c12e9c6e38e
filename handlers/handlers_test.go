package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"hoopsight/agent"
	"hoopsight/ai"
	"hoopsight/cache"
	"hoopsight/config"
	"hoopsight/models"
	"hoopsight/ratelimit"
	"hoopsight/session"
	"hoopsight/store"
)

const testAdminKey = "test-admin-key"

// scriptedLLM serves canned completions in order, one per request.
type scriptedLLM struct {
	mu      sync.Mutex
	replies []string
	calls   int
	server  *httptest.Server
}

func newScriptedLLM(t *testing.T, replies ...string) *scriptedLLM {
	t.Helper()
	s := &scriptedLLM{replies: replies}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.calls >= len(s.replies) {
			http.Error(w, `{"code":"InvalidParameter","message":"no scripted reply left"}`, http.StatusBadRequest)
			s.calls++
			return
		}
		reply := s.replies[s.calls]
		s.calls++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"output":{"choices":[{"message":{"role":"assistant","content":%s}}]}}`, strconv.Quote(reply))
	}))
	t.Cleanup(s.server.Close)
	return s
}

func newTestRouter(t *testing.T, llm *scriptedLLM, demoLimit int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, err := ai.New("test-key", "test-model", llm.server.URL, cache.New())
	if err != nil {
		t.Fatalf("failed to build AI service: %v", err)
	}

	st, err := store.New(config.StoreConfig{
		Driver:       "sqlite",
		DSN:          filepath.Join(t.TempDir(), "analytics.db"),
		QueryTimeout: 10 * time.Second,
		MaxRows:      200,
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	dir := t.TempDir()
	csv := "name,pts\nTatum,26.9\nJokic,29.7\n"
	if err := os.WriteFile(filepath.Join(dir, "players.csv"), []byte(csv), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	if _, err := st.SyncCSVDir(context.Background(), dir); err != nil {
		t.Fatalf("failed to sync fixture: %v", err)
	}

	sessions := session.NewStore(nil)
	limiter := ratelimit.New(demoLimit, time.Hour, nil)
	engine := agent.NewSQLEngine(svc, st, 3)
	orchestrator := agent.NewOrchestrator(svc, st, engine, sessions, 6)

	h := New(orchestrator, limiter, st, testAdminKey)

	r := gin.New()
	r.GET("/health", h.HealthHandler)
	api := r.Group("/api")
	api.Use(h.Identify())
	{
		api.POST("/chat", h.ChatHandler)
		api.GET("/usage", h.UsageHandler)
		api.GET("/schema", h.SchemaHandler)
	}
	return r
}

func doJSON(r *gin.Engine, method, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t, newScriptedLLM(t), 3)

	w := doJSON(r, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status field = %q", body["status"])
	}
}

func TestChatEndpoint(t *testing.T) {
	llm := newScriptedLLM(t, "CONVERSATIONAL", "Hello! Ask me about the stats.")
	r := newTestRouter(t, llm, 3)

	w := doJSON(r, http.MethodPost, "/api/chat", `{"message":"Hello"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp models.ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if resp.Message == "" {
		t.Error("expected a reply message")
	}
	if !strings.HasPrefix(resp.ConversationID, "conv-") {
		t.Errorf("expected a minted conversation id, got %q", resp.ConversationID)
	}
	if _, err := time.Parse(time.RFC3339, resp.Timestamp); err != nil {
		t.Errorf("timestamp %q is not RFC3339: %v", resp.Timestamp, err)
	}
}

func TestChatEndpointRejectsBadBody(t *testing.T) {
	r := newTestRouter(t, newScriptedLLM(t), 3)

	w := doJSON(r, http.MethodPost, "/api/chat", `{"not_message": true}`, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestChatEndpointEnforcesDemoLimit(t *testing.T) {
	llm := newScriptedLLM(t, "CONVERSATIONAL", "Hi!")
	r := newTestRouter(t, llm, 1)

	if w := doJSON(r, http.MethodPost, "/api/chat", `{"message":"Hello"}`, ""); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}

	w := doJSON(r, http.MethodPost, "/api/chat", `{"message":"Hello again"}`, "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if _, ok := body["retry_after_seconds"]; !ok {
		t.Error("429 body should carry retry_after_seconds")
	}
}

func TestInvalidKeyIs401Not429(t *testing.T) {
	r := newTestRouter(t, newScriptedLLM(t), 1)

	w := doJSON(r, http.MethodPost, "/api/chat", `{"message":"Hello"}`, "wrong-key")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body["error"] != "Invalid API key" {
		t.Errorf("error = %q", body["error"])
	}
}

func TestAdminKeyBypassesLimit(t *testing.T) {
	llm := newScriptedLLM(t,
		"CONVERSATIONAL", "Hi!",
		"CONVERSATIONAL", "Hi again!",
		"CONVERSATIONAL", "Still here!",
	)
	r := newTestRouter(t, llm, 1)

	for i := 0; i < 3; i++ {
		body := fmt.Sprintf(`{"message":"Hello number %d"}`, i)
		if w := doJSON(r, http.MethodPost, "/api/chat", body, testAdminKey); w.Code != http.StatusOK {
			t.Fatalf("admin request %d status = %d", i+1, w.Code)
		}
	}
}

func TestUsageEndpoint(t *testing.T) {
	llm := newScriptedLLM(t, "CONVERSATIONAL", "Hi!")
	r := newTestRouter(t, llm, 3)

	if w := doJSON(r, http.MethodPost, "/api/chat", `{"message":"Hello"}`, ""); w.Code != http.StatusOK {
		t.Fatalf("chat status = %d", w.Code)
	}

	w := doJSON(r, http.MethodGet, "/api/usage", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("usage status = %d", w.Code)
	}
	var usage models.UsageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &usage); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if usage.Tier != models.TierDemo {
		t.Errorf("tier = %q, want demo", usage.Tier)
	}
	if usage.QueriesUsed == nil || *usage.QueriesUsed != 1 {
		t.Errorf("queries_used = %v, want 1", usage.QueriesUsed)
	}

	admin := doJSON(r, http.MethodGet, "/api/usage", "", testAdminKey)
	var adminUsage models.UsageResponse
	if err := json.Unmarshal(admin.Body.Bytes(), &adminUsage); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if adminUsage.Tier != models.TierAdmin || adminUsage.QueriesUsed != nil {
		t.Errorf("admin usage = %+v", adminUsage)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	r := newTestRouter(t, newScriptedLLM(t), 3)

	w := doJSON(r, http.MethodGet, "/api/schema", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var catalog []models.TableSchema
	if err := json.Unmarshal(w.Body.Bytes(), &catalog); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(catalog) != 1 || catalog[0].Name != "players" {
		t.Errorf("unexpected catalog %+v", catalog)
	}
}
