package tasks

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/livesearch/orchestrator/internal/config"
	"github.com/livesearch/orchestrator/internal/graph"
	"github.com/livesearch/orchestrator/internal/llmadapter"
	"github.com/livesearch/orchestrator/internal/search"
	"github.com/livesearch/orchestrator/internal/vectorstore"
)

func TestTaskIDFromPathRejectsTraversal(t *testing.T) {
	for _, bad := range []string{"..", ".", "../x", "a/b", `a\b`, "/etc/passwd"} {
		if _, err := taskIDFromPath(bad); err == nil {
			t.Errorf("taskIDFromPath(%q) should have been rejected", bad)
		}
	}
}

func TestTaskIDFromPathAcceptsPlainID(t *testing.T) {
	got, err := taskIDFromPath("task-123")
	if err != nil || got != "task-123" {
		t.Fatalf("taskIDFromPath(task-123) = %q, %v", got, err)
	}
}

func TestResolveSearchCredentialsDefaultsFromConfig(t *testing.T) {
	p := config.ProvidersConfig{
		Google:        config.ProviderCredential{APIKey: "g-key", ExtraKeys: map[string]string{"cx": "g-cx"}},
		Bing:          config.ProviderCredential{APIKey: "b-key"},
		Brave:         config.ProviderCredential{APIKey: "brave-key"},
		CourtListener: config.ProviderCredential{APIKey: "cl-key"},
	}
	creds := resolveSearchCredentials(p, nil)
	want := search.Credentials{GoogleAPIKey: "g-key", GoogleCX: "g-cx", BingAPIKey: "b-key", BraveAPIKey: "brave-key", CourtListenerToken: "cl-key"}
	if creds != want {
		t.Fatalf("resolveSearchCredentials() = %+v, want %+v", creds, want)
	}
}

func TestResolveSearchCredentialsOverrideWinsPerKey(t *testing.T) {
	p := config.ProvidersConfig{
		Google: config.ProviderCredential{APIKey: "g-key", ExtraKeys: map[string]string{"cx": "g-cx"}},
		Brave:  config.ProviderCredential{APIKey: "brave-key"},
	}
	override := map[string]string{"GOOGLE_API_KEY": "override-g-key", "BING_API_KEY": "override-b-key"}
	creds := resolveSearchCredentials(p, override)
	if creds.GoogleAPIKey != "override-g-key" {
		t.Errorf("GoogleAPIKey override not applied: %+v", creds)
	}
	if creds.GoogleCX != "g-cx" {
		t.Errorf("GoogleCX should keep the resolved default: %+v", creds)
	}
	if creds.BingAPIKey != "override-b-key" {
		t.Errorf("BingAPIKey override not applied: %+v", creds)
	}
	if creds.BraveAPIKey != "brave-key" {
		t.Errorf("BraveAPIKey should keep the resolved default: %+v", creds)
	}
}

// fakeQueryGenServer answers every chat-completion request with a fixed
// query-list JSON body, so GenerateSearchQueries can run to completion
// without touching a real LLM provider.
func fakeQueryGenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-test", "object": "chat.completion", "created": 1, "model": "grok-4",
			"choices": []map[string]any{{
				"index": 0, "message": map[string]string{"role": "assistant", "content": `{"queries":["q1"]}`},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestHandlers(t *testing.T) (*Handlers, *vectorstore.Store) {
	t.Helper()
	store, err := vectorstore.Open(filepath.Join(t.TempDir(), "vectors.db"), 4)
	if err != nil {
		t.Fatalf("open vector store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	embedder := vectorstore.NewEmbedder("http://127.0.0.1:0", "", "test-embed", 4)
	srv := fakeQueryGenServer(t)

	cfg := config.Config{}
	cfg.LLM.XAI.BaseURL = srv.URL
	cfg.LLM.XAI.APIKey = "test-key"
	cfg.LLM.DefaultReasoningModel = config.ModelInfo{Name: "grok-4", Provider: "xai", ContextWindow: 8192}
	cfg.LLM.DefaultSynthesisModel = config.ModelInfo{Name: "grok-4", Provider: "xai", ContextWindow: 8192}

	svc := &graph.Services{
		Vector:   store,
		Embedder: embedder,
		Search:   search.NewRegistry(nil, nil, nil),
		LLM:      llmadapter.New(llmadapter.Config{}),
		Config:   cfg,
	}
	return &Handlers{Registry: NewRegistry(), Services: svc}, store
}

func doJSON(t *testing.T, e *echo.Echo, h echo.HandlerFunc, method, path string, body any, params map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	for k, v := range params {
		c.SetParamNames(k)
		c.SetParamValues(v)
	}
	if err := h(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func TestCreateTaskHandlerRejectsEmptyQuery(t *testing.T) {
	h, _ := newTestHandlers(t)
	e := echo.New()
	rec := doJSON(t, e, h.CreateTaskHandler, http.MethodPost, "/research_tasks",
		createTaskRequest{UserID: "u1"}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body=%s", rec.Code, rec.Body.String())
	}
}

func TestCreateTaskHandlerAccepted(t *testing.T) {
	h, _ := newTestHandlers(t)
	e := echo.New()
	rec := doJSON(t, e, h.CreateTaskHandler, http.MethodPost, "/research_tasks",
		createTaskRequest{UserID: "u1", RequestParams: requestParamsBody{InitialQuery: "what is rust?"}}, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	taskID, _ := resp["task_id"].(string)
	if taskID == "" {
		t.Fatalf("missing task_id in response: %v", resp)
	}
	if h.Registry.Get(taskID) == nil {
		t.Fatalf("task %s not registered", taskID)
	}
	if !strings.Contains(resp["stream_url"].(string), taskID) {
		t.Fatalf("stream_url missing task id: %v", resp["stream_url"])
	}

	// allow the background Run goroutine to finish the pipeline so the
	// test doesn't leak a goroutine past the test's lifetime.
	time.Sleep(300 * time.Millisecond)
}

func TestCancelTaskHandlerUnknown(t *testing.T) {
	h, _ := newTestHandlers(t)
	e := echo.New()
	rec := doJSON(t, e, h.CancelTaskHandler, http.MethodPost, "/research_tasks/missing/cancel", nil,
		map[string]string{"id": "missing"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCancelTaskHandlerAlreadyCompleted(t *testing.T) {
	h, _ := newTestHandlers(t)
	rec := newTestRecord(t, h.Registry, "task-done")
	h.Registry.setStatus("task-done", StatusComplete, "finished")

	e := echo.New()
	httpRec := doJSON(t, e, h.CancelTaskHandler, http.MethodPost, "/research_tasks/task-done/cancel", nil,
		map[string]string{"id": "task-done"})
	var resp map[string]string
	_ = json.Unmarshal(httpRec.Body.Bytes(), &resp)
	if resp["status"] != "already_completed" {
		t.Fatalf("status = %v, want already_completed", resp)
	}
	_ = rec
}

func TestCancelTaskHandlerRequestsCancellation(t *testing.T) {
	h, _ := newTestHandlers(t)
	rec := newTestRecord(t, h.Registry, "task-running")
	h.Registry.setStatus("task-running", StatusRunning, "")

	e := echo.New()
	doJSON(t, e, h.CancelTaskHandler, http.MethodPost, "/research_tasks/task-running/cancel", nil,
		map[string]string{"id": "task-running"})
	if !rec.State.Cancel.IsSet() {
		t.Fatalf("cancel signal should be set after cancel request")
	}
}

func TestStatusHandler(t *testing.T) {
	h, _ := newTestHandlers(t)
	newTestRecord(t, h.Registry, "task-s")
	h.Registry.setStatus("task-s", StatusRunning, "mid-flight")

	e := echo.New()
	rec := doJSON(t, e, h.StatusHandler, http.MethodGet, "/research_tasks/task-s/status", nil,
		map[string]string{"id": "task-s"})
	var resp map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != string(StatusRunning) || resp["progress_message"] != "mid-flight" {
		t.Fatalf("unexpected status response: %v", resp)
	}
}

func TestHealthHandler(t *testing.T) {
	h, _ := newTestHandlers(t)
	e := echo.New()
	rec := doJSON(t, e, h.HealthHandler, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestVectorDeleteByGroupHandler(t *testing.T) {
	h, _ := newTestHandlers(t)
	e := echo.New()
	rec := doJSON(t, e, h.VectorDeleteByGroupHandler, http.MethodPost, "/vector/delete_by_group",
		vectorDeleteRequest{GroupID: "g1"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}
