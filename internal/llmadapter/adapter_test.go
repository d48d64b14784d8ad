package llmadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fakeOpenAIServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)
	return srv
}

func chatCompletionResponse(content, finishReason string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1,
		"model":   "grok-4",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": finishReason,
			},
		},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13},
	}
}

func TestExecuteSuccessCachesResult(t *testing.T) {
	var calls int32
	srv := fakeOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode(chatCompletionResponse("hello world", "stop"))
	})

	a := New(defaultConfig())
	req := Request{
		RequestType: "generate_search_queries",
		Prompt:      "what to search",
		ModelInfo:   ModelInfo{Name: "grok-4", Provider: "xai", ContextWindow: 8192},
		Credentials: Credentials{APIKey: "k", BaseURL: srv.URL},
	}

	res := a.Execute(context.Background(), req)
	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if res.Output != "hello world" {
		t.Fatalf("got output %q", res.Output)
	}
	if res.Usage.CompletionTokens != 3 {
		t.Fatalf("expected provider usage preserved, got %+v", res.Usage)
	}

	res2 := a.Execute(context.Background(), req)
	if res2.Output != "hello world" {
		t.Fatalf("expected cached output, got %q", res2.Output)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected only 1 provider call due to cache, got %d", calls)
	}
}

func TestExecuteRetriesOnRetryableThenSucceeds(t *testing.T) {
	var calls int32
	srv := fakeOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"unavailable"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(chatCompletionResponse("recovered", "stop"))
	})

	cfg := defaultConfig()
	cfg.InitialBackoff = time.Millisecond
	a := New(cfg)
	req := Request{
		Prompt:      "q",
		ModelInfo:   ModelInfo{Name: "grok-4", Provider: "xai"},
		Credentials: Credentials{BaseURL: srv.URL},
	}

	res := a.Execute(context.Background(), req)
	if res.Error != "" {
		t.Fatalf("expected eventual success, got error %s", res.Error)
	}
	if res.Output != "recovered" {
		t.Fatalf("got %q", res.Output)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 calls (1 failure + 1 success), got %d", calls)
	}
}

func TestExecuteAbortsOnBadRequestWithoutRetry(t *testing.T) {
	var calls int32
	srv := fakeOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request"}}`))
	})

	cfg := defaultConfig()
	cfg.InitialBackoff = time.Millisecond
	a := New(cfg)
	req := Request{
		Prompt:      "q",
		ModelInfo:   ModelInfo{Name: "grok-4", Provider: "xai"},
		Credentials: Credentials{BaseURL: srv.URL},
	}

	res := a.Execute(context.Background(), req)
	if res.Error == "" {
		t.Fatalf("expected terminal error result")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 call (no retry on abort), got %d", calls)
	}
}

func TestExecuteJSONModeRepairsFencedOutput(t *testing.T) {
	srv := fakeOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatCompletionResponse("```json\n{\"queries\": [\"a\", \"b\"]}\n```", "stop"))
	})

	a := New(defaultConfig())
	req := Request{
		Prompt:         "give me json",
		ModelInfo:      ModelInfo{Name: "grok-4", Provider: "xai"},
		Credentials:    Credentials{BaseURL: srv.URL},
		ExpectedFormat: FormatJSON,
	}

	res := a.Execute(context.Background(), req)
	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if res.Output != `{"queries": ["a", "b"]}` {
		t.Fatalf("got %q", res.Output)
	}
}

func TestExecuteJSONModeRejectsBareScalar(t *testing.T) {
	var calls int32
	srv := fakeOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode(chatCompletionResponse(`"just a string"`, "stop"))
	})

	cfg := defaultConfig()
	cfg.MaxRetries = 1
	cfg.InitialBackoff = time.Millisecond
	a := New(cfg)
	req := Request{
		Prompt:         "give me json",
		ModelInfo:      ModelInfo{Name: "grok-4", Provider: "xai"},
		Credentials:    Credentials{BaseURL: srv.URL},
		ExpectedFormat: FormatJSON,
	}

	res := a.Execute(context.Background(), req)
	if res.Error == "" {
		t.Fatalf("expected a bare-scalar JSON response to be rejected")
	}
}

func TestExecuteRespectsCancelledContext(t *testing.T) {
	srv := fakeOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatCompletionResponse("unused", "stop"))
	})

	a := New(defaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := Request{
		Prompt:      "q",
		ModelInfo:   ModelInfo{Name: "grok-4", Provider: "xai"},
		Credentials: Credentials{BaseURL: srv.URL},
	}
	res := a.Execute(ctx, req)
	if res.Error == "" {
		t.Fatalf("expected cancelled result")
	}
}
