package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicAdapter_Call(t *testing.T) {
	var captured anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "sk-ant-test" {
			t.Errorf("unexpected api key header %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got == "" {
			t.Error("anthropic-version header missing")
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": "first "}, {"type": "text", "text": "second"}},
			"usage":   map[string]int{"input_tokens": 7, "output_tokens": 3},
		})
	}))
	defer server.Close()

	adapter := NewAnthropicAdapter(server.Client())
	cred := Credential{APIKey: "sk-ant-test", EndpointURL: server.URL}
	cfg := GenerationConfig{Temperature: 0.5, MaxTokens: 200, SystemPrompt: "be helpful"}

	result := adapter.Call(context.Background(), "claude-sonnet-4-20250514", "hello", nil, cfg, cred)
	if !result.Success {
		t.Fatalf("expected success, got %+v", result.Error)
	}
	if result.Text != "first second" {
		t.Fatalf("text blocks not concatenated: %q", result.Text)
	}
	if result.Usage.TotalTokens != 10 {
		t.Fatalf("usage total should be input+output, got %+v", result.Usage)
	}
	if captured.System != "be helpful" {
		t.Fatalf("system prompt must travel in the system field, got %+v", captured)
	}
	for _, msg := range captured.Messages {
		if msg.Role == "system" {
			t.Fatal("system role must not appear in messages")
		}
	}
	if captured.MaxTokens != 200 {
		t.Fatalf("max_tokens not set: %+v", captured)
	}
}

func TestAnthropicAdapter_MaxTokensRequired(t *testing.T) {
	var captured anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": "ok"}},
		})
	}))
	defer server.Close()

	adapter := NewAnthropicAdapter(server.Client())
	adapter.Call(context.Background(), "claude-sonnet-4-20250514", "hello", nil, GenerationConfig{}, Credential{APIKey: "k", EndpointURL: server.URL})
	if captured.MaxTokens <= 0 {
		t.Fatalf("max_tokens must default to a positive value, got %d", captured.MaxTokens)
	}
}

func TestAnthropicAdapter_ProbeTolerates400(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A reachable endpoint rejecting a minimal request still proves
		// the key works.
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	adapter := NewAnthropicAdapter(server.Client())
	if err := adapter.Probe(context.Background(), Credential{APIKey: "k", EndpointURL: server.URL}); err != nil {
		t.Fatalf("probe should tolerate 400: %v", err)
	}
}

func TestAnthropicAdapter_ProbeRejectsAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	adapter := NewAnthropicAdapter(server.Client())
	if err := adapter.Probe(context.Background(), Credential{APIKey: "bad", EndpointURL: server.URL}); err == nil {
		t.Fatal("probe should fail on 401")
	}
}
