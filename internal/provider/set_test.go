package provider

import (
	"context"
	"strings"
	"testing"
)

// stubAdapter scripts per-model outcomes for fallback tests.
type stubAdapter struct {
	name    string
	results map[string]CallResult
	calls   []string
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Call(_ context.Context, model, _ string, _ []Message, _ GenerationConfig, _ Credential) CallResult {
	s.calls = append(s.calls, model)
	if result, ok := s.results[model]; ok {
		return result
	}
	return failure(ErrUnknown, "unscripted model", 1)
}

func (s *stubAdapter) FetchModels(context.Context, Credential) map[string]ModelInfo {
	return map[string]ModelInfo{}
}

func (s *stubAdapter) Probe(context.Context, Credential) error { return nil }

func newStubSet(stub *stubAdapter) *Set {
	set := NewSet(nil)
	set.Register(stub)
	return set
}

func TestSet_FallbackOnModelNotFound(t *testing.T) {
	stub := &stubAdapter{
		name: OpenAI,
		results: map[string]CallResult{
			"gpt-retired": failure(ErrModelNotFound, "gone", 1),
			"gpt-4o":      {Success: true, Text: "answer", LatencyMS: 5},
		},
	}
	set := newStubSet(stub)

	result := set.Call(context.Background(), OpenAI, "gpt-retired", "hi", nil, GenerationConfig{}, Credential{})
	if !result.Success {
		t.Fatalf("expected fallback success, got %+v", result.Error)
	}
	if !strings.Contains(result.Text, `"gpt-retired"`) || !strings.Contains(result.Text, `"gpt-4o"`) {
		t.Fatalf("substitution note missing from %q", result.Text)
	}
	if !strings.HasPrefix(result.Text, "answer") {
		t.Fatalf("original text must lead the response, got %q", result.Text)
	}
}

func TestSet_FallbackExhausted(t *testing.T) {
	stub := &stubAdapter{
		name: OpenAI,
		results: map[string]CallResult{
			"gpt-retired": failure(ErrModelNotFound, "gone", 1),
			"gpt-4o":      failure(ErrModelNotFound, "also gone", 1),
			"gpt-4o-mini": failure(ErrModelNotFound, "all gone", 1),
		},
	}
	set := newStubSet(stub)

	result := set.Call(context.Background(), OpenAI, "gpt-retired", "hi", nil, GenerationConfig{}, Credential{})
	if result.Success {
		t.Fatal("expected failure after chain exhausted")
	}
	if len(stub.calls) != 3 {
		t.Fatalf("expected primary plus two fallback calls, got %v", stub.calls)
	}
}

func TestSet_NoFallbackOnOtherErrors(t *testing.T) {
	stub := &stubAdapter{
		name: OpenAI,
		results: map[string]CallResult{
			"gpt-4o": failure(ErrRateLimited, "slow down", 1),
		},
	}
	set := newStubSet(stub)

	result := set.Call(context.Background(), OpenAI, "gpt-4o", "hi", nil, GenerationConfig{}, Credential{})
	if result.Success || result.Error.Kind != ErrRateLimited {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(stub.calls) != 1 {
		t.Fatalf("rate limit must not trigger fallback, calls: %v", stub.calls)
	}
}

func TestSet_NoDefaultFallbackForAnthropic(t *testing.T) {
	stub := &stubAdapter{
		name: Anthropic,
		results: map[string]CallResult{
			"claude-retired": failure(ErrModelNotFound, "gone", 1),
		},
	}
	set := newStubSet(stub)

	result := set.Call(context.Background(), Anthropic, "claude-retired", "hi", nil, GenerationConfig{}, Credential{})
	if result.Success {
		t.Fatal("expected failure")
	}
	if len(stub.calls) != 1 {
		t.Fatalf("anthropic carries no default chain, calls: %v", stub.calls)
	}
}

func TestSet_ConfigurableFallbackChain(t *testing.T) {
	stub := &stubAdapter{
		name: Anthropic,
		results: map[string]CallResult{
			"claude-retired":            failure(ErrModelNotFound, "gone", 1),
			"claude-3-5-haiku-20241022": {Success: true, Text: "ok", LatencyMS: 2},
		},
	}
	set := newStubSet(stub)
	set.SetFallbackChain(Anthropic, []string{"claude-3-5-haiku-20241022"})

	result := set.Call(context.Background(), Anthropic, "claude-retired", "hi", nil, GenerationConfig{}, Credential{})
	if !result.Success {
		t.Fatalf("expected configured chain to apply, got %+v", result.Error)
	}
}

func TestSet_UnknownProviderNeverPanics(t *testing.T) {
	set := NewSet(nil)
	result := set.Call(context.Background(), "mistral", "some-model", "hi", nil, GenerationConfig{}, Credential{})
	if result.Success {
		t.Fatal("expected failure for unsupported provider")
	}
	if result.Error == nil || result.Error.Kind != ErrUnknown {
		t.Fatalf("unexpected error %+v", result.Error)
	}
}

func TestSet_AliasDispatch(t *testing.T) {
	stub := &stubAdapter{
		name: Google,
		results: map[string]CallResult{
			"gemini-2.0-flash": {Success: true, Text: "ok"},
		},
	}
	set := newStubSet(stub)

	result := set.Call(context.Background(), "vertex", "gemini-2.0-flash", "hi", nil, GenerationConfig{}, Credential{})
	if !result.Success {
		t.Fatalf("alias dispatch failed: %+v", result.Error)
	}
}
