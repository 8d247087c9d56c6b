package provider

import (
	"context"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// defaultFallbackChains lists substitute models tried when a call fails with
// ErrModelNotFound. Only OpenAI carries a chain by default: its model churn
// retires workspace-configured models far more often than the other
// providers. Chains are per-provider configuration, not a hardwired special
// case; extend via SetFallbackChain.
var defaultFallbackChains = map[string][]string{
	OpenAI: {"gpt-4o", "gpt-4o-mini"},
}

// Set holds the registered provider adapters and their fallback chains.
type Set struct {
	adapters  map[string]Adapter
	fallbacks map[string][]string
}

// NewSet registers the four built-in adapters over one shared HTTP client.
func NewSet(client *http.Client) *Set {
	if client == nil {
		client = &http.Client{Timeout: defaultCallTimeout}
	}
	s := &Set{
		adapters:  make(map[string]Adapter),
		fallbacks: make(map[string][]string),
	}
	s.Register(NewOpenAIAdapter(client))
	s.Register(NewAnthropicAdapter(client))
	s.Register(NewAzureOpenAIAdapter(client))
	s.Register(NewVertexAdapter(client))
	for name, chain := range defaultFallbackChains {
		s.fallbacks[name] = append([]string(nil), chain...)
	}
	return s
}

// Register adds or replaces an adapter under its canonical name.
func (s *Set) Register(a Adapter) {
	if s == nil || a == nil {
		return
	}
	s.adapters[Normalize(a.Name())] = a
}

// Adapter returns the adapter registered for the provider name or alias.
func (s *Set) Adapter(name string) (Adapter, bool) {
	if s == nil {
		return nil, false
	}
	a, ok := s.adapters[Normalize(name)]
	return a, ok
}

// Names returns the canonical names of all registered adapters in the
// order given by All, followed by any extra registrations.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.adapters))
	seen := make(map[string]struct{}, len(s.adapters))
	for _, name := range All {
		if _, ok := s.adapters[name]; ok {
			names = append(names, name)
			seen[name] = struct{}{}
		}
	}
	for name := range s.adapters {
		if _, dup := seen[name]; !dup {
			names = append(names, name)
		}
	}
	return names
}

// SetFallbackChain replaces the substitute-model chain for a provider.
func (s *Set) SetFallbackChain(providerName string, chain []string) {
	if s == nil {
		return
	}
	s.fallbacks[Normalize(providerName)] = append([]string(nil), chain...)
}

// Call dispatches one provider-agnostic call, applying the provider's
// fallback chain when the requested model is gone. It never returns an
// error; every failure is a CallResult with a structured CallError.
func (s *Set) Call(ctx context.Context, providerName, model, prompt string, messages []Message, cfg GenerationConfig, cred Credential) CallResult {
	canonical := Normalize(providerName)
	adapter, ok := s.Adapter(canonical)
	if !ok {
		return failure(ErrUnknown, fmt.Sprintf("unsupported provider: %s", providerName), 0)
	}

	result := adapter.Call(ctx, model, prompt, messages, cfg, cred)
	if result.Success || result.Error == nil || result.Error.Kind != ErrModelNotFound {
		return result
	}

	chain := s.fallbacks[canonical]
	if len(chain) == 0 {
		return result
	}

	log.WithFields(log.Fields{"provider": canonical, "model": model}).Warn("model unavailable, trying fallback chain")
	for _, substitute := range chain {
		if substitute == model {
			continue
		}
		retry := adapter.Call(ctx, substitute, prompt, messages, cfg, cred)
		if retry.Success {
			retry.Text += fmt.Sprintf("\n\n[Note: requested model %q was unavailable; this response was generated by %q instead.]", model, substitute)
			return retry
		}
		result = retry
	}
	return result
}
