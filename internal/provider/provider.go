package provider

import (
	"context"
	"strings"
)

// Canonical provider names.
const (
	OpenAI      = "openai"
	Anthropic   = "anthropic"
	AzureOpenAI = "azureopenai"
	Google      = "google"
)

// All lists the canonical provider names in sync order.
var All = []string{OpenAI, Anthropic, AzureOpenAI, Google}

// providerAliases maps provider inputs to canonical identifiers.
var providerAliases = map[string]string{
	"openai":       OpenAI,
	"open-ai":      OpenAI,
	"anthropic":    Anthropic,
	"claude":       Anthropic,
	"azure":        AzureOpenAI,
	"azureopenai":  AzureOpenAI,
	"azure_openai": AzureOpenAI,
	"azure-openai": AzureOpenAI,
	"google":       Google,
	"vertex":       Google,
	"vertexai":     Google,
	"vertex_ai":    Google,
	"vertex-ai":    Google,
	"gemini":       Google,
}

// Normalize maps a provider name or alias to its canonical identifier.
// Unknown names are lowercased and trimmed but otherwise passed through,
// so Normalize(Normalize(x)) == Normalize(x) for every input.
func Normalize(name string) string {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return ""
	}
	if canonical, ok := providerAliases[trimmed]; ok {
		return canonical
	}
	return trimmed
}

// Known reports whether the canonical name has a registered adapter.
func Known(name string) bool {
	switch Normalize(name) {
	case OpenAI, Anthropic, AzureOpenAI, Google:
		return true
	}
	return false
}

// Credential is the decrypted credential view handed to adapters.
type Credential struct {
	APIKey          string            // API key, or service-account JSON for Google.
	EndpointURL     string            // Base endpoint override.
	APIVersion      string            // Provider API version.
	OrganizationID  string            // Organization or project identifier.
	DeploymentNames []string          // Azure deployment names.
	Metadata        map[string]string // Provider-specific extras (project_id, region, ...).
}

// GenerationConfig carries the effective generation parameters for one call.
type GenerationConfig struct {
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	ToolChoice   string
}

// Message is one turn of a conversation in provider-agnostic form.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ErrorKind classifies a provider call failure.
type ErrorKind string

// Provider call error kinds. Fallback logic branches on these tags instead
// of matching substrings of provider error text.
const (
	ErrModelNotFound ErrorKind = "model_not_found"
	ErrRateLimited   ErrorKind = "rate_limited"
	ErrAuth          ErrorKind = "auth"
	ErrTransient     ErrorKind = "transient"
	ErrUnknown       ErrorKind = "unknown"
)

// CallError is a structured provider failure.
type CallError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *CallError) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Kind) + ": " + e.Message
}

// CallResult is the normalized outcome of one provider call.
//
// Success=false implies Text=="" and Error!=nil; Success=true implies
// Error==nil.
type CallResult struct {
	Success   bool       `json:"success"`
	LatencyMS int64      `json:"latency_ms"`
	Text      string     `json:"text"`
	Usage     Usage      `json:"usage"`
	Error     *CallError `json:"provider_error,omitempty"`
}

// ModelInfo describes one model's provider, caps and classification.
type ModelInfo struct {
	Provider      string `json:"provider"`
	ModelID       string `json:"model_id"`
	ProviderModel string `json:"provider_model"`
	DisplayName   string `json:"display_name"`
	Category      string `json:"category"`
	InputCap      int    `json:"input_cap"`
	OutputCap     int    `json:"output_cap"`
}

// Adapter is implemented once per provider and registered in a Set.
type Adapter interface {
	// Name returns the canonical provider name.
	Name() string
	// Call sends one generation request. It never returns an error;
	// failures are reported inside the CallResult.
	Call(ctx context.Context, model, prompt string, messages []Message, cfg GenerationConfig, cred Credential) CallResult
	// FetchModels lists the models the credential can reach, keyed by
	// model ID. It returns an empty map on any failure.
	FetchModels(ctx context.Context, cred Credential) map[string]ModelInfo
	// Probe performs a lightweight connectivity check.
	Probe(ctx context.Context, cred Credential) error
}

func failure(kind ErrorKind, message string, latencyMS int64) CallResult {
	return CallResult{
		Success:   false,
		LatencyMS: latencyMS,
		Error:     &CallError{Kind: kind, Message: message},
	}
}
