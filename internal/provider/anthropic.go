package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicVersion = "2023-06-01"
)

// anthropicCapTiers classifies model IDs into token caps by prefix. Policy
// data: edit here when Anthropic ships new families.
var anthropicCapTiers = []struct {
	prefix    string
	inputCap  int
	outputCap int
	category  string
}{
	{"claude-opus-4", 200000, 32000, "chat"},
	{"claude-sonnet-4", 200000, 64000, "chat"},
	{"claude-haiku-4", 200000, 64000, "chat"},
	{"claude-3-7", 200000, 64000, "chat"},
	{"claude-3-5", 200000, 8192, "chat"},
	{"claude-3", 200000, 4096, "chat"},
}

// AnthropicAdapter calls the Anthropic messages API.
type AnthropicAdapter struct {
	client  *http.Client
	baseURL string
}

// NewAnthropicAdapter constructs the Anthropic adapter.
func NewAnthropicAdapter(client *http.Client) *AnthropicAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultCallTimeout}
	}
	return &AnthropicAdapter{client: client, baseURL: defaultAnthropicBaseURL}
}

// Name returns the canonical provider name.
func (a *AnthropicAdapter) Name() string { return Anthropic }

func (a *AnthropicAdapter) resolveBaseURL(cred Credential) string {
	if url := strings.TrimRight(strings.TrimSpace(cred.EndpointURL), "/"); url != "" {
		return url
	}
	return a.baseURL
}

func (a *AnthropicAdapter) headers(cred Credential) map[string]string {
	version := strings.TrimSpace(cred.APIVersion)
	if version == "" {
		version = defaultAnthropicVersion
	}
	return map[string]string{
		"x-api-key":         cred.APIKey,
		"anthropic-version": version,
	}
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	System      string    `json:"system,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Call sends one messages request.
func (a *AnthropicAdapter) Call(ctx context.Context, model, prompt string, messages []Message, cfg GenerationConfig, cred Credential) CallResult {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		// max_tokens is required by the messages API.
		maxTokens = 1024
	}
	temp := cfg.Temperature
	body := anthropicRequest{
		Model:       model,
		Messages:    conversationMessages(prompt, messages),
		MaxTokens:   maxTokens,
		Temperature: &temp,
		System:      cfg.SystemPrompt,
	}

	start := time.Now()
	status, respBody, err := doJSON(ctx, a.client, http.MethodPost, a.resolveBaseURL(cred)+"/v1/messages", a.headers(cred), body)
	latency := millisecondsSince(start)
	if err != nil {
		return failure(classifyTransport(err), fmt.Sprintf("anthropic: request failed: %v", err), latency)
	}

	var parsed anthropicResponse
	if errDecode := json.Unmarshal(respBody, &parsed); errDecode != nil && status == http.StatusOK {
		return failure(ErrUnknown, fmt.Sprintf("anthropic: decode response: %v", errDecode), latency)
	}
	if status != http.StatusOK {
		message := truncateBody(respBody)
		if parsed.Error != nil && parsed.Error.Message != "" {
			message = parsed.Error.Message
		}
		return failure(classifyStatus(status, respBody), fmt.Sprintf("anthropic: status %d: %s", status, message), latency)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return failure(ErrUnknown, "anthropic: response contained no text blocks", latency)
	}

	usage := Usage{
		PromptTokens:     parsed.Usage.InputTokens,
		CompletionTokens: parsed.Usage.OutputTokens,
		TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
	}
	return CallResult{Success: true, LatencyMS: latency, Text: text.String(), Usage: usage}
}

// FetchModels lists models visible to the credential and classifies caps.
func (a *AnthropicAdapter) FetchModels(ctx context.Context, cred Credential) map[string]ModelInfo {
	status, body, err := doJSON(ctx, a.client, http.MethodGet, a.resolveBaseURL(cred)+"/v1/models", a.headers(cred), nil)
	if err != nil || status != http.StatusOK {
		log.WithField("status", status).WithError(err).Debug("anthropic: fetch models failed")
		return map[string]ModelInfo{}
	}

	var parsed struct {
		Data []struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
		} `json:"data"`
	}
	if errDecode := json.Unmarshal(body, &parsed); errDecode != nil {
		log.WithError(errDecode).Debug("anthropic: decode models response failed")
		return map[string]ModelInfo{}
	}

	out := make(map[string]ModelInfo, len(parsed.Data))
	for _, m := range parsed.Data {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			continue
		}
		display := m.DisplayName
		if display == "" {
			display = id
		}
		info := ModelInfo{Provider: Anthropic, ModelID: id, ProviderModel: id, DisplayName: display, Category: "chat", InputCap: 200000, OutputCap: 4096}
		for _, tier := range anthropicCapTiers {
			if strings.HasPrefix(id, tier.prefix) {
				info.InputCap = tier.inputCap
				info.OutputCap = tier.outputCap
				info.Category = tier.category
				break
			}
		}
		out[id] = info
	}
	return out
}

// Probe checks reachability via the model listing endpoint. Anthropic
// answers some well-formed-but-unauthorized shapes with 400 from a live
// endpoint, so 400 counts as reachable.
func (a *AnthropicAdapter) Probe(ctx context.Context, cred Credential) error {
	status, body, err := doJSON(ctx, a.client, http.MethodGet, a.resolveBaseURL(cred)+"/v1/models", a.headers(cred), nil)
	if err != nil {
		return fmt.Errorf("anthropic: probe failed: %w", err)
	}
	if status == http.StatusOK || status == http.StatusBadRequest {
		return nil
	}
	return fmt.Errorf("anthropic: probe status %d: %s", status, truncateBody(body))
}

// conversationMessages returns the outbound turn list without any system
// role; Anthropic carries the system prompt in a dedicated field.
func conversationMessages(prompt string, messages []Message) []Message {
	if len(messages) == 0 {
		return []Message{{Role: "user", Content: prompt}}
	}
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			continue
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		out = append(out, Message{Role: "user", Content: prompt})
	}
	return out
}
