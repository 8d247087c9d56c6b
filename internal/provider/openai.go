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

const defaultOpenAIBaseURL = "https://api.openai.com"

// ReasoningModelPredicate reports whether a model requires the reasoning
// request shape (max_completion_tokens, pinned temperature). Provider naming
// schemes churn, so the predicate is injectable rather than hardwired.
type ReasoningModelPredicate func(model string) bool

// IsReasoningModel is the default predicate for OpenAI reasoning families.
func IsReasoningModel(model string) bool {
	lowered := strings.ToLower(strings.TrimSpace(model))
	for _, prefix := range []string{"gpt-4.1", "gpt-4o", "gpt-5", "o1", "o3", "o4"} {
		if strings.HasPrefix(lowered, prefix) {
			return true
		}
	}
	return false
}

// openAICapTiers classifies model IDs into token caps by prefix. Policy
// data: edit here when OpenAI ships new families.
var openAICapTiers = []struct {
	prefix    string
	inputCap  int
	outputCap int
	category  string
}{
	{"gpt-5", 200000, 8192, "reasoning"},
	{"o1", 200000, 100000, "reasoning"},
	{"o3", 200000, 100000, "reasoning"},
	{"o4", 200000, 100000, "reasoning"},
	{"gpt-4.1", 1000000, 32768, "chat"},
	{"gpt-4o-mini", 128000, 16384, "chat"},
	{"gpt-4o", 128000, 4096, "chat"},
	{"gpt-4", 8192, 4096, "chat"},
	{"gpt-3.5", 16385, 4096, "chat"},
}

// OpenAIAdapter calls the OpenAI chat completions API.
type OpenAIAdapter struct {
	client      *http.Client
	baseURL     string
	isReasoning ReasoningModelPredicate
}

// NewOpenAIAdapter constructs the OpenAI adapter with the default
// reasoning-model predicate.
func NewOpenAIAdapter(client *http.Client) *OpenAIAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultCallTimeout}
	}
	return &OpenAIAdapter{client: client, baseURL: defaultOpenAIBaseURL, isReasoning: IsReasoningModel}
}

// SetReasoningPredicate swaps the reasoning-model predicate.
func (a *OpenAIAdapter) SetReasoningPredicate(p ReasoningModelPredicate) {
	if p != nil {
		a.isReasoning = p
	}
}

// Name returns the canonical provider name.
func (a *OpenAIAdapter) Name() string { return OpenAI }

func (a *OpenAIAdapter) resolveBaseURL(cred Credential) string {
	if url := strings.TrimRight(strings.TrimSpace(cred.EndpointURL), "/"); url != "" {
		return url
	}
	return a.baseURL
}

func (a *OpenAIAdapter) headers(cred Credential) map[string]string {
	headers := map[string]string{"Authorization": "Bearer " + cred.APIKey}
	if org := strings.TrimSpace(cred.OrganizationID); org != "" {
		headers["OpenAI-Organization"] = org
	}
	return headers
}

type openAIChatRequest struct {
	Model               string    `json:"model"`
	Messages            []Message `json:"messages"`
	Temperature         *float64  `json:"temperature,omitempty"`
	MaxTokens           int       `json:"max_tokens,omitempty"`
	MaxCompletionTokens int       `json:"max_completion_tokens,omitempty"`
	ToolChoice          string    `json:"tool_choice,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage openAIUsage  `json:"usage"`
	Error *openAIError `json:"error"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Call sends one chat completion request.
func (a *OpenAIAdapter) Call(ctx context.Context, model, prompt string, messages []Message, cfg GenerationConfig, cred Credential) CallResult {
	body := openAIChatRequest{
		Model:    model,
		Messages: buildChatMessages(prompt, messages, cfg.SystemPrompt),
	}
	if cfg.ToolChoice != "" && cfg.ToolChoice != "auto" {
		body.ToolChoice = cfg.ToolChoice
	}
	if a.isReasoning != nil && a.isReasoning(model) {
		// Reasoning families reject max_tokens and non-default temperatures.
		body.MaxCompletionTokens = cfg.MaxTokens
		pinned := 1.0
		body.Temperature = &pinned
	} else {
		body.MaxTokens = cfg.MaxTokens
		temp := cfg.Temperature
		body.Temperature = &temp
	}

	start := time.Now()
	status, respBody, err := doJSON(ctx, a.client, http.MethodPost, a.resolveBaseURL(cred)+"/v1/chat/completions", a.headers(cred), body)
	latency := millisecondsSince(start)
	if err != nil {
		return failure(classifyTransport(err), fmt.Sprintf("openai: request failed: %v", err), latency)
	}

	var parsed openAIChatResponse
	if errDecode := json.Unmarshal(respBody, &parsed); errDecode != nil && status == http.StatusOK {
		return failure(ErrUnknown, fmt.Sprintf("openai: decode response: %v", errDecode), latency)
	}
	if status != http.StatusOK {
		message := truncateBody(respBody)
		if parsed.Error != nil && parsed.Error.Message != "" {
			message = parsed.Error.Message
		}
		return failure(classifyStatus(status, respBody), fmt.Sprintf("openai: status %d: %s", status, message), latency)
	}
	if len(parsed.Choices) == 0 {
		return failure(ErrUnknown, "openai: response contained no choices", latency)
	}

	return CallResult{
		Success:   true,
		LatencyMS: latency,
		Text:      parsed.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}
}

// FetchModels lists models visible to the credential and classifies caps.
func (a *OpenAIAdapter) FetchModels(ctx context.Context, cred Credential) map[string]ModelInfo {
	status, body, err := doJSON(ctx, a.client, http.MethodGet, a.resolveBaseURL(cred)+"/v1/models", a.headers(cred), nil)
	if err != nil || status != http.StatusOK {
		log.WithField("status", status).WithError(err).Debug("openai: fetch models failed")
		return map[string]ModelInfo{}
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if errDecode := json.Unmarshal(body, &parsed); errDecode != nil {
		log.WithError(errDecode).Debug("openai: decode models response failed")
		return map[string]ModelInfo{}
	}

	out := make(map[string]ModelInfo, len(parsed.Data))
	for _, m := range parsed.Data {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			continue
		}
		info := ModelInfo{Provider: OpenAI, ModelID: id, ProviderModel: id, DisplayName: id, Category: "chat", InputCap: 8192, OutputCap: 4096}
		for _, tier := range openAICapTiers {
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

// Probe checks reachability via the model listing endpoint.
func (a *OpenAIAdapter) Probe(ctx context.Context, cred Credential) error {
	status, body, err := doJSON(ctx, a.client, http.MethodGet, a.resolveBaseURL(cred)+"/v1/models", a.headers(cred), nil)
	if err != nil {
		return fmt.Errorf("openai: probe failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("openai: probe status %d: %s", status, truncateBody(body))
	}
	return nil
}

// buildChatMessages assembles the outbound message list. An explicit message
// list wins over the bare prompt; the system prompt is injected at the head
// only when the list does not already carry one.
func buildChatMessages(prompt string, messages []Message, systemPrompt string) []Message {
	if len(messages) == 0 {
		out := make([]Message, 0, 2)
		if systemPrompt != "" {
			out = append(out, Message{Role: "system", Content: systemPrompt})
		}
		return append(out, Message{Role: "user", Content: prompt})
	}
	if systemPrompt != "" && (len(messages) == 0 || messages[0].Role != "system") {
		return append([]Message{{Role: "system", Content: systemPrompt}}, messages...)
	}
	return messages
}
