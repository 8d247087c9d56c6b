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

const defaultAzureAPIVersion = "2024-02-01"

// AzureOpenAIAdapter calls deployment-scoped Azure OpenAI endpoints.
type AzureOpenAIAdapter struct {
	client *http.Client
}

// NewAzureOpenAIAdapter constructs the Azure OpenAI adapter.
func NewAzureOpenAIAdapter(client *http.Client) *AzureOpenAIAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultCallTimeout}
	}
	return &AzureOpenAIAdapter{client: client}
}

// Name returns the canonical provider name.
func (a *AzureOpenAIAdapter) Name() string { return AzureOpenAI }

func (a *AzureOpenAIAdapter) apiVersion(cred Credential) string {
	if v := strings.TrimSpace(cred.APIVersion); v != "" {
		return v
	}
	return defaultAzureAPIVersion
}

// resolveDeployment picks the deployment backing the requested model: an
// exact match from the configured deployment list, else the first entry,
// else the model name itself.
func resolveDeployment(model string, deployments []string) string {
	for _, d := range deployments {
		if strings.EqualFold(strings.TrimSpace(d), model) {
			return strings.TrimSpace(d)
		}
	}
	for _, d := range deployments {
		if trimmed := strings.TrimSpace(d); trimmed != "" {
			return trimmed
		}
	}
	return model
}

// Call sends one chat completion request to the deployment endpoint.
func (a *AzureOpenAIAdapter) Call(ctx context.Context, model, prompt string, messages []Message, cfg GenerationConfig, cred Credential) CallResult {
	endpoint := strings.TrimRight(strings.TrimSpace(cred.EndpointURL), "/")
	if endpoint == "" {
		return failure(ErrAuth, "azureopenai: credential has no endpoint url", 0)
	}

	deployment := resolveDeployment(model, cred.DeploymentNames)
	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s", endpoint, deployment, a.apiVersion(cred))

	temp := cfg.Temperature
	body := openAIChatRequest{
		Messages:    buildChatMessages(prompt, messages, cfg.SystemPrompt),
		Temperature: &temp,
		MaxTokens:   cfg.MaxTokens,
	}

	start := time.Now()
	status, respBody, err := doJSON(ctx, a.client, http.MethodPost, url, map[string]string{"api-key": cred.APIKey}, body)
	latency := millisecondsSince(start)
	if err != nil {
		return failure(classifyTransport(err), fmt.Sprintf("azureopenai: request failed: %v", err), latency)
	}

	var parsed openAIChatResponse
	if errDecode := json.Unmarshal(respBody, &parsed); errDecode != nil && status == http.StatusOK {
		return failure(ErrUnknown, fmt.Sprintf("azureopenai: decode response: %v", errDecode), latency)
	}
	if status != http.StatusOK {
		message := truncateBody(respBody)
		if parsed.Error != nil && parsed.Error.Message != "" {
			message = parsed.Error.Message
		}
		return failure(classifyStatus(status, respBody), fmt.Sprintf("azureopenai: deployment %s status %d: %s", deployment, status, message), latency)
	}
	if len(parsed.Choices) == 0 {
		return failure(ErrUnknown, "azureopenai: response contained no choices", latency)
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

// FetchModels lists the resource's deployments as available models.
func (a *AzureOpenAIAdapter) FetchModels(ctx context.Context, cred Credential) map[string]ModelInfo {
	endpoint := strings.TrimRight(strings.TrimSpace(cred.EndpointURL), "/")
	if endpoint == "" {
		return map[string]ModelInfo{}
	}
	url := fmt.Sprintf("%s/openai/deployments?api-version=%s", endpoint, a.apiVersion(cred))

	status, body, err := doJSON(ctx, a.client, http.MethodGet, url, map[string]string{"api-key": cred.APIKey}, nil)
	if err != nil || status != http.StatusOK {
		log.WithField("status", status).WithError(err).Debug("azureopenai: fetch deployments failed")
		return map[string]ModelInfo{}
	}

	var parsed struct {
		Data []struct {
			ID    string `json:"id"`
			Model string `json:"model"`
		} `json:"data"`
	}
	if errDecode := json.Unmarshal(body, &parsed); errDecode != nil {
		log.WithError(errDecode).Debug("azureopenai: decode deployments response failed")
		return map[string]ModelInfo{}
	}

	out := make(map[string]ModelInfo, len(parsed.Data))
	for _, d := range parsed.Data {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			continue
		}
		upstream := strings.TrimSpace(d.Model)
		if upstream == "" {
			upstream = id
		}
		info := ModelInfo{Provider: AzureOpenAI, ModelID: id, ProviderModel: upstream, DisplayName: id, Category: "chat", InputCap: 8192, OutputCap: 4096}
		// Deployments front OpenAI models, so the same tier table applies.
		for _, tier := range openAICapTiers {
			if strings.HasPrefix(upstream, tier.prefix) {
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

// Probe checks reachability via the deployment listing endpoint.
func (a *AzureOpenAIAdapter) Probe(ctx context.Context, cred Credential) error {
	endpoint := strings.TrimRight(strings.TrimSpace(cred.EndpointURL), "/")
	if endpoint == "" {
		return fmt.Errorf("azureopenai: credential has no endpoint url")
	}
	url := fmt.Sprintf("%s/openai/deployments?api-version=%s", endpoint, a.apiVersion(cred))
	status, body, err := doJSON(ctx, a.client, http.MethodGet, url, map[string]string{"api-key": cred.APIKey}, nil)
	if err != nil {
		return fmt.Errorf("azureopenai: probe failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("azureopenai: probe status %d: %s", status, truncateBody(body))
	}
	return nil
}
