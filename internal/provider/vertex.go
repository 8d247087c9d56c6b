package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2/google"
)

const (
	defaultVertexRegion = "us-central1"
	vertexAuthScope     = "https://www.googleapis.com/auth/cloud-platform"
)

// Metadata keys used by Google credentials.
const (
	MetaProjectID = "project_id"
	MetaRegion    = "region"
)

// geminiCapTiers classifies model IDs into token caps by prefix. Policy
// data: edit here when Google ships new families.
var geminiCapTiers = []struct {
	prefix    string
	inputCap  int
	outputCap int
	category  string
}{
	{"gemini-2.5-pro", 1048576, 65536, "chat"},
	{"gemini-2.5-flash", 1048576, 65536, "chat"},
	{"gemini-2.0", 1048576, 8192, "chat"},
	{"gemini-1.5-pro", 2097152, 8192, "chat"},
	{"gemini-1.5", 1048576, 8192, "chat"},
	{"gemini", 1048576, 8192, "chat"},
}

// tokenFunc exchanges a service-account JSON blob for a bearer token.
type tokenFunc func(ctx context.Context, serviceAccountJSON []byte) (string, error)

// VertexAdapter calls Google Vertex AI publisher model endpoints.
type VertexAdapter struct {
	client *http.Client
	token  tokenFunc
}

// NewVertexAdapter constructs the Vertex adapter with the standard OAuth2
// service-account flow.
func NewVertexAdapter(client *http.Client) *VertexAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultCallTimeout}
	}
	return &VertexAdapter{client: client, token: serviceAccountToken}
}

// SetTokenFunc swaps the token exchange, used by tests.
func (a *VertexAdapter) SetTokenFunc(f tokenFunc) {
	if f != nil {
		a.token = f
	}
}

// Name returns the canonical provider name.
func (a *VertexAdapter) Name() string { return Google }

// serviceAccountToken runs the OAuth2 JWT flow for a service account.
func serviceAccountToken(ctx context.Context, serviceAccountJSON []byte) (string, error) {
	cfg, err := google.JWTConfigFromJSON(serviceAccountJSON, vertexAuthScope)
	if err != nil {
		return "", fmt.Errorf("parse service account: %w", err)
	}
	tok, err := cfg.TokenSource(ctx).Token()
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	return tok.AccessToken, nil
}

// RepairServiceAccountJSON normalizes a service-account credential that may
// arrive as a pre-parsed object re-serialized elsewhere, or as a string with
// truncated trailing braces. It returns the original input when no repair
// applies.
func RepairServiceAccountJSON(raw string) []byte {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return []byte(raw)
	}
	var probe map[string]any
	if err := json.Unmarshal([]byte(trimmed), &probe); err == nil {
		return []byte(trimmed)
	}
	// Truncated uploads commonly lose closing braces; rebalance and retry.
	if open, closed := strings.Count(trimmed, "{"), strings.Count(trimmed, "}"); open > closed {
		repaired := trimmed + strings.Repeat("}", open-closed)
		if err := json.Unmarshal([]byte(repaired), &probe); err == nil {
			return []byte(repaired)
		}
	}
	return []byte(trimmed)
}

func (a *VertexAdapter) endpoint(cred Credential) (base, project, region string, err error) {
	project = strings.TrimSpace(cred.Metadata[MetaProjectID])
	if project == "" {
		project = strings.TrimSpace(cred.OrganizationID)
	}
	if project == "" {
		return "", "", "", fmt.Errorf("google: credential has no project id")
	}
	region = strings.TrimSpace(cred.Metadata[MetaRegion])
	if region == "" {
		region = defaultVertexRegion
	}
	base = strings.TrimRight(strings.TrimSpace(cred.EndpointURL), "/")
	if base == "" {
		base = fmt.Sprintf("https://%s-aiplatform.googleapis.com", region)
	}
	return base, project, region, nil
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Call sends one request, chat-shaped for gemini models and
// completion-shaped for everything else.
func (a *VertexAdapter) Call(ctx context.Context, model, prompt string, messages []Message, cfg GenerationConfig, cred Credential) CallResult {
	base, project, region, errEndpoint := a.endpoint(cred)
	if errEndpoint != nil {
		return failure(ErrAuth, errEndpoint.Error(), 0)
	}

	bearer, errToken := a.token(ctx, RepairServiceAccountJSON(cred.APIKey))
	if errToken != nil {
		return failure(ErrAuth, fmt.Sprintf("google: %v", errToken), 0)
	}
	headers := map[string]string{"Authorization": "Bearer " + bearer}

	modelPath := fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s", base, project, region, model)

	var url string
	var body any
	if strings.Contains(strings.ToLower(model), "gemini") {
		url = modelPath + ":generateContent"
		body = buildGeminiRequest(prompt, messages, cfg)
	} else {
		url = modelPath + ":predict"
		body = map[string]any{
			"instances": []map[string]any{{"prompt": joinPrompt(prompt, messages)}},
			"parameters": map[string]any{
				"temperature":     cfg.Temperature,
				"maxOutputTokens": cfg.MaxTokens,
			},
		}
	}

	start := time.Now()
	status, respBody, err := doJSON(ctx, a.client, http.MethodPost, url, headers, body)
	latency := millisecondsSince(start)
	if err != nil {
		return failure(classifyTransport(err), fmt.Sprintf("google: request failed: %v", err), latency)
	}
	if status != http.StatusOK {
		return failure(classifyStatus(status, respBody), fmt.Sprintf("google: status %d: %s", status, truncateBody(respBody)), latency)
	}

	if strings.Contains(strings.ToLower(model), "gemini") {
		var parsed geminiResponse
		if errDecode := json.Unmarshal(respBody, &parsed); errDecode != nil {
			return failure(ErrUnknown, fmt.Sprintf("google: decode response: %v", errDecode), latency)
		}
		if len(parsed.Candidates) == 0 {
			return failure(ErrUnknown, "google: response contained no candidates", latency)
		}
		var text strings.Builder
		for _, part := range parsed.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
		return CallResult{
			Success:   true,
			LatencyMS: latency,
			Text:      text.String(),
			Usage: Usage{
				PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
				CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
				TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
			},
		}
	}

	var predicted struct {
		Predictions []struct {
			Content string `json:"content"`
		} `json:"predictions"`
	}
	if errDecode := json.Unmarshal(respBody, &predicted); errDecode != nil {
		return failure(ErrUnknown, fmt.Sprintf("google: decode response: %v", errDecode), latency)
	}
	if len(predicted.Predictions) == 0 {
		return failure(ErrUnknown, "google: response contained no predictions", latency)
	}
	return CallResult{Success: true, LatencyMS: latency, Text: predicted.Predictions[0].Content}
}

func buildGeminiRequest(prompt string, messages []Message, cfg GenerationConfig) geminiRequest {
	var req geminiRequest
	req.GenerationConfig.Temperature = cfg.Temperature
	req.GenerationConfig.MaxOutputTokens = cfg.MaxTokens
	if cfg.SystemPrompt != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: cfg.SystemPrompt}}}
	}
	if len(messages) == 0 {
		req.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}}
		return req
	}
	for _, m := range messages {
		role := m.Role
		switch role {
		case "assistant":
			role = "model"
		case "system":
			// System turns ride in systemInstruction.
			if req.SystemInstruction == nil {
				req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
			}
			continue
		default:
			role = "user"
		}
		req.Contents = append(req.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	return req
}

func joinPrompt(prompt string, messages []Message) string {
	if len(messages) == 0 {
		return prompt
	}
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// FetchModels lists Google publisher models reachable with the credential.
func (a *VertexAdapter) FetchModels(ctx context.Context, cred Credential) map[string]ModelInfo {
	base, _, _, errEndpoint := a.endpoint(cred)
	if errEndpoint != nil {
		log.WithError(errEndpoint).Debug("google: fetch models skipped")
		return map[string]ModelInfo{}
	}
	bearer, errToken := a.token(ctx, RepairServiceAccountJSON(cred.APIKey))
	if errToken != nil {
		log.WithError(errToken).Debug("google: fetch models token failed")
		return map[string]ModelInfo{}
	}

	url := base + "/v1beta1/publishers/google/models"
	status, body, err := doJSON(ctx, a.client, http.MethodGet, url, map[string]string{"Authorization": "Bearer " + bearer}, nil)
	if err != nil || status != http.StatusOK {
		log.WithField("status", status).WithError(err).Debug("google: fetch models failed")
		return map[string]ModelInfo{}
	}

	var parsed struct {
		PublisherModels []struct {
			Name string `json:"name"`
		} `json:"publisherModels"`
	}
	if errDecode := json.Unmarshal(body, &parsed); errDecode != nil {
		log.WithError(errDecode).Debug("google: decode models response failed")
		return map[string]ModelInfo{}
	}

	out := make(map[string]ModelInfo, len(parsed.PublisherModels))
	for _, m := range parsed.PublisherModels {
		// Names arrive as publishers/google/models/<id>.
		id := strings.TrimSpace(m.Name)
		if idx := strings.LastIndex(id, "/"); idx >= 0 {
			id = id[idx+1:]
		}
		if id == "" {
			continue
		}
		info := ModelInfo{Provider: Google, ModelID: id, ProviderModel: id, DisplayName: id, Category: "chat", InputCap: 32768, OutputCap: 4096}
		for _, tier := range geminiCapTiers {
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

// Probe validates the service account by running the token exchange and a
// model listing request.
func (a *VertexAdapter) Probe(ctx context.Context, cred Credential) error {
	base, _, _, errEndpoint := a.endpoint(cred)
	if errEndpoint != nil {
		return errEndpoint
	}
	bearer, errToken := a.token(ctx, RepairServiceAccountJSON(cred.APIKey))
	if errToken != nil {
		return fmt.Errorf("google: %w", errToken)
	}
	status, body, err := doJSON(ctx, a.client, http.MethodGet, base+"/v1beta1/publishers/google/models", map[string]string{"Authorization": "Bearer " + bearer}, nil)
	if err != nil {
		return fmt.Errorf("google: probe failed: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("google: probe status %d: %s", status, truncateBody(body))
	}
	return nil
}
