package chat

import (
	"context"
	"errors"
	"fmt"

	"modelcore/internal/intent"
	"modelcore/internal/modelconfig"
	"modelcore/internal/provider"
	"modelcore/internal/registry"
	"modelcore/internal/syncer"
	"modelcore/internal/thread"

	log "github.com/sirupsen/logrus"
)

// Configuration errors surfaced to the HTTP layer as 4xx.
var (
	ErrNoModel       = errors.New("chat: no model requested and no workspace default set")
	ErrUnknownModel  = errors.New("chat: model is not known to the registry")
	ErrNoCredentials = errors.New("chat: no credentials configured for provider")
)

// credentialSource releases verified credentials for live provider calls.
type credentialSource interface {
	GetUsable(ctx context.Context, workspaceID, providerName string) (provider.Credential, bool)
}

// Override carries per-request generation overrides, applied on top of the
// stored workspace configuration and clamped to the model's output cap.
type Override struct {
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
}

// Validate checks the override ranges. Out-of-range values are rejected up
// front, never silently dropped; the output-cap clamp is the only coercion
// applied to an accepted override.
func (o *Override) Validate() error {
	if o == nil {
		return nil
	}
	if o.Temperature != nil && (*o.Temperature < 0 || *o.Temperature > 2) {
		return &modelconfig.ValidationError{Field: "temperature", Message: "must be between 0 and 2"}
	}
	if o.MaxTokens != nil && *o.MaxTokens <= 0 {
		return &modelconfig.ValidationError{Field: "max_tokens", Message: "must be greater than 0"}
	}
	return nil
}

// Request is one chat invocation.
type Request struct {
	WorkspaceID        string        `json:"-"`
	ThreadID           uint64        `json:"thread_id"`
	Model              string        `json:"model"`
	Prompt             string        `json:"prompt"`
	ContextItems       []ContextItem `json:"context_items"`
	Documents          []Document    `json:"documents"`
	Override           *Override     `json:"override"`
	SecondOpinionModel string        `json:"second_opinion_model"`
}

// Opinion is the outcome of the optional second-opinion call.
type Opinion struct {
	Model     string              `json:"model"`
	Provider  string              `json:"provider"`
	Success   bool                `json:"success"`
	Text      string              `json:"text,omitempty"`
	Usage     provider.Usage      `json:"usage"`
	LatencyMS int64               `json:"latency_ms"`
	Error     *provider.CallError `json:"provider_error,omitempty"`
}

// Response is the normalized chat outcome. Provider failures are reported
// here with Success=false rather than as Go errors.
type Response struct {
	Success       bool                `json:"success"`
	ThreadID      uint64              `json:"thread_id,omitempty"`
	Model         string              `json:"model"`
	Provider      string              `json:"provider"`
	Text          string              `json:"text,omitempty"`
	Usage         provider.Usage      `json:"usage"`
	LatencyMS     int64               `json:"latency_ms"`
	Intent        intent.Result       `json:"intent"`
	Error         *provider.CallError `json:"provider_error,omitempty"`
	SecondOpinion *Opinion            `json:"second_opinion,omitempty"`
}

// Service orchestrates one chat request: resolve the effective
// configuration, fetch a verified credential, assemble the message list,
// place the provider call, and persist the turns.
type Service struct {
	resolver    *modelconfig.Resolver
	registry    *registry.Registry
	credentials credentialSource
	adapters    *provider.Set
	threads     *thread.Store
	sync        *syncer.Syncer
}

// NewService constructs a chat service. sync may be nil to disable the
// automatic staleness-triggered catalog refresh.
func NewService(resolver *modelconfig.Resolver, reg *registry.Registry, credentials credentialSource, adapters *provider.Set, threads *thread.Store, sync *syncer.Syncer) *Service {
	return &Service{
		resolver:    resolver,
		registry:    reg,
		credentials: credentials,
		adapters:    adapters,
		threads:     threads,
		sync:        sync,
	}
}

// Handle runs the full pipeline and persists the conversation. The turn
// stored for the user is the raw prompt; the annotated prompt only travels
// to the provider.
func (s *Service) Handle(ctx context.Context, req Request) (*Response, error) {
	return s.run(ctx, req, true)
}

// Validate runs the same pipeline without persisting anything, so operators
// can verify a workspace's configuration end to end.
func (s *Service) Validate(ctx context.Context, req Request) (*Response, error) {
	return s.run(ctx, req, false)
}

func (s *Service) run(ctx context.Context, req Request, persist bool) (*Response, error) {
	if err := req.Override.Validate(); err != nil {
		return nil, err
	}

	modelID := req.Model
	if modelID == "" {
		fallback, err := s.resolver.DefaultModel(ctx, req.WorkspaceID)
		if err != nil {
			return nil, err
		}
		if fallback == "" {
			return nil, ErrNoModel
		}
		modelID = fallback
	}

	s.maybeTriggerSync(ctx, req.WorkspaceID)

	effective := s.resolver.ComputeEffectiveConfig(ctx, req.WorkspaceID, modelID)
	if effective.Provider == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	s.applyOverride(ctx, &effective, req.Override, req.WorkspaceID)

	cred, ok := s.credentials.GetUsable(ctx, req.WorkspaceID, effective.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoCredentials, effective.Provider)
	}

	intentResult := intent.Classify(req.Prompt)
	annotated := BuildPrompt(req.Prompt, req.ContextItems, req.Documents, intentResult.Label)

	threadID := req.ThreadID
	var history []provider.Message
	if persist {
		if threadID == 0 {
			created, errCreate := s.threads.Create(ctx, req.WorkspaceID, threadTitle(req.Prompt))
			if errCreate != nil {
				return nil, errCreate
			}
			threadID = created.ID
		} else {
			prior, errHistory := s.threads.History(ctx, req.WorkspaceID, threadID)
			if errHistory != nil {
				return nil, errHistory
			}
			history = prior
		}
	}

	messages := AssembleMessages(history, annotated, effective.SystemPrompt)
	result := s.adapters.Call(ctx, effective.Provider, modelID, annotated, messages, effective.GenerationConfig, cred)

	resp := &Response{
		Success:   result.Success,
		Model:     modelID,
		Provider:  effective.Provider,
		Text:      result.Text,
		Usage:     result.Usage,
		LatencyMS: result.LatencyMS,
		Intent:    intentResult,
		Error:     result.Error,
	}

	if persist {
		resp.ThreadID = threadID
		if err := s.threads.AppendTurn(ctx, threadID, "user", req.Prompt, "", nil); err != nil {
			return nil, err
		}
		if result.Success {
			meta := &thread.TurnMetadata{
				Provider:  effective.Provider,
				LatencyMS: result.LatencyMS,
				Usage:     &result.Usage,
			}
			if err := s.threads.AppendTurn(ctx, threadID, "assistant", result.Text, modelID, meta); err != nil {
				return nil, err
			}
		}
	}

	// The second opinion runs strictly after the primary turns are
	// persisted, so a failure here cannot lose the primary exchange.
	if req.SecondOpinionModel != "" && req.SecondOpinionModel != modelID {
		resp.SecondOpinion = s.secondOpinion(ctx, req, annotated, messages, persist, threadID)
	}

	return resp, nil
}

func (s *Service) secondOpinion(ctx context.Context, req Request, annotated string, messages []provider.Message, persist bool, threadID uint64) *Opinion {
	modelID := req.SecondOpinionModel
	effective := s.resolver.ComputeEffectiveConfig(ctx, req.WorkspaceID, modelID)
	if effective.Provider == "" {
		return &Opinion{Model: modelID, Error: &provider.CallError{Kind: provider.ErrModelNotFound, Message: "model is not known to the registry"}}
	}
	cred, ok := s.credentials.GetUsable(ctx, req.WorkspaceID, effective.Provider)
	if !ok {
		return &Opinion{Model: modelID, Provider: effective.Provider, Error: &provider.CallError{Kind: provider.ErrAuth, Message: "no credentials configured"}}
	}

	result := s.adapters.Call(ctx, effective.Provider, modelID, annotated, messages, effective.GenerationConfig, cred)
	opinion := &Opinion{
		Model:     modelID,
		Provider:  effective.Provider,
		Success:   result.Success,
		Text:      result.Text,
		Usage:     result.Usage,
		LatencyMS: result.LatencyMS,
		Error:     result.Error,
	}

	if persist && result.Success {
		meta := &thread.TurnMetadata{
			Provider:  effective.Provider,
			LatencyMS: result.LatencyMS,
			Usage:     &result.Usage,
			Note:      "second opinion",
		}
		if err := s.threads.AppendTurn(ctx, threadID, "assistant", result.Text, modelID, meta); err != nil {
			log.WithError(err).Warn("second opinion persist failed")
		}
	}
	return opinion
}

// applyOverride layers validated per-request values on top of the stored
// configuration, re-clamping max_tokens to the model's output cap.
func (s *Service) applyOverride(ctx context.Context, effective *modelconfig.Effective, override *Override, workspaceID string) {
	if override == nil {
		return
	}
	if override.Temperature != nil {
		effective.Temperature = *override.Temperature
	}
	if override.MaxTokens != nil {
		effective.MaxTokens = *override.MaxTokens
		if info, ok := s.registry.GetModelInfo(ctx, effective.ModelID, workspaceID); ok && info.OutputCap > 0 && effective.MaxTokens > info.OutputCap {
			effective.MaxTokens = info.OutputCap
		}
	}
}

func (s *Service) maybeTriggerSync(ctx context.Context, workspaceID string) {
	if s.sync == nil || !s.sync.NeedsSync(ctx, workspaceID) {
		return
	}
	if _, err := s.sync.Submit(workspaceID); err != nil {
		log.WithError(err).WithField("workspace", workspaceID).Debug("automatic sync trigger skipped")
	}
}

func threadTitle(prompt string) string {
	const maxTitle = 80
	runes := []rune(prompt)
	if len(runes) <= maxTitle {
		return prompt
	}
	return string(runes[:maxTitle])
}
