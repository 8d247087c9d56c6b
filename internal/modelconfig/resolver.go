package modelconfig

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"modelcore/internal/models"
	"modelcore/internal/provider"
	"modelcore/internal/registry"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// System defaults applied before workspace overrides.
const (
	DefaultTemperature = 0.7
	DefaultToolChoice  = "auto"

	// fallbackMaxTokens is used when the model is unknown to the registry
	// and no override exists. Conservative on purpose.
	fallbackMaxTokens = 1000
)

// defaultMaxTokens is per-provider policy data, editable without touching
// the merge algorithm.
var defaultMaxTokens = map[string]int{
	provider.OpenAI:      4096,
	provider.AzureOpenAI: 4096,
	provider.Anthropic:   4096,
	provider.Google:      2048,
}

// Effective is the merged configuration for one (workspace, model) pair.
type Effective struct {
	Provider string // Canonical provider, empty when the model is unknown.
	ModelID  string
	provider.GenerationConfig
}

// Resolver merges system defaults, registry caps and workspace overrides.
type Resolver struct {
	db       *gorm.DB
	registry *registry.Registry
}

// NewResolver constructs a Resolver.
func NewResolver(db *gorm.DB, reg *registry.Registry) *Resolver {
	return &Resolver{db: db, registry: reg}
}

// ComputeEffectiveConfig produces the configuration for one call. It never
// fails: a missing setting row means "no override", a registry miss falls
// back to conservative defaults, and max_tokens is clamped to the model's
// output cap when both are known.
func (r *Resolver) ComputeEffectiveConfig(ctx context.Context, workspaceID, modelID string) Effective {
	info, known := r.registry.GetModelInfo(ctx, modelID, workspaceID)

	effective := Effective{
		ModelID: modelID,
		GenerationConfig: provider.GenerationConfig{
			Temperature: DefaultTemperature,
			MaxTokens:   fallbackMaxTokens,
			ToolChoice:  DefaultToolChoice,
		},
	}
	if known {
		effective.Provider = info.Provider
		if base, ok := defaultMaxTokens[info.Provider]; ok {
			effective.MaxTokens = base
		}
	}

	var setting models.WorkspaceModelSetting
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND model_id = ?", workspaceID, modelID).
		First(&setting).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// No override stored.
	case err != nil:
		log.WithError(err).WithFields(log.Fields{"workspace": workspaceID, "model": modelID}).Warn("model setting lookup failed")
	default:
		if setting.Temperature != nil {
			effective.Temperature = *setting.Temperature
		}
		if setting.MaxTokens != nil {
			effective.MaxTokens = *setting.MaxTokens
		}
		if setting.SystemPrompt != nil {
			effective.SystemPrompt = *setting.SystemPrompt
		}
		if setting.ToolChoice != nil {
			effective.ToolChoice = *setting.ToolChoice
		}
	}

	if known && info.OutputCap > 0 && effective.MaxTokens > info.OutputCap {
		effective.MaxTokens = info.OutputCap
	}
	return effective
}

// UpdateInput carries a partial settings update. Only non-nil fields are
// applied, so a partial update cannot null out previously stored values.
type UpdateInput struct {
	Temperature  *float64 `json:"temperature"`
	MaxTokens    *int     `json:"max_tokens"`
	SystemPrompt *string  `json:"system_prompt"`
	ToolChoice   *string  `json:"tool_choice"`
	UpdatedBy    string   `json:"-"`
}

// ValidationError reports a rejected field value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

var validToolChoices = map[string]struct{}{"auto": {}, "none": {}, "required": {}}

// Validate checks field ranges before anything is persisted.
func (in *UpdateInput) Validate() error {
	if in.Temperature != nil && (*in.Temperature < 0 || *in.Temperature > 2) {
		return &ValidationError{Field: "temperature", Message: "must be between 0 and 2"}
	}
	if in.MaxTokens != nil && *in.MaxTokens <= 0 {
		return &ValidationError{Field: "max_tokens", Message: "must be greater than 0"}
	}
	if in.ToolChoice != nil {
		if _, ok := validToolChoices[strings.TrimSpace(*in.ToolChoice)]; !ok {
			return &ValidationError{Field: "tool_choice", Message: "must be one of auto, none, required"}
		}
	}
	return nil
}

// UpdateModelConfig validates and upserts a workspace's override row for one
// model. max_tokens is clamped to the model's output cap before persisting.
func (r *Resolver) UpdateModelConfig(ctx context.Context, workspaceID, modelID string, in UpdateInput) (*models.WorkspaceModelSetting, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	workspaceID = strings.TrimSpace(workspaceID)
	modelID = strings.TrimSpace(modelID)
	if workspaceID == "" || modelID == "" {
		return nil, &ValidationError{Field: "model_id", Message: "workspace and model are required"}
	}

	if in.MaxTokens != nil {
		if info, ok := r.registry.GetModelInfo(ctx, modelID, workspaceID); ok && info.OutputCap > 0 && *in.MaxTokens > info.OutputCap {
			clamped := info.OutputCap
			in.MaxTokens = &clamped
		}
	}

	var row models.WorkspaceModelSetting
	errTx := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		errFind := tx.Where("workspace_id = ? AND model_id = ?", workspaceID, modelID).First(&row).Error
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			row = models.WorkspaceModelSetting{WorkspaceID: workspaceID, ModelID: modelID}
		} else if errFind != nil {
			return fmt.Errorf("modelconfig: load: %w", errFind)
		}

		if in.Temperature != nil {
			row.Temperature = in.Temperature
		}
		if in.MaxTokens != nil {
			row.MaxTokens = in.MaxTokens
		}
		if in.SystemPrompt != nil {
			row.SystemPrompt = in.SystemPrompt
		}
		if in.ToolChoice != nil {
			choice := strings.TrimSpace(*in.ToolChoice)
			row.ToolChoice = &choice
		}
		if in.UpdatedBy != "" {
			row.UpdatedBy = in.UpdatedBy
		}

		if errSave := tx.Save(&row).Error; errSave != nil {
			return fmt.Errorf("modelconfig: save: %w", errSave)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &row, nil
}

// SetDefaultModel makes modelID the workspace default. The clear-then-set
// pair runs in one transaction so concurrent writers cannot leave zero or
// two defaults behind.
func (r *Resolver) SetDefaultModel(ctx context.Context, workspaceID, modelID string) error {
	workspaceID = strings.TrimSpace(workspaceID)
	modelID = strings.TrimSpace(modelID)
	if workspaceID == "" || modelID == "" {
		return &ValidationError{Field: "model_id", Message: "workspace and model are required"}
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.WorkspaceModelSetting{}).
			Where("workspace_id = ? AND is_default = ?", workspaceID, true).
			Update("is_default", false).Error; err != nil {
			return fmt.Errorf("modelconfig: clear default: %w", err)
		}

		var row models.WorkspaceModelSetting
		errFind := tx.Where("workspace_id = ? AND model_id = ?", workspaceID, modelID).First(&row).Error
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			row = models.WorkspaceModelSetting{WorkspaceID: workspaceID, ModelID: modelID}
		} else if errFind != nil {
			return fmt.Errorf("modelconfig: load: %w", errFind)
		}
		row.IsDefault = true
		if errSave := tx.Save(&row).Error; errSave != nil {
			return fmt.Errorf("modelconfig: set default: %w", errSave)
		}
		return nil
	})
}

// DefaultModel returns the workspace's default model id, empty when unset.
func (r *Resolver) DefaultModel(ctx context.Context, workspaceID string) (string, error) {
	var row models.WorkspaceModelSetting
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND is_default = ?", workspaceID, true).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("modelconfig: default lookup: %w", err)
	}
	return row.ModelID, nil
}

// ListSettings returns all override rows for a workspace.
func (r *Resolver) ListSettings(ctx context.Context, workspaceID string) ([]models.WorkspaceModelSetting, error) {
	var rows []models.WorkspaceModelSetting
	if err := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("model_id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("modelconfig: list: %w", err)
	}
	return rows, nil
}
