package models

import (
	"time"

	"gorm.io/datatypes"
)

// WorkspaceModelSetting stores per-workspace overrides for one model.
//
// All generation fields are nullable: only non-null values override the
// system defaults when the effective configuration is computed. At most one
// row per workspace carries IsDefault = true.
type WorkspaceModelSetting struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	WorkspaceID string `gorm:"type:varchar(64);not null;uniqueIndex:idx_model_settings_workspace_model"`  // Owning workspace.
	ModelID     string `gorm:"type:varchar(255);not null;uniqueIndex:idx_model_settings_workspace_model"` // Target model.

	Temperature  *float64 `gorm:"type:decimal(4,2)"` // Sampling temperature override.
	MaxTokens    *int     ``                         // Max output tokens override.
	SystemPrompt *string  `gorm:"type:text"`         // System prompt override.
	ToolChoice   *string  `gorm:"type:varchar(16)"`  // Tool choice override (auto|none|required).

	UsageControl datatypes.JSON `gorm:"type:jsonb"` // Usage-control policy blob.
	CostControl  datatypes.JSON `gorm:"type:jsonb"` // Cost-control policy blob.

	IsDefault bool   `gorm:"not null;default:false;index"` // Workspace default-model flag.
	UpdatedBy string `gorm:"type:varchar(128)"`            // Last editor.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
