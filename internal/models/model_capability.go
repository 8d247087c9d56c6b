package models

import "time"

// Capability sync sources.
const (
	SyncSourceManual = "manual"
	SyncSourceAPI    = "api"
)

// ModelCapability stores provider model limits and classification.
//
// Rows with SyncSource "manual" are operator-curated and must never be
// overwritten by automatic sync; rows are disabled rather than deleted.
type ModelCapability struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Provider string `gorm:"type:varchar(64);not null;uniqueIndex:idx_capabilities_provider_model"`  // Canonical provider name.
	ModelID  string `gorm:"type:varchar(255);not null;uniqueIndex:idx_capabilities_provider_model"` // Model identifier exposed to callers.

	ProviderModel string `gorm:"type:varchar(255)"` // Upstream model name when it differs from ModelID.
	DisplayName   string `gorm:"type:varchar(255)"` // Human-readable name.
	Category      string `gorm:"type:varchar(64)"`  // Capability category (chat, reasoning, ...).

	InputCap  int `gorm:"not null;default:0"` // Max input tokens.
	OutputCap int `gorm:"not null;default:0"` // Max output tokens.

	SyncSource string `gorm:"type:varchar(16);not null;default:'api'"` // "manual" or "api".
	Disabled   bool   `gorm:"not null;default:false"`                  // Soft-delete flag.

	LastSeenAt time.Time `gorm:"not null;index"`          // Last sync that reported the model.
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt  time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
