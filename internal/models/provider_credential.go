package models

import (
	"time"

	"gorm.io/datatypes"
)

// Credential test statuses.
const (
	TestStatusUnknown   = "unknown"
	TestStatusTesting   = "testing"
	TestStatusConnected = "connected"
	TestStatusFailed    = "failed"
)

// ProviderCredential stores one workspace-scoped upstream provider credential.
type ProviderCredential struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	WorkspaceID string `gorm:"type:varchar(64);not null;uniqueIndex:idx_credentials_workspace_provider"` // Owning workspace.
	Provider    string `gorm:"type:varchar(64);not null;uniqueIndex:idx_credentials_workspace_provider"` // Canonical provider name.

	EncryptedAPIKey string         `gorm:"type:text"`        // AEAD-encrypted API key or service-account blob.
	EndpointURL     string         `gorm:"type:text"`        // Base endpoint override (Azure resource URL etc).
	APIVersion      string         `gorm:"type:varchar(64)"` // Provider API version.
	OrganizationID  string         `gorm:"type:text"`        // Provider organization or project ID.
	DeploymentNames datatypes.JSON `gorm:"type:jsonb"`       // Azure deployment names list.
	Metadata        datatypes.JSON `gorm:"type:jsonb"`       // Provider-specific extras (Google project, region, ...).

	LastTestStatus string     `gorm:"type:varchar(16);not null;default:'unknown'"` // Connectivity probe status.
	LastTestedAt   *time.Time ``                                                   // Last probe completion time.
	LastTestError  string     `gorm:"type:text"`                                   // Last probe error message.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
