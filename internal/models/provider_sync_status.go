package models

import "time"

// Sync statuses recorded per (workspace, provider).
const (
	SyncStatusInProgress = "in_progress"
	SyncStatusSuccess    = "success"
	SyncStatusFailed     = "failed"
)

// ProviderSyncStatus tracks the last model capability sync per workspace and provider.
type ProviderSyncStatus struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	WorkspaceID string `gorm:"type:varchar(64);not null;uniqueIndex:idx_sync_status_workspace_provider"` // Owning workspace.
	Provider    string `gorm:"type:varchar(64);not null;uniqueIndex:idx_sync_status_workspace_provider"` // Canonical provider name.

	Status       string     `gorm:"type:varchar(16);not null"` // in_progress, success or failed.
	LastSync     *time.Time ``                                 // Completion time of the last attempt.
	ErrorMessage string     `gorm:"type:text"`                 // Failure detail, empty on success.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
