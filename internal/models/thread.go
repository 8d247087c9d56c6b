package models

import (
	"time"

	"gorm.io/datatypes"
)

// Thread is one chat conversation owned by a workspace.
type Thread struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	WorkspaceID string `gorm:"type:varchar(64);not null;index"` // Owning workspace.
	Title       string `gorm:"type:text"`                       // Display title.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// ThreadMessage is one ordered turn inside a thread.
type ThreadMessage struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key, defines turn order.

	ThreadID uint64 `gorm:"not null;index"`            // Owning thread.
	Role     string `gorm:"type:varchar(16);not null"` // system, user or assistant.
	Content  string `gorm:"type:text;not null"`        // Turn text.

	Model    string         `gorm:"type:varchar(255)"` // Model that produced an assistant turn.
	Metadata datatypes.JSON `gorm:"type:jsonb"`        // Usage, latency and other call metadata.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
