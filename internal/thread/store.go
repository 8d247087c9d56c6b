// Package thread persists conversations and replays them as ordered message
// lists for provider calls.
package thread

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"modelcore/internal/models"
	"modelcore/internal/provider"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrNotFound indicates the thread does not exist or belongs to another
// workspace.
var ErrNotFound = errors.New("thread: not found")

// Store reads and writes chat threads.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a thread store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create opens a new thread for a workspace.
func (s *Store) Create(ctx context.Context, workspaceID, title string) (*models.Thread, error) {
	row := models.Thread{WorkspaceID: strings.TrimSpace(workspaceID), Title: title}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("thread: create: %w", err)
	}
	return &row, nil
}

// Get loads a thread, scoped to the workspace that owns it.
func (s *Store) Get(ctx context.Context, workspaceID string, threadID uint64) (*models.Thread, error) {
	var row models.Thread
	err := s.db.WithContext(ctx).
		Where("id = ? AND workspace_id = ?", threadID, workspaceID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("thread: load: %w", err)
	}
	return &row, nil
}

// Messages returns a thread's turns in insertion order.
func (s *Store) Messages(ctx context.Context, workspaceID string, threadID uint64) ([]models.ThreadMessage, error) {
	if _, err := s.Get(ctx, workspaceID, threadID); err != nil {
		return nil, err
	}
	var rows []models.ThreadMessage
	if err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("thread: messages: %w", err)
	}
	return rows, nil
}

// History replays a thread as provider-agnostic messages in turn order.
func (s *Store) History(ctx context.Context, workspaceID string, threadID uint64) ([]provider.Message, error) {
	rows, err := s.Messages(ctx, workspaceID, threadID)
	if err != nil {
		return nil, err
	}
	history := make([]provider.Message, 0, len(rows))
	for _, row := range rows {
		history = append(history, provider.Message{Role: row.Role, Content: row.Content})
	}
	return history, nil
}

// TurnMetadata is stored alongside an assistant turn.
type TurnMetadata struct {
	Provider  string          `json:"provider,omitempty"`
	LatencyMS int64           `json:"latency_ms,omitempty"`
	Usage     *provider.Usage `json:"usage,omitempty"`
	Note      string          `json:"note,omitempty"`
}

// AppendTurn records one turn. The assistant turn carries the model name
// and call metadata; user turns store the original prompt verbatim.
func (s *Store) AppendTurn(ctx context.Context, threadID uint64, role, content, model string, meta *TurnMetadata) error {
	row := models.ThreadMessage{
		ThreadID: threadID,
		Role:     role,
		Content:  content,
		Model:    model,
	}
	if meta != nil {
		encoded, errEncode := json.Marshal(meta)
		if errEncode != nil {
			return fmt.Errorf("thread: encode metadata: %w", errEncode)
		}
		row.Metadata = datatypes.JSON(encoded)
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("thread: append: %w", err)
	}
	// Bump the thread so List's newest-first order tracks activity, not
	// creation time.
	if err := s.db.WithContext(ctx).Model(&models.Thread{}).
		Where("id = ?", threadID).
		Update("updated_at", time.Now().UTC()).Error; err != nil {
		return fmt.Errorf("thread: touch: %w", err)
	}
	return nil
}

// List returns a workspace's threads, newest first.
func (s *Store) List(ctx context.Context, workspaceID string) ([]models.Thread, error) {
	var rows []models.Thread
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("updated_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("thread: list: %w", err)
	}
	return rows, nil
}
