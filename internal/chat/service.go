// Package chat persists messages and answers workspace membership queries
// for the gateway's authorization checks.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrInvalidSaveRequest = errors.New("chat: user id, channel id, and content are required")

	errMissingDatabase = errors.New("chat: database connection required")
)

// ServiceConfig describes the dependencies required by the chat service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service answers membership checks and stores messages.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs the chat service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// IsMember reports whether the channel belongs to the workspace and the user
// is the workspace owner or a recorded member.
func (s *Service) IsMember(ctx context.Context, workspaceID, channelID, userID string) (bool, error) {
	var channelCount int64
	err := s.db.WithContext(ctx).
		Model(&Channel{}).
		Where("id = ? AND workspace_id = ?", channelID, workspaceID).
		Count(&channelCount).
		Error
	if err != nil {
		return false, fmt.Errorf("chat: channel lookup: %w", err)
	}
	if channelCount == 0 {
		return false, nil
	}

	var workspace Workspace
	err = s.db.WithContext(ctx).
		Where("id = ?", workspaceID).
		First(&workspace).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("chat: workspace lookup: %w", err)
	}
	if workspace.OwnerID == userID {
		return true, nil
	}

	var memberCount int64
	err = s.db.WithContext(ctx).
		Model(&WorkspaceMember{}).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		Count(&memberCount).
		Error
	if err != nil {
		return false, fmt.Errorf("chat: membership lookup: %w", err)
	}
	return memberCount > 0, nil
}

// SaveMessageRequest captures a message to persist. Identity fields come
// from presence metadata, never from client payloads.
type SaveMessageRequest struct {
	UserID          string
	ChannelID       string
	ChannelName     string
	Content         string
	ParentMessageID *string
	Attachments     []json.RawMessage
}

// SavedMessage is the persisted result returned to the gateway.
type SavedMessage struct {
	ID        string
	CreatedAt time.Time
}

// SaveMessage stores one message and returns its id and creation time.
func (s *Service) SaveMessage(ctx context.Context, req SaveMessageRequest) (SavedMessage, error) {
	if strings.TrimSpace(req.UserID) == "" ||
		strings.TrimSpace(req.ChannelID) == "" ||
		strings.TrimSpace(req.Content) == "" {
		return SavedMessage{}, ErrInvalidSaveRequest
	}

	attachments := "[]"
	if len(req.Attachments) > 0 {
		encoded, err := json.Marshal(req.Attachments)
		if err != nil {
			return SavedMessage{}, fmt.Errorf("chat: encode attachments: %w", err)
		}
		attachments = string(encoded)
	}

	message := Message{
		ID:              uuid.NewString(),
		ChannelID:       req.ChannelID,
		ChannelName:     req.ChannelName,
		UserID:          req.UserID,
		Content:         req.Content,
		ParentMessageID: req.ParentMessageID,
		AttachmentsJSON: attachments,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
		return SavedMessage{}, fmt.Errorf("chat: save message: %w", err)
	}
	return SavedMessage{ID: message.ID, CreatedAt: message.CreatedAt}, nil
}
