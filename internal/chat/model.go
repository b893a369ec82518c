package chat

import (
	"time"
)

// Workspace is a tenant boundary owning channels and members.
type Workspace struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	OwnerID   string    `gorm:"column:owner_id;size:190;not null;index"`
	Name      string    `gorm:"column:name;size:255;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing workspaces.
func (Workspace) TableName() string {
	return "workspaces"
}

// Channel is a named conversation inside a workspace.
type Channel struct {
	ID          string    `gorm:"column:id;primaryKey;size:190;not null"`
	WorkspaceID string    `gorm:"column:workspace_id;size:190;not null;index"`
	Name        string    `gorm:"column:name;size:255;not null"`
	CreatedBy   string    `gorm:"column:created_by;size:190;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing channels.
func (Channel) TableName() string {
	return "channels"
}

// WorkspaceMember records a user's membership in a workspace.
type WorkspaceMember struct {
	ID          string    `gorm:"column:id;primaryKey;size:190;not null"`
	WorkspaceID string    `gorm:"column:workspace_id;size:190;not null;index:idx_workspace_user"`
	UserID      string    `gorm:"column:user_id;size:190;not null;index:idx_workspace_user"`
	Role        string    `gorm:"column:role;size:32;not null;default:member"`
	JoinedAt    time.Time `gorm:"column:joined_at;autoCreateTime"`
}

// TableName exposes the table backing workspace memberships.
func (WorkspaceMember) TableName() string {
	return "workspace_members"
}

// Message is one persisted chat message.
type Message struct {
	ID              string    `gorm:"column:id;primaryKey;size:190;not null"`
	ChannelID       string    `gorm:"column:channel_id;size:190;not null;index"`
	ChannelName     string    `gorm:"column:channel_name;size:255"`
	UserID          string    `gorm:"column:user_id;size:190;not null;index"`
	Content         string    `gorm:"column:content;type:text"`
	ParentMessageID *string   `gorm:"column:parent_message_id;size:190"`
	AttachmentsJSON string    `gorm:"column:attachments;type:text"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing messages.
func (Message) TableName() string {
	return "messages"
}
