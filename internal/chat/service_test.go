package chat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?cache=shared", filepath.Join(t.TempDir(), "chat.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&Workspace{}, &Channel{}, &WorkspaceMember{}, &Message{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func seedWorkspace(t *testing.T, service *Service) {
	t.Helper()
	if err := service.db.Create(&Workspace{ID: "ws1", OwnerID: "owner-1", Name: "Acme"}).Error; err != nil {
		t.Fatalf("failed to seed workspace: %v", err)
	}
	if err := service.db.Create(&Channel{ID: "ch1", WorkspaceID: "ws1", Name: "general", CreatedBy: "owner-1"}).Error; err != nil {
		t.Fatalf("failed to seed channel: %v", err)
	}
	if err := service.db.Create(&WorkspaceMember{ID: "m1", WorkspaceID: "ws1", UserID: "member-1", Role: "member"}).Error; err != nil {
		t.Fatalf("failed to seed member: %v", err)
	}
}

func TestIsMember(t *testing.T) {
	service := newTestService(t)
	seedWorkspace(t, service)
	ctx := context.Background()

	cases := []struct {
		name        string
		workspaceID string
		channelID   string
		userID      string
		want        bool
	}{
		{"owner has access", "ws1", "ch1", "owner-1", true},
		{"member has access", "ws1", "ch1", "member-1", true},
		{"stranger denied", "ws1", "ch1", "stranger", false},
		{"channel outside workspace denied", "ws2", "ch1", "owner-1", false},
		{"unknown channel denied", "ws1", "ch9", "owner-1", false},
	}
	for _, tc := range cases {
		got, err := service.IsMember(ctx, tc.workspaceID, tc.channelID, tc.userID)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestSaveMessage(t *testing.T) {
	service := newTestService(t)
	seedWorkspace(t, service)

	saved, err := service.SaveMessage(context.Background(), SaveMessageRequest{
		UserID:      "member-1",
		ChannelID:   "ch1",
		ChannelName: "general",
		Content:     "hello",
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected generated message id")
	}
	if saved.CreatedAt.IsZero() {
		t.Fatal("expected creation time")
	}

	var stored Message
	if err := service.db.First(&stored, "id = ?", saved.ID).Error; err != nil {
		t.Fatalf("failed to read back message: %v", err)
	}
	if stored.UserID != "member-1" || stored.Content != "hello" {
		t.Fatalf("unexpected stored message: %+v", stored)
	}
	if stored.AttachmentsJSON != "[]" {
		t.Fatalf("expected empty attachments encoding, got %q", stored.AttachmentsJSON)
	}
}

func TestSaveMessageRejectsEmptyContent(t *testing.T) {
	service := newTestService(t)

	_, err := service.SaveMessage(context.Background(), SaveMessageRequest{
		UserID:    "member-1",
		ChannelID: "ch1",
		Content:   "   ",
	})
	if !errors.Is(err, ErrInvalidSaveRequest) {
		t.Fatalf("expected invalid request error, got %v", err)
	}
}
