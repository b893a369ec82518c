// Package rooms drives the join/leave protocol on top of the presence
// store, enforcing that a connection occupies at most one room at a time.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/collabai/chat-backend/internal/presence"
	"github.com/collabai/chat-backend/internal/protocol"
	"go.uber.org/zap"
)

var (
	// ErrSessionNotFound indicates the connection has no presence metadata;
	// the store lost or expired the session and the client should reconnect.
	ErrSessionNotFound = errors.New("rooms: session not found")

	errMissingStore       = errors.New("rooms: presence store required")
	errMissingBroadcaster = errors.New("rooms: broadcaster required")
)

// Broadcaster delivers frames to connections. Implemented by the gateway's
// fan-out over the local connection registry.
type Broadcaster interface {
	SendToConnection(connID string, payload []byte)
	BroadcastToRoom(ctx context.Context, roomID string, payload []byte) (sent, skipped int)
}

// RoomID derives the room key for a workspace and channel pair.
func RoomID(workspaceID, channelID string) string {
	return workspaceID + ":" + channelID
}

// ServiceConfig describes the dependencies of the room membership service.
type ServiceConfig struct {
	Store       *presence.Store
	Broadcaster Broadcaster
	Logger      *zap.Logger
	Clock       func() time.Time
}

// Service implements the join/leave sequence.
type Service struct {
	store       *presence.Store
	broadcaster Broadcaster
	logger      *zap.Logger
	clock       func() time.Time
}

// NewService constructs the room membership service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Broadcaster == nil {
		return nil, errMissingBroadcaster
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:       cfg.Store,
		broadcaster: cfg.Broadcaster,
		logger:      logger,
		clock:       clock,
	}, nil
}

// Join moves the connection into the target room, leaving any previous room
// implicitly. On success the joiner receives a CHANNEL_JOINED ack and the
// whole room, joiner included, receives a USER_JOINED presence event.
func (s *Service) Join(ctx context.Context, connID, workspaceID, channelID string) error {
	meta, err := s.store.Metadata(ctx, connID)
	if errors.Is(err, presence.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("rooms: join lookup: %w", err)
	}

	roomID := RoomID(workspaceID, channelID)
	if err := s.store.SetRoom(ctx, connID, roomID); err != nil {
		return fmt.Errorf("rooms: join: %w", err)
	}

	// A switch implicitly leaves the previous room; its remaining members
	// still deserve the departure event. Broadcast after the removal so the
	// switcher itself is no longer a recipient there.
	if meta.CurrentRoom != nil && *meta.CurrentRoom != roomID {
		s.broadcaster.BroadcastToRoom(ctx, *meta.CurrentRoom, protocol.UserLeft(meta.UserID, meta.UserEmail, s.clock()))
	}

	s.broadcaster.SendToConnection(connID, protocol.ChannelJoined(workspaceID, channelID, roomID))

	sent, skipped := s.broadcaster.BroadcastToRoom(ctx, roomID, protocol.UserJoined(meta.UserID, meta.UserEmail, s.clock()))
	s.logger.Info("connection joined room",
		zap.String("connectionId", connID),
		zap.String("roomId", roomID),
		zap.String("userId", meta.UserID),
		zap.Int("sent", sent),
		zap.Int("skipped", skipped))
	return nil
}

// Leave removes the connection from the room. USER_LEFT is broadcast before
// the membership removal so the leaving connection observes its own
// departure; the removal itself is best-effort. A connection with no
// metadata is already gone and leaves nothing to do.
func (s *Service) Leave(ctx context.Context, connID, workspaceID, channelID string) error {
	meta, err := s.store.Metadata(ctx, connID)
	if errors.Is(err, presence.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("rooms: leave lookup: %w", err)
	}

	roomID := RoomID(workspaceID, channelID)
	s.broadcaster.BroadcastToRoom(ctx, roomID, protocol.UserLeft(meta.UserID, meta.UserEmail, s.clock()))

	s.store.ClearRoom(ctx, connID, roomID)

	s.broadcaster.SendToConnection(connID, protocol.ChannelLeft(workspaceID, channelID))

	s.logger.Info("connection left room",
		zap.String("connectionId", connID),
		zap.String("roomId", roomID),
		zap.String("userId", meta.UserID))
	return nil
}
