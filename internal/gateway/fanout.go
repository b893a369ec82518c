package gateway

import (
	"context"

	"github.com/collabai/chat-backend/internal/presence"
	"github.com/collabai/chat-backend/internal/registry"
	"go.uber.org/zap"
)

// Fanout resolves room membership through the presence store and delivers
// frames through the local connection registry. A member with no local
// handle lives on another gateway instance and is counted as skipped; this
// is a known deployment condition, never an error.
type Fanout struct {
	store    *presence.Store
	registry *registry.Registry
	logger   *zap.Logger
}

// NewFanout constructs the fan-out layer.
func NewFanout(store *presence.Store, reg *registry.Registry, logger *zap.Logger) (*Fanout, error) {
	if store == nil {
		return nil, errMissingPresence
	}
	if reg == nil {
		return nil, errMissingRegistry
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{store: store, registry: reg, logger: logger}, nil
}

// SendToConnection delivers a frame to a single connection if it is local.
func (f *Fanout) SendToConnection(connID string, payload []byte) {
	handle, ok := f.registry.Get(connID)
	if !ok {
		f.logger.Debug("connection not resident on this instance",
			zap.String("connectionId", connID))
		return
	}
	if err := handle.Send(payload); err != nil {
		f.logger.Warn("failed to write frame",
			zap.String("connectionId", connID),
			zap.Error(err))
	}
}

// BroadcastToRoom delivers a frame to every room member with a local
// handle and reports sent and skipped counts for diagnostics.
func (f *Fanout) BroadcastToRoom(ctx context.Context, roomID string, payload []byte) (sent, skipped int) {
	members, err := f.store.RoomMembers(ctx, roomID)
	if err != nil {
		f.logger.Warn("broadcast aborted: room membership unavailable",
			zap.String("roomId", roomID),
			zap.Error(err))
		return 0, 0
	}

	for _, connID := range members {
		handle, ok := f.registry.Get(connID)
		if !ok {
			skipped++
			continue
		}
		if err := handle.Send(payload); err != nil {
			f.logger.Warn("failed to write broadcast frame",
				zap.String("connectionId", connID),
				zap.String("roomId", roomID),
				zap.Error(err))
			skipped++
			continue
		}
		sent++
	}

	f.logger.Debug("room broadcast complete",
		zap.String("roomId", roomID),
		zap.Int("sent", sent),
		zap.Int("skipped", skipped))
	return sent, skipped
}
