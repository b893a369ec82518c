package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/collabai/chat-backend/internal/chat"
	"github.com/collabai/chat-backend/internal/presence"
	"github.com/collabai/chat-backend/internal/protocol"
	"github.com/collabai/chat-backend/internal/registry"
	"github.com/collabai/chat-backend/internal/rooms"
	"go.uber.org/zap"
)

// User-visible error messages. A caller mistake is reported to that one
// connection only; it never interrupts other connections or rooms.
const (
	msgInvalidJSON       = "Invalid JSON payload"
	msgJoinFields        = "JOIN_CHANNEL requires workspaceId and channelId"
	msgLeaveFields       = "LEAVE_CHANNEL requires workspaceId and channelId"
	msgSendFields        = "message:send requires data.channelId, data.channelName, and data.content"
	msgSessionNotFound   = "Session not found. Please reconnect."
	msgAccessCheckFailed = "Failed to validate workspace access"
	msgAccessDenied      = "Access denied to workspace/channel"
	msgJoinFailed        = "Failed to join channel. Please try again."
	msgNotInRoom         = "You must join a channel before sending messages."
	msgSendFailed        = "Failed to send message. Please try again."
)

func (g *Gateway) handleFrame(ctx context.Context, connID string, sender registry.Handle, raw []byte) {
	frame, err := protocol.ParseClientFrame(raw)
	if errors.Is(err, protocol.ErrMalformedFrame) {
		g.logger.Warn("malformed frame", zap.String("connectionId", connID))
		g.sendError(connID, sender, msgInvalidJSON)
		return
	}
	if errors.Is(err, protocol.ErrMissingFields) {
		g.sendError(connID, sender, missingFieldsMessage(frame.Type))
		return
	}

	switch frame.Type {
	case protocol.TypePing:
		g.send(connID, sender, protocol.Pong())
	case protocol.TypeJoinChannel:
		g.handleJoin(ctx, connID, sender, frame.WorkspaceID, frame.ChannelID)
	case protocol.TypeLeaveChannel:
		if err := g.rooms.Leave(ctx, connID, frame.WorkspaceID, frame.ChannelID); err != nil {
			// Cleanup failures are never user-visible; the TTL backstops.
			g.logger.Warn("leave failed",
				zap.String("connectionId", connID),
				zap.Error(err))
		}
	case protocol.TypeSendMessage:
		g.handleSend(ctx, connID, sender, frame.Data)
	default:
		// Unknown frame types are not errors; the connection stays open.
		g.logger.Info("ignoring unknown frame type",
			zap.String("connectionId", connID),
			zap.String("type", frame.Type))
	}
}

func missingFieldsMessage(frameType string) string {
	switch frameType {
	case protocol.TypeJoinChannel:
		return msgJoinFields
	case protocol.TypeLeaveChannel:
		return msgLeaveFields
	case protocol.TypeSendMessage:
		return msgSendFields
	}
	return msgInvalidJSON
}

// handleJoin authorizes against the workspace membership record and
// delegates to the room membership protocol. Identity comes from presence
// metadata, never from transport-cached fields.
func (g *Gateway) handleJoin(ctx context.Context, connID string, sender registry.Handle, workspaceID, channelID string) {
	meta, err := g.presence.Metadata(ctx, connID)
	if errors.Is(err, presence.ErrNotFound) {
		g.sendError(connID, sender, msgSessionNotFound)
		return
	}
	if err != nil {
		g.logger.Error("metadata lookup failed during join",
			zap.String("connectionId", connID),
			zap.Error(err))
		g.sendError(connID, sender, msgJoinFailed)
		return
	}

	allowed, err := g.membership.IsMember(ctx, workspaceID, channelID, meta.UserID)
	if err != nil {
		g.logger.Error("workspace access check failed",
			zap.String("connectionId", connID),
			zap.String("workspaceId", workspaceID),
			zap.Error(err))
		g.sendError(connID, sender, msgAccessCheckFailed)
		return
	}
	if !allowed {
		g.logger.Warn("workspace access denied",
			zap.String("connectionId", connID),
			zap.String("userId", meta.UserID),
			zap.String("workspaceId", workspaceID),
			zap.String("channelId", channelID))
		g.sendError(connID, sender, msgAccessDenied)
		return
	}

	if err := g.rooms.Join(ctx, connID, workspaceID, channelID); err != nil {
		if errors.Is(err, rooms.ErrSessionNotFound) {
			g.sendError(connID, sender, msgSessionNotFound)
			return
		}
		g.logger.Error("join failed",
			zap.String("connectionId", connID),
			zap.Error(err))
		g.sendError(connID, sender, msgJoinFailed)
	}
}

// handleSend persists the message and broadcasts it to the sender's current
// room. The attributed identity is always the server-held one.
func (g *Gateway) handleSend(ctx context.Context, connID string, sender registry.Handle, data *protocol.SendMessageData) {
	meta, err := g.presence.Metadata(ctx, connID)
	if errors.Is(err, presence.ErrNotFound) {
		g.sendError(connID, sender, msgSessionNotFound)
		return
	}
	if err != nil {
		g.logger.Error("metadata lookup failed during send",
			zap.String("connectionId", connID),
			zap.Error(err))
		g.sendError(connID, sender, msgSendFailed)
		return
	}
	if meta.CurrentRoom == nil {
		g.sendError(connID, sender, msgNotInRoom)
		return
	}

	saved, err := g.messages.SaveMessage(ctx, chat.SaveMessageRequest{
		UserID:          meta.UserID,
		ChannelID:       data.ChannelID,
		ChannelName:     data.ChannelName,
		Content:         data.Content,
		ParentMessageID: data.ParentMessageID,
		Attachments:     data.Attachments,
	})
	if err != nil {
		g.logger.Error("failed to persist message",
			zap.String("connectionId", connID),
			zap.String("channelId", data.ChannelID),
			zap.Error(err))
		g.sendError(connID, sender, msgSendFailed)
		return
	}

	sent, skipped := g.fanout.BroadcastToRoom(ctx, *meta.CurrentRoom, protocol.ReceiveMessage(protocol.ReceiveMessageData{
		ID:          saved.ID,
		TempID:      data.TempID,
		ChannelID:   data.ChannelID,
		ChannelName: data.ChannelName,
		UserID:      meta.UserID,
		UserEmail:   meta.UserEmail,
		Content:     data.Content,
		Timestamp:   saved.CreatedAt.UTC().Format(time.RFC3339),
	}))
	g.logger.Debug("message broadcast",
		zap.String("connectionId", connID),
		zap.String("roomId", *meta.CurrentRoom),
		zap.Int("sent", sent),
		zap.Int("skipped", skipped))
}

func (g *Gateway) send(connID string, sender registry.Handle, payload []byte) {
	if err := sender.Send(payload); err != nil {
		g.logger.Warn("failed to write frame",
			zap.String("connectionId", connID),
			zap.Error(err))
	}
}

func (g *Gateway) sendError(connID string, sender registry.Handle, message string) {
	g.send(connID, sender, protocol.Error(message))
}
