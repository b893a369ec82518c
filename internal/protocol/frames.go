// Package protocol defines the JSON frames exchanged with chat clients,
// one object per websocket message.
package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Client to server frame types.
const (
	TypePing         = "PING"
	TypeJoinChannel  = "JOIN_CHANNEL"
	TypeLeaveChannel = "LEAVE_CHANNEL"
	TypeSendMessage  = "message:send"
)

// Server to client frame types.
const (
	TypeConnected      = "connected"
	TypePong           = "PONG"
	TypeChannelJoined  = "CHANNEL_JOINED"
	TypeChannelLeft    = "CHANNEL_LEFT"
	TypeUserJoined     = "USER_JOINED"
	TypeUserLeft       = "USER_LEFT"
	TypeReceiveMessage = "message:receive"
	TypeError          = "ERROR"
)

var (
	ErrMalformedFrame = errors.New("protocol: malformed frame")
	ErrMissingFields  = errors.New("protocol: missing required fields")
)

// ClientFrame is the envelope for every client-originated message. Fields
// beyond Type are populated depending on the frame type.
type ClientFrame struct {
	Type        string           `json:"type"`
	WorkspaceID string           `json:"workspaceId,omitempty"`
	ChannelID   string           `json:"channelId,omitempty"`
	Data        *SendMessageData `json:"data,omitempty"`
}

// SendMessageData carries the payload of a message:send frame. Identity
// fields are deliberately absent: the sender is always resolved server-side.
type SendMessageData struct {
	ChannelID       string            `json:"channelId"`
	ChannelName     string            `json:"channelName"`
	Content         string            `json:"content"`
	TempID          string            `json:"tempId,omitempty"`
	ParentMessageID *string           `json:"parentMessageId,omitempty"`
	Attachments     []json.RawMessage `json:"attachments,omitempty"`
}

// ParseClientFrame decodes and validates a raw client payload. A decode
// failure yields ErrMalformedFrame; a recognized type with absent required
// fields yields ErrMissingFields alongside the partially decoded frame so
// the caller can report the offending type. Unknown types pass through
// untouched so the caller can apply its forward-compatibility policy.
func ParseClientFrame(raw []byte) (ClientFrame, error) {
	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return ClientFrame{}, ErrMalformedFrame
	}

	switch frame.Type {
	case TypeJoinChannel, TypeLeaveChannel:
		if strings.TrimSpace(frame.WorkspaceID) == "" || strings.TrimSpace(frame.ChannelID) == "" {
			return frame, ErrMissingFields
		}
	case TypeSendMessage:
		if frame.Data == nil ||
			strings.TrimSpace(frame.Data.Content) == "" ||
			strings.TrimSpace(frame.Data.ChannelID) == "" ||
			strings.TrimSpace(frame.Data.ChannelName) == "" {
			return frame, ErrMissingFields
		}
	}
	return frame, nil
}

type connectedFrame struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	UserEmail string `json:"userEmail"`
	SocketID  string `json:"socketId"`
}

type pongFrame struct {
	Type string `json:"type"`
}

type channelFrame struct {
	Type        string `json:"type"`
	WorkspaceID string `json:"workspaceId"`
	ChannelID   string `json:"channelId"`
	RoomID      string `json:"roomId,omitempty"`
}

type presenceFrame struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	UserEmail string `json:"userEmail"`
	Timestamp string `json:"timestamp"`
}

// ReceiveMessageData carries the payload of a message:receive frame.
type ReceiveMessageData struct {
	ID          string `json:"id"`
	TempID      string `json:"tempId,omitempty"`
	ChannelID   string `json:"channelId"`
	ChannelName string `json:"channelName"`
	UserID      string `json:"userId"`
	UserEmail   string `json:"userEmail"`
	Content     string `json:"content"`
	Timestamp   string `json:"timestamp"`
}

type receiveMessageFrame struct {
	Type string             `json:"type"`
	Data ReceiveMessageData `json:"data"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func marshal(frame any) []byte {
	payload, err := json.Marshal(frame)
	if err != nil {
		// Frame structs contain only marshalable fields.
		panic(err)
	}
	return payload
}

// Connected encodes the post-handshake welcome frame.
func Connected(userID, userEmail, socketID string) []byte {
	return marshal(connectedFrame{Type: TypeConnected, UserID: userID, UserEmail: userEmail, SocketID: socketID})
}

// Pong encodes the heartbeat reply.
func Pong() []byte {
	return marshal(pongFrame{Type: TypePong})
}

// ChannelJoined encodes the acknowledgment sent to a joining connection.
func ChannelJoined(workspaceID, channelID, roomID string) []byte {
	return marshal(channelFrame{Type: TypeChannelJoined, WorkspaceID: workspaceID, ChannelID: channelID, RoomID: roomID})
}

// ChannelLeft encodes the acknowledgment sent to a leaving connection.
func ChannelLeft(workspaceID, channelID string) []byte {
	return marshal(channelFrame{Type: TypeChannelLeft, WorkspaceID: workspaceID, ChannelID: channelID})
}

// UserJoined encodes the presence event broadcast to a room on join.
func UserJoined(userID, userEmail string, timestamp time.Time) []byte {
	return marshal(presenceFrame{Type: TypeUserJoined, UserID: userID, UserEmail: userEmail, Timestamp: timestamp.UTC().Format(time.RFC3339)})
}

// UserLeft encodes the presence event broadcast to a room on leave.
func UserLeft(userID, userEmail string, timestamp time.Time) []byte {
	return marshal(presenceFrame{Type: TypeUserLeft, UserID: userID, UserEmail: userEmail, Timestamp: timestamp.UTC().Format(time.RFC3339)})
}

// ReceiveMessage encodes a chat message broadcast to a room.
func ReceiveMessage(data ReceiveMessageData) []byte {
	return marshal(receiveMessageFrame{Type: TypeReceiveMessage, Data: data})
}

// Error encodes an error frame addressed to a single connection.
func Error(message string) []byte {
	return marshal(errorFrame{Type: TypeError, Message: message})
}
