// Package presence holds the shared, TTL-bounded state for connections,
// rooms, and users in redis. It is a pure data-access layer: room policy
// lives in the rooms package, transport handles in the registry.
package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyNamespace = "collabai"

	// noRoomSentinel stands in for "not in a room". Redis hashes cannot
	// represent an absent field once written, so absence is encoded as a
	// reserved string and translated back to nil at the read boundary.
	noRoomSentinel = "__none__"

	// DefaultTTL bounds every key so state leaked by a crashed process
	// expires without manual intervention.
	DefaultTTL = 24 * time.Hour
)

// ErrNotFound indicates the connection has no metadata in the store. It is
// an expected outcome after TTL expiry or teardown, distinct from transport
// failures.
var ErrNotFound = errors.New("presence: connection metadata not found")

var errMissingRedisClient = errors.New("presence: redis client required")

// Metadata is the authoritative record of a connection's owning user and
// current room. CurrentRoom is nil when the connection is in no room.
type Metadata struct {
	UserID      string
	UserEmail   string
	UserRole    string
	CurrentRoom *string
	ConnectedAt time.Time
}

// StoreConfig describes the dependencies of the presence store.
type StoreConfig struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *zap.Logger
}

// Store provides namespaced presence state shared by every gateway process.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewStore constructs a presence store with the provided configuration.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Client == nil {
		return nil, errMissingRedisClient
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: cfg.Client, ttl: ttl, logger: logger}, nil
}

func userSocketsKey(userID string) string {
	return fmt.Sprintf("%s:user:%s:sockets", keyNamespace, userID)
}

func roomSocketsKey(roomID string) string {
	return fmt.Sprintf("%s:room:%s:sockets", keyNamespace, roomID)
}

func socketMetaKey(connID string) string {
	return fmt.Sprintf("%s:socket:%s:meta", keyNamespace, connID)
}

func socketUserKey(connID string) string {
	return fmt.Sprintf("%s:socket:%s:user", keyNamespace, connID)
}

// toRaw converts public metadata to the flat hash stored in redis. No field
// is ever nil-valued: the sentinel takes the place of an absent room.
func toRaw(meta Metadata) map[string]string {
	currentRoom := noRoomSentinel
	if meta.CurrentRoom != nil {
		currentRoom = *meta.CurrentRoom
	}
	return map[string]string{
		"userId":      meta.UserID,
		"userEmail":   meta.UserEmail,
		"userRole":    meta.UserRole,
		"currentRoom": currentRoom,
		"connectedAt": meta.ConnectedAt.UTC().Format(time.RFC3339),
	}
}

// fromRaw converts a redis hash back to public metadata, restoring the
// logical nil for the no-room sentinel.
func fromRaw(raw map[string]string) Metadata {
	meta := Metadata{
		UserID:    raw["userId"],
		UserEmail: raw["userEmail"],
		UserRole:  raw["userRole"],
	}
	if meta.UserRole == "" {
		meta.UserRole = "user"
	}
	if room := raw["currentRoom"]; inRoom(room) {
		meta.CurrentRoom = &room
	}
	if connectedAt, err := time.Parse(time.RFC3339, raw["connectedAt"]); err == nil {
		meta.ConnectedAt = connectedAt
	}
	return meta
}

func inRoom(rawCurrentRoom string) bool {
	switch rawCurrentRoom {
	case "", noRoomSentinel, "null":
		return false
	}
	return true
}

// Register creates the connection metadata hash, adds the connection to the
// owning user's set, and writes the reverse connection-to-user lookup, all
// TTL-bounded. A failed write leaves the connection unusable; callers must
// surface the error and close the transport.
func (s *Store) Register(ctx context.Context, connID string, meta Metadata) error {
	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, userSocketsKey(meta.UserID), connID)
	pipe.Expire(ctx, userSocketsKey(meta.UserID), s.ttl)
	pipe.HSet(ctx, socketMetaKey(connID), toRaw(meta))
	pipe.Expire(ctx, socketMetaKey(connID), s.ttl)
	pipe.Set(ctx, socketUserKey(connID), meta.UserID, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: register %s: %w", connID, err)
	}
	return nil
}

// SetRoom moves a connection into a room, leaving its previous room if one
// is recorded. The previous room is read outside any lock; the removal,
// addition, and metadata update then travel in one pipeline so a crash
// between read and write cannot leave the connection in two rooms beyond a
// transient, TTL-bounded duplicate.
func (s *Store) SetRoom(ctx context.Context, connID, roomID string) error {
	previousRoom, err := s.client.HGet(ctx, socketMetaKey(connID), "currentRoom").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("presence: read current room for %s: %w", connID, err)
	}

	pipe := s.client.Pipeline()
	if inRoom(previousRoom) {
		pipe.SRem(ctx, roomSocketsKey(previousRoom), connID)
	}
	pipe.SAdd(ctx, roomSocketsKey(roomID), connID)
	pipe.Expire(ctx, roomSocketsKey(roomID), s.ttl)
	pipe.HSet(ctx, socketMetaKey(connID), "currentRoom", roomID)
	pipe.Expire(ctx, socketMetaKey(connID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence: set room %s for %s: %w", roomID, connID, err)
	}
	return nil
}

// ClearRoom removes the connection from the room set and resets the room
// field to the no-room sentinel. Cleanup is best-effort: failures are
// logged, never returned, and the TTL acts as the backstop.
func (s *Store) ClearRoom(ctx context.Context, connID, roomID string) {
	pipe := s.client.Pipeline()
	pipe.SRem(ctx, roomSocketsKey(roomID), connID)
	pipe.HSet(ctx, socketMetaKey(connID), "currentRoom", noRoomSentinel)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("failed to clear room",
			zap.String("connectionId", connID),
			zap.String("roomId", roomID),
			zap.Error(err))
	}
}

// RoomMembers returns a point-in-time snapshot of the connection ids in a
// room. An empty slice means the room does not exist.
func (s *Store) RoomMembers(ctx context.Context, roomID string) ([]string, error) {
	members, err := s.client.SMembers(ctx, roomSocketsKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: room members %s: %w", roomID, err)
	}
	return members, nil
}

// Metadata returns the stored metadata for a connection, or ErrNotFound if
// the store has no record of it.
func (s *Store) Metadata(ctx context.Context, connID string) (Metadata, error) {
	raw, err := s.client.HGetAll(ctx, socketMetaKey(connID)).Result()
	if err != nil {
		return Metadata{}, fmt.Errorf("presence: metadata %s: %w", connID, err)
	}
	if len(raw) == 0 || raw["userId"] == "" {
		return Metadata{}, ErrNotFound
	}
	return fromRaw(raw), nil
}

// Remove tears down every store entry for a connection: room membership,
// user set membership, metadata, and the reverse lookup. It is idempotent
// and best-effort; a connection already gone is a no-op.
func (s *Store) Remove(ctx context.Context, connID string) {
	meta, err := s.Metadata(ctx, connID)
	if errors.Is(err, ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn("failed to read metadata during removal",
			zap.String("connectionId", connID),
			zap.Error(err))
		return
	}

	pipe := s.client.Pipeline()
	if meta.CurrentRoom != nil {
		pipe.SRem(ctx, roomSocketsKey(*meta.CurrentRoom), connID)
	}
	pipe.SRem(ctx, userSocketsKey(meta.UserID), connID)
	pipe.Del(ctx, socketMetaKey(connID))
	pipe.Del(ctx, socketUserKey(connID))
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("failed to remove connection state",
			zap.String("connectionId", connID),
			zap.Error(err))
	}
}

// UserConnections returns every connection id currently open for a user.
func (s *Store) UserConnections(ctx context.Context, userID string) ([]string, error) {
	conns, err := s.client.SMembers(ctx, userSocketsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: user connections %s: %w", userID, err)
	}
	return conns, nil
}

// IsOnline reports whether a user has at least one open connection.
func (s *Store) IsOnline(ctx context.Context, userID string) (bool, error) {
	count, err := s.client.SCard(ctx, userSocketsKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("presence: online check %s: %w", userID, err)
	}
	return count > 0, nil
}
