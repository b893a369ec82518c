package presence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RoomStats summarizes one room's occupancy.
type RoomStats struct {
	RoomID      string `json:"roomId"`
	SocketCount int    `json:"socketCount"`
	UniqueUsers int    `json:"uniqueUsers"`
}

// GlobalStats summarizes presence state across the whole store.
type GlobalStats struct {
	TotalUsers int         `json:"totalUsers"`
	TotalRooms int         `json:"totalRooms"`
	Rooms      []RoomStats `json:"rooms"`
}

// RoomStats reports connection and unique-user counts for a room, resolving
// users through the reverse connection lookups in one pipeline.
func (s *Store) RoomStats(ctx context.Context, roomID string) (RoomStats, error) {
	stats := RoomStats{RoomID: roomID}

	members, err := s.RoomMembers(ctx, roomID)
	if err != nil {
		return stats, err
	}
	stats.SocketCount = len(members)
	if len(members) == 0 {
		return stats, nil
	}

	pipe := s.client.Pipeline()
	lookups := make([]*redis.StringCmd, 0, len(members))
	for _, connID := range members {
		lookups = append(lookups, pipe.Get(ctx, socketUserKey(connID)))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return stats, fmt.Errorf("presence: room stats %s: %w", roomID, err)
	}

	users := make(map[string]struct{})
	for _, lookup := range lookups {
		userID, err := lookup.Result()
		if err != nil || userID == "" {
			continue
		}
		users[userID] = struct{}{}
	}
	stats.UniqueUsers = len(users)
	return stats, nil
}

// GlobalStats walks the user and room set keys with SCAN. Intended for
// admin diagnostics only.
func (s *Store) GlobalStats(ctx context.Context) (GlobalStats, error) {
	userKeys, err := s.scanKeys(ctx, keyNamespace+":user:*:sockets")
	if err != nil {
		return GlobalStats{}, err
	}
	roomKeys, err := s.scanKeys(ctx, keyNamespace+":room:*:sockets")
	if err != nil {
		return GlobalStats{}, err
	}

	stats := GlobalStats{
		TotalUsers: len(userKeys),
		TotalRooms: len(roomKeys),
		Rooms:      make([]RoomStats, 0, len(roomKeys)),
	}
	for _, key := range roomKeys {
		roomID := strings.TrimSuffix(strings.TrimPrefix(key, keyNamespace+":room:"), ":sockets")
		roomStats, err := s.RoomStats(ctx, roomID)
		if err != nil {
			return GlobalStats{}, err
		}
		stats.Rooms = append(stats.Rooms, roomStats)
	}
	return stats, nil
}

func (s *Store) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("presence: scan %s: %w", pattern, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
