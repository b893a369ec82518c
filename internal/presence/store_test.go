package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *redis.Client) {
	t.Helper()
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() {
		client.Close()
	})
	store, err := NewStore(StoreConfig{Client: client})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	return store, client
}

func testMetadata(userID string) Metadata {
	return Metadata{
		UserID:      userID,
		UserEmail:   userID + "@example.com",
		UserRole:    "user",
		ConnectedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRegisterAndMetadata(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()

	if err := store.Register(ctx, "conn-1", testMetadata("alice")); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	meta, err := store.Metadata(ctx, "conn-1")
	if err != nil {
		t.Fatalf("metadata lookup failed: %v", err)
	}
	if meta.UserID != "alice" || meta.UserEmail != "alice@example.com" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if meta.CurrentRoom != nil {
		t.Fatalf("expected no current room, got %q", *meta.CurrentRoom)
	}

	// The hash must carry the sentinel, never an absent field.
	rawRoom, err := client.HGet(ctx, socketMetaKey("conn-1"), "currentRoom").Result()
	if err != nil {
		t.Fatalf("raw room lookup failed: %v", err)
	}
	if rawRoom != noRoomSentinel {
		t.Fatalf("expected sentinel in hash, got %q", rawRoom)
	}

	owner, err := client.Get(ctx, socketUserKey("conn-1")).Result()
	if err != nil || owner != "alice" {
		t.Fatalf("expected reverse lookup alice, got %q (%v)", owner, err)
	}

	conns, err := store.UserConnections(ctx, "alice")
	if err != nil || len(conns) != 1 || conns[0] != "conn-1" {
		t.Fatalf("expected single connection for alice, got %v (%v)", conns, err)
	}
}

func TestMetadataNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.Metadata(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetRoomSwitchesRooms(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Register(ctx, "conn-1", testMetadata("alice")); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := store.SetRoom(ctx, "conn-1", "ws1:ch1"); err != nil {
		t.Fatalf("first join failed: %v", err)
	}
	if err := store.SetRoom(ctx, "conn-1", "ws1:ch2"); err != nil {
		t.Fatalf("second join failed: %v", err)
	}

	oldMembers, err := store.RoomMembers(ctx, "ws1:ch1")
	if err != nil {
		t.Fatalf("room members failed: %v", err)
	}
	if len(oldMembers) != 0 {
		t.Fatalf("expected empty previous room, got %v", oldMembers)
	}

	newMembers, err := store.RoomMembers(ctx, "ws1:ch2")
	if err != nil || len(newMembers) != 1 || newMembers[0] != "conn-1" {
		t.Fatalf("expected conn-1 in new room, got %v (%v)", newMembers, err)
	}

	meta, err := store.Metadata(ctx, "conn-1")
	if err != nil {
		t.Fatalf("metadata lookup failed: %v", err)
	}
	if meta.CurrentRoom == nil || *meta.CurrentRoom != "ws1:ch2" {
		t.Fatalf("metadata out of sync with membership: %+v", meta)
	}
}

func TestClearRoomRestoresSentinel(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()

	if err := store.Register(ctx, "conn-1", testMetadata("alice")); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := store.SetRoom(ctx, "conn-1", "ws1:ch1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	store.ClearRoom(ctx, "conn-1", "ws1:ch1")

	members, err := store.RoomMembers(ctx, "ws1:ch1")
	if err != nil || len(members) != 0 {
		t.Fatalf("expected empty room, got %v (%v)", members, err)
	}

	meta, err := store.Metadata(ctx, "conn-1")
	if err != nil {
		t.Fatalf("metadata lookup failed: %v", err)
	}
	if meta.CurrentRoom != nil {
		t.Fatalf("expected nil room after clear, got %q", *meta.CurrentRoom)
	}

	rawRoom, err := client.HGet(ctx, socketMetaKey("conn-1"), "currentRoom").Result()
	if err != nil || rawRoom != noRoomSentinel {
		t.Fatalf("expected sentinel after clear, got %q (%v)", rawRoom, err)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()

	if err := store.Register(ctx, "conn-1", testMetadata("alice")); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := store.SetRoom(ctx, "conn-1", "ws1:ch1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	store.Remove(ctx, "conn-1")
	store.Remove(ctx, "conn-1")

	if _, err := store.Metadata(ctx, "conn-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected metadata gone, got %v", err)
	}
	members, err := store.RoomMembers(ctx, "ws1:ch1")
	if err != nil || len(members) != 0 {
		t.Fatalf("expected empty room after removal, got %v (%v)", members, err)
	}
	conns, err := store.UserConnections(ctx, "alice")
	if err != nil || len(conns) != 0 {
		t.Fatalf("expected empty user set after removal, got %v (%v)", conns, err)
	}
	if _, err := client.Get(ctx, socketUserKey("conn-1")).Result(); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected reverse lookup deleted, got %v", err)
	}
}

func TestIsOnline(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	online, err := store.IsOnline(ctx, "alice")
	if err != nil || online {
		t.Fatalf("expected alice offline, got %v (%v)", online, err)
	}

	if err := store.Register(ctx, "conn-1", testMetadata("alice")); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	online, err = store.IsOnline(ctx, "alice")
	if err != nil || !online {
		t.Fatalf("expected alice online, got %v (%v)", online, err)
	}
}

func TestRoomStatsCountsUniqueUsers(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	// Two devices for alice, one for bob, all in the same room.
	for _, conn := range []struct{ id, user string }{
		{"conn-1", "alice"},
		{"conn-2", "alice"},
		{"conn-3", "bob"},
	} {
		if err := store.Register(ctx, conn.id, testMetadata(conn.user)); err != nil {
			t.Fatalf("register %s failed: %v", conn.id, err)
		}
		if err := store.SetRoom(ctx, conn.id, "ws1:ch1"); err != nil {
			t.Fatalf("join %s failed: %v", conn.id, err)
		}
	}

	stats, err := store.RoomStats(ctx, "ws1:ch1")
	if err != nil {
		t.Fatalf("room stats failed: %v", err)
	}
	if stats.SocketCount != 3 {
		t.Fatalf("expected 3 sockets, got %d", stats.SocketCount)
	}
	if stats.UniqueUsers != 2 {
		t.Fatalf("expected 2 unique users, got %d", stats.UniqueUsers)
	}
}

func TestGlobalStats(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Register(ctx, "conn-1", testMetadata("alice")); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := store.Register(ctx, "conn-2", testMetadata("bob")); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := store.SetRoom(ctx, "conn-1", "ws1:ch1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	stats, err := store.GlobalStats(ctx)
	if err != nil {
		t.Fatalf("global stats failed: %v", err)
	}
	if stats.TotalUsers != 2 {
		t.Fatalf("expected 2 users, got %d", stats.TotalUsers)
	}
	if stats.TotalRooms != 1 {
		t.Fatalf("expected 1 room, got %d", stats.TotalRooms)
	}
	if len(stats.Rooms) != 1 || stats.Rooms[0].RoomID != "ws1:ch1" || stats.Rooms[0].SocketCount != 1 {
		t.Fatalf("unexpected room stats: %+v", stats.Rooms)
	}
}
