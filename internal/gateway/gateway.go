// Package gateway owns the websocket transport lifecycle: authenticated
// handshake, per-frame dispatch, fan-out, and teardown. Each connection
// moves through Connecting, Authenticating, Open, Closed; reconnection is
// always a fresh connection, never a server-side state.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/collabai/chat-backend/internal/auth"
	"github.com/collabai/chat-backend/internal/chat"
	"github.com/collabai/chat-backend/internal/presence"
	"github.com/collabai/chat-backend/internal/protocol"
	"github.com/collabai/chat-backend/internal/registry"
	"github.com/collabai/chat-backend/internal/rooms"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	errMissingVerifier   = errors.New("gateway: token verifier dependency required")
	errMissingPresence   = errors.New("gateway: presence store dependency required")
	errMissingRegistry   = errors.New("gateway: connection registry dependency required")
	errMissingRooms      = errors.New("gateway: rooms service dependency required")
	errMissingFanout     = errors.New("gateway: fanout dependency required")
	errMissingMembership = errors.New("gateway: membership checker dependency required")
	errMissingMessages   = errors.New("gateway: message saver dependency required")
)

// TokenVerifier validates the handshake credential and yields the
// authenticated identity.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// MembershipChecker answers whether a user may access a workspace channel.
type MembershipChecker interface {
	IsMember(ctx context.Context, workspaceID, channelID, userID string) (bool, error)
}

// MessageSaver persists chat messages.
type MessageSaver interface {
	SaveMessage(ctx context.Context, req chat.SaveMessageRequest) (chat.SavedMessage, error)
}

// Dependencies lists everything the gateway needs.
type Dependencies struct {
	Verifier        TokenVerifier
	Presence        *presence.Store
	Registry        *registry.Registry
	Rooms           *rooms.Service
	Fanout          *Fanout
	Membership      MembershipChecker
	Messages        MessageSaver
	Logger          *zap.Logger
	Clock           func() time.Time
	ConnectionLimit int
}

// Gateway routes frames between websocket clients and the presence layer.
type Gateway struct {
	verifier        TokenVerifier
	presence        *presence.Store
	registry        *registry.Registry
	rooms           *rooms.Service
	fanout          *Fanout
	membership      MembershipChecker
	messages        MessageSaver
	logger          *zap.Logger
	clock           func() time.Time
	connectionLimit int
}

// New constructs the gateway.
func New(deps Dependencies) (*Gateway, error) {
	if deps.Verifier == nil {
		return nil, errMissingVerifier
	}
	if deps.Presence == nil {
		return nil, errMissingPresence
	}
	if deps.Registry == nil {
		return nil, errMissingRegistry
	}
	if deps.Rooms == nil {
		return nil, errMissingRooms
	}
	if deps.Fanout == nil {
		return nil, errMissingFanout
	}
	if deps.Membership == nil {
		return nil, errMissingMembership
	}
	if deps.Messages == nil {
		return nil, errMissingMessages
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Gateway{
		verifier:        deps.Verifier,
		presence:        deps.Presence,
		registry:        deps.Registry,
		rooms:           deps.Rooms,
		fanout:          deps.Fanout,
		membership:      deps.Membership,
		messages:        deps.Messages,
		logger:          logger,
		clock:           clock,
		connectionLimit: deps.ConnectionLimit,
	}, nil
}

// HandleUpgrade authenticates the upgrade request, registers presence, and
// services the connection until it closes. The credential travels as a
// query parameter because the handshake precedes any application frame.
func (g *Gateway) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		g.logger.Warn("websocket upgrade rejected: missing token",
			zap.String("remoteAddr", r.RemoteAddr))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	claims, err := g.verifier.Verify(token)
	if err != nil {
		g.logger.Warn("websocket upgrade rejected: invalid token",
			zap.String("remoteAddr", r.RemoteAddr),
			zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if g.connectionLimit > 0 {
		conns, err := g.presence.UserConnections(r.Context(), claims.UserID)
		if err == nil && len(conns) >= g.connectionLimit {
			g.logger.Warn("websocket upgrade rejected: connection limit reached",
				zap.String("userId", claims.UserID),
				zap.Int("limit", g.connectionLimit))
			http.Error(w, "connection limit reached", http.StatusTooManyRequests)
			return
		}
	}

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		g.logger.Error("failed to accept websocket connection", zap.Error(err))
		return
	}

	connID := uuid.NewString()
	meta := presence.Metadata{
		UserID:      claims.UserID,
		UserEmail:   claims.Email,
		UserRole:    claims.Role,
		ConnectedAt: g.clock(),
	}
	if err := g.presence.Register(r.Context(), connID, meta); err != nil {
		// Without presence state the connection is unusable.
		g.logger.Error("failed to register connection",
			zap.String("connectionId", connID),
			zap.Error(err))
		wsConn.Close(websocket.StatusInternalError, "registration failed")
		return
	}

	handle := newConnHandle(wsConn)
	g.registry.Put(connID, handle)

	g.logger.Info("websocket connected",
		zap.String("connectionId", connID),
		zap.String("userEmail", claims.Email),
		zap.Int("activeConnections", g.registry.Size()))

	if err := handle.Send(protocol.Connected(claims.UserID, claims.Email, connID)); err != nil {
		g.logger.Warn("failed to send welcome frame",
			zap.String("connectionId", connID),
			zap.Error(err))
	}

	g.serve(r.Context(), connID, handle, wsConn, claims.Email)
}

// serve reads frames until the connection closes. Frames from one
// connection are processed strictly in arrival order.
func (g *Gateway) serve(ctx context.Context, connID string, handle *connHandle, wsConn *websocket.Conn, userEmail string) {
	defer g.teardown(connID, wsConn, userEmail)

	for {
		_, data, err := wsConn.Read(ctx)
		if err != nil {
			g.logger.Info("websocket closed",
				zap.String("connectionId", connID),
				zap.String("userEmail", userEmail),
				zap.String("status", websocket.CloseStatus(err).String()))
			return
		}
		g.handleFrame(ctx, connID, handle, data)
	}
}

// teardown removes the local handle synchronously so no further frame can
// be routed to a closing connection, then clears shared state in the
// background. Store cleanup is best-effort; TTLs cover anything it misses.
func (g *Gateway) teardown(connID string, wsConn *websocket.Conn, userEmail string) {
	g.registry.Remove(connID)
	wsConn.Close(websocket.StatusNormalClosure, "")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		g.presence.Remove(ctx, connID)
		g.logger.Info("connection cleanup complete",
			zap.String("connectionId", connID),
			zap.String("userEmail", userEmail))
	}()
}
