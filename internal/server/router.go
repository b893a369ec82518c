package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/collabai/chat-backend/internal/auth"
	"github.com/collabai/chat-backend/internal/presence"
	"github.com/collabai/chat-backend/internal/registry"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errMissingVerifier      = errors.New("token verifier dependency required")
	errMissingUpgrader      = errors.New("connection upgrader dependency required")
	errMissingPresenceStore = errors.New("presence store dependency required")
	errMissingRegistry      = errors.New("connection registry dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenVerifier validates bearer credentials on admin endpoints.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// ConnectionUpgrader serves the websocket handshake.
type ConnectionUpgrader interface {
	HandleUpgrade(w http.ResponseWriter, r *http.Request)
}

// Dependencies lists what the HTTP surface needs.
type Dependencies struct {
	Verifier TokenVerifier
	Upgrader ConnectionUpgrader
	Presence *presence.Store
	Registry *registry.Registry
	Logger   *zap.Logger
}

// NewHTTPHandler builds the gin router: health check, the websocket
// upgrade path, and admin-only presence diagnostics.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Verifier == nil {
		return nil, errMissingVerifier
	}
	if deps.Upgrader == nil {
		return nil, errMissingUpgrader
	}
	if deps.Presence == nil {
		return nil, errMissingPresenceStore
	}
	if deps.Registry == nil {
		return nil, errMissingRegistry
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		verifier: deps.Verifier,
		presence: deps.Presence,
		registry: deps.Registry,
		logger:   logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/ws/c", func(c *gin.Context) {
		deps.Upgrader.HandleUpgrade(c.Writer, c.Request)
	})

	stats := router.Group("/stats")
	stats.Use(handler.authorizeAdmin)
	stats.GET("/local", handler.handleLocalStats)
	stats.GET("/rooms/:roomId", handler.handleRoomStats)
	stats.GET("/global", handler.handleGlobalStats)

	return router, nil
}

type httpHandler struct {
	verifier TokenVerifier
	presence *presence.Store
	registry *registry.Registry
	logger   *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleLocalStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"totalConnections": h.registry.Size(),
		"connections":      h.registry.Snapshot(),
	})
}

func (h *httpHandler) handleRoomStats(c *gin.Context) {
	roomID := c.Param("roomId")
	stats, err := h.presence.RoomStats(requestContext(c), roomID)
	if err != nil {
		h.logger.Error("failed to read room stats", zap.String("roomId", roomID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats_unavailable"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *httpHandler) handleGlobalStats(c *gin.Context) {
	stats, err := h.presence.GlobalStats(requestContext(c))
	if err != nil {
		h.logger.Error("failed to read global stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats_unavailable"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *httpHandler) authorizeAdmin(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	claims, err := h.verifier.Verify(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if claims.Role != "admin" {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}

func requestContext(c *gin.Context) context.Context {
	return c.Request.Context()
}
