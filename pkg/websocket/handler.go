package websocket

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"campusguard/pkg/logger"
)

// IdentityFunc extracts the authenticated user from a request that already passed auth.
type IdentityFunc func(c *gin.Context) (userID primitive.ObjectID, role string, ok bool)

type HandlerConfig struct {
	ReadBufferSize    int
	WriteBufferSize   int
	HandshakeTimeout  time.Duration
	EnableCompression bool
	AllowedOrigins    []string
}

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	identity IdentityFunc
	logger   *logger.Logger
}

func NewHandler(hub *Hub, cfg HandlerConfig, identity IdentityFunc, log *logger.Logger) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    cfg.ReadBufferSize,
			WriteBufferSize:   cfg.WriteBufferSize,
			HandshakeTimeout:  cfg.HandshakeTimeout,
			EnableCompression: cfg.EnableCompression,
			CheckOrigin:       originChecker(cfg.AllowedOrigins),
		},
		identity: identity,
		logger:   log.WithField("component", "websocket_handler"),
	}
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	userID, role, ok := h.identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, userID, role)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}
