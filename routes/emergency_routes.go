package routes

import (
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	handlers "campusguard/internal/handlers/shared"
	"campusguard/internal/middleware"
	"campusguard/internal/models"
	"campusguard/pkg/logger"
	"campusguard/pkg/websocket"
)

type Handlers struct {
	SOS       *handlers.SOSHandler
	Escort    *handlers.EscortHandler
	Guardian  *handlers.GuardianHandler
	WebSocket *websocket.Handler
}

// SetupEmergencyRoutes mounts the alert, escort, guardian and realtime routes.
// Every route requires a valid token.
func SetupEmergencyRoutes(r *gin.RouterGroup, h Handlers, jwtSecret string, log *logger.Logger) {
	auth := middleware.AuthRequired(jwtSecret, log)

	sos := r.Group("/sos")
	sos.Use(auth)
	{
		sos.POST("", middleware.RequireRoles(models.RoleStudent), h.SOS.Submit)
		sos.GET("", middleware.RequireElevated(), h.SOS.List)
		sos.GET("/:id", h.SOS.Get)
		sos.PATCH("/:id/acknowledge", middleware.RequireGuardian(), h.SOS.Acknowledge)
		sos.PATCH("/:id/resolve", middleware.RequireElevated(), h.SOS.Resolve)
	}

	escort := r.Group("/escort")
	escort.Use(auth)
	{
		escort.POST("/request", middleware.RequireRoles(models.RoleStudent), h.Escort.Request)
		escort.GET("/requests", middleware.RequireElevated(), h.Escort.List)
		escort.GET("/requests/:id", h.Escort.Get)
		escort.PATCH("/requests/:id/accept", middleware.RequireGuardian(), h.Escort.Acknowledge)
		escort.PATCH("/requests/:id/decline", middleware.RequireGuardian(), h.Escort.Decline)
		escort.PATCH("/requests/:id/resolve", middleware.RequireElevated(), h.Escort.Resolve)
	}

	guardians := r.Group("/guardians")
	guardians.Use(auth)
	{
		guardians.PUT("/me/location", middleware.RequireGuardian(), h.Guardian.UpdateLocation)
		guardians.PUT("/me/availability", middleware.RequireGuardian(), h.Guardian.SetAvailability)
		guardians.GET("/nearby", middleware.RequireElevated(), h.Guardian.Nearby)
	}

	if h.WebSocket != nil {
		r.GET("/ws", auth, h.WebSocket.HandleWebSocket)
	}
}

// WebSocketIdentity adapts the auth middleware's context values for the realtime handler.
func WebSocketIdentity(c *gin.Context) (primitive.ObjectID, string, bool) {
	id, r, ok := middleware.CurrentIdentity(c)
	return id, r.String(), ok
}
