package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"campusguard/internal/models"
	"campusguard/internal/utils"
	"campusguard/pkg/logger"
)

const (
	ContextUserID   = "user_id"
	ContextUserRole = "user_role"
)

// AuthRequired middleware validates JWT token and sets user context.
// Browsers cannot set headers on a websocket upgrade, so a "token" query
// parameter is accepted as well.
func AuthRequired(secret string, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			utils.UnauthorizedResponse(c)
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(tokenString, secret)
		if err != nil {
			log.LogSecurityEvent("invalid_token", "medium", map[string]interface{}{
				"ip":    c.ClientIP(),
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			})
			utils.UnauthorizedResponse(c)
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)

		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return c.Query("token")
}

// CurrentIdentity returns what AuthRequired stored for the request.
func CurrentIdentity(c *gin.Context) (primitive.ObjectID, models.Role, bool) {
	rawID, ok := c.Get(ContextUserID)
	if !ok {
		return primitive.NilObjectID, "", false
	}
	userID, ok := rawID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, "", false
	}

	rawRole, _ := c.Get(ContextUserRole)
	role, ok := rawRole.(models.Role)
	if !ok || !role.Valid() {
		return primitive.NilObjectID, "", false
	}
	return userID, role, true
}

// RequireRole lets the request through when the caller's role satisfies allowed.
func RequireRole(allowed func(models.Role) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, role, ok := CurrentIdentity(c)
		if !ok {
			utils.UnauthorizedResponse(c)
			c.Abort()
			return
		}
		if !allowed(role) {
			utils.ForbiddenResponse(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	return RequireRole(func(r models.Role) bool {
		for _, allowed := range roles {
			if r == allowed {
				return true
			}
		}
		return false
	})
}

// RequireGuardian admits staff and security.
func RequireGuardian() gin.HandlerFunc {
	return RequireRole(models.Role.IsGuardian)
}

// RequireElevated admits security only.
func RequireElevated() gin.HandlerFunc {
	return RequireRole(models.Role.IsElevated)
}
