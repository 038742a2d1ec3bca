package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"campusguard/internal/models"
	"campusguard/internal/utils"
	"campusguard/pkg/logger"
)

const testSecret = "middleware-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter(gates ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append([]gin.HandlerFunc{AuthRequired(testSecret, logger.NewDiscard())}, gates...)
	handlers = append(handlers, func(c *gin.Context) {
		id, role, ok := CurrentIdentity(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id.Hex(), "role": role})
	})
	r.GET("/protected", handlers...)
	return r
}

func tokenFor(t *testing.T, role models.Role) (primitive.ObjectID, string) {
	t.Helper()
	id := primitive.NewObjectID()
	token, err := utils.GenerateToken(id, role, testSecret, time.Minute)
	require.NoError(t, err)
	return id, token
}

func TestAuthRequired(t *testing.T) {
	r := newAuthRouter()
	id, token := tokenFor(t, models.RoleStudent)

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"bearer header", "Bearer " + token, "", http.StatusOK},
		{"query token", "", "?token=" + token, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"not bearer", token, "", http.StatusUnauthorized},
		{"bad token", "Bearer garbage", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Contains(t, rec.Body.String(), id.Hex())
			}
		})
	}
}

func TestRoleGates(t *testing.T) {
	tests := []struct {
		name   string
		gate   gin.HandlerFunc
		role   models.Role
		status int
	}{
		{"guardian allows staff", RequireGuardian(), models.RoleStaff, http.StatusOK},
		{"guardian rejects student", RequireGuardian(), models.RoleStudent, http.StatusForbidden},
		{"elevated allows security", RequireElevated(), models.RoleSecurity, http.StatusOK},
		{"elevated rejects staff", RequireElevated(), models.RoleStaff, http.StatusForbidden},
		{"explicit student", RequireRoles(models.RoleStudent), models.RoleStudent, http.StatusOK},
		{"explicit student rejects security", RequireRoles(models.RoleStudent), models.RoleSecurity, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, token := tokenFor(t, tt.role)
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			newAuthRouter(tt.gate).ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestRateLimiterRejectsOverLimit(t *testing.T) {
	r := gin.New()
	r.Use(NewMemoryRateLimiter(2, logger.NewDiscard()).Middleware())
	r.GET("/api", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api", nil))
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
			assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
		}
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDAndCORS(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware(), CORSMiddleware([]string{"https://campus.example"}), LoggingMiddleware(logger.NewDiscard()))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://campus.example")
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
	assert.Equal(t, "https://campus.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("X-Request-ID", "given")
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "given", rec.Header().Get("X-Request-ID"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
