package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"campusguard/internal/config"
	handlers "campusguard/internal/handlers/shared"
	"campusguard/internal/models"
	"campusguard/internal/services"
	"campusguard/internal/utils"
	"campusguard/pkg/logger"
	"campusguard/pkg/websocket"
	"campusguard/routes"
)

const secret = "handler-test-secret"

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *utils.APIError `json:"error"`
	Meta   *utils.Meta     `json:"meta"`
}

type user struct {
	id    primitive.ObjectID
	token string
}

func newUser(t *testing.T, role models.Role) user {
	t.Helper()
	id := primitive.NewObjectID()
	token, err := utils.GenerateToken(id, role, secret, time.Hour)
	require.NoError(t, err)
	return user{id: id, token: token}
}

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewDiscard()

	hub := websocket.NewHub(log)
	directory := services.NewDirectoryService(services.NewMemoryDirectoryStore(), nil, log)
	cfg := &config.EmergencyConfig{
		EscalationTimeout:  time.Minute,
		ThrottleInterval:   30 * time.Second,
		NearestFanOut:      3,
		ResolutionNotesMax: 10,
	}
	svc := services.NewEmergencyService(cfg, services.EmergencyDeps{
		Throttle:  services.NewThrottleService(services.NewMemoryThrottleStore(time.Minute), log),
		Alerts:    services.NewAlertStateMachine(cfg.ResolutionNotesMax),
		Matcher:   services.NewMatcher(directory),
		Directory: directory,
		Router:    services.NewNotificationRouter(hub, nil, log),
		Scheduler: services.NewEscalationScheduler(log),
	}, log)
	t.Cleanup(svc.Shutdown)

	r := gin.New()
	routes.SetupEmergencyRoutes(r.Group("/api/v1"), routes.Handlers{
		SOS:      handlers.NewSOSHandler(svc),
		Escort:   handlers.NewEscortHandler(svc),
		Guardian: handlers.NewGuardianHandler(directory, svc),
	}, secret, log)
	return r
}

func call(t *testing.T, r *gin.Engine, method, path string, u user, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func decodeAlert(t *testing.T, env envelope) models.Alert {
	t.Helper()
	var alert models.Alert
	require.NoError(t, json.Unmarshal(env.Data, &alert))
	return alert
}

var here = map[string]float64{"lat": 37.4275, "lng": -122.1697}

func TestSubmitSOSAndThrottle(t *testing.T) {
	r := newTestServer(t)
	student := newUser(t, models.RoleStudent)

	rec, env := call(t, r, http.MethodPost, "/api/v1/sos", student, here)
	require.Equal(t, http.StatusCreated, rec.Code)
	alert := decodeAlert(t, env)
	assert.Equal(t, models.AlertStatusActive, alert.Status)
	assert.Equal(t, student.id, alert.RequesterID)

	rec, env = call(t, r, http.MethodPost, "/api/v1/sos", student, here)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "THROTTLED", env.Error.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.NotEmpty(t, env.Error.Details["retry_after_ms"])
}

func TestSubmitSOSValidationAndRoles(t *testing.T) {
	r := newTestServer(t)

	rec, env := call(t, r, http.MethodPost, "/api/v1/sos", newUser(t, models.RoleStudent), map[string]float64{"lat": 37.4})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Details, "lng")

	rec, _ = call(t, r, http.MethodPost, "/api/v1/sos", newUser(t, models.RoleStaff), here)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = call(t, r, http.MethodPost, "/api/v1/sos", user{}, here)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEscortLifecycleOverHTTP(t *testing.T) {
	r := newTestServer(t)
	student := newUser(t, models.RoleStudent)
	staff := newUser(t, models.RoleStaff)
	otherStaff := newUser(t, models.RoleStaff)
	security := newUser(t, models.RoleSecurity)

	rec, _ := call(t, r, http.MethodPut, "/api/v1/guardians/me/location", staff, map[string]float64{"lat": 37.428, "lng": -122.1697})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = call(t, r, http.MethodPost, "/api/v1/escort/request", student, here)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env := call(t, r, http.MethodPost, "/api/v1/escort/request", student, map[string]interface{}{
		"lat":               37.4275,
		"lng":               -122.1697,
		"destination":       map[string]float64{"lat": 37.4300, "lng": -122.1650},
		"destination_label": "Green Library",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	escort := decodeAlert(t, env)
	assert.Equal(t, models.AlertKindEscort, escort.Kind)
	assert.Equal(t, []primitive.ObjectID{staff.id}, escort.NotifiedGuardians)
	base := "/api/v1/escort/requests/" + escort.ID.Hex()

	rec, _ = call(t, r, http.MethodPatch, "/api/v1/sos/"+escort.ID.Hex()+"/acknowledge", staff, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = call(t, r, http.MethodPatch, base+"/accept", staff, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.AlertStatusAcknowledged, decodeAlert(t, env).Status)

	rec, env = call(t, r, http.MethodPatch, base+"/accept", otherStaff, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_ACKNOWLEDGED", env.Error.Code)

	rec, _ = call(t, r, http.MethodPatch, base+"/resolve", staff, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = call(t, r, http.MethodPatch, base+"/resolve", security, map[string]string{"notes": strings.Repeat("n", 11)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "NOTES_TOO_LONG", env.Error.Code)

	rec, env = call(t, r, http.MethodPatch, base+"/resolve", security, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.AlertStatusResolved, decodeAlert(t, env).Status)

	rec, env = call(t, r, http.MethodPatch, base+"/resolve", security, map[string]string{"notes": "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_RESOLVED", env.Error.Code)
}

func TestGetAlertVisibility(t *testing.T) {
	r := newTestServer(t)
	owner := newUser(t, models.RoleStudent)

	_, env := call(t, r, http.MethodPost, "/api/v1/sos", owner, here)
	alert := decodeAlert(t, env)
	path := "/api/v1/sos/" + alert.ID.Hex()

	rec, _ := call(t, r, http.MethodGet, path, owner, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = call(t, r, http.MethodGet, path, newUser(t, models.RoleStudent), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = call(t, r, http.MethodGet, path, newUser(t, models.RoleStaff), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = call(t, r, http.MethodGet, "/api/v1/sos/not-an-id", owner, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = call(t, r, http.MethodGet, "/api/v1/sos/"+primitive.NewObjectID().Hex(), owner, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = call(t, r, http.MethodGet, "/api/v1/escort/requests/"+alert.ID.Hex(), owner, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAlerts(t *testing.T) {
	r := newTestServer(t)
	security := newUser(t, models.RoleSecurity)
	for i := 0; i < 3; i++ {
		rec, _ := call(t, r, http.MethodPost, "/api/v1/sos", newUser(t, models.RoleStudent), here)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, env := call(t, r, http.MethodGet, "/api/v1/sos?status=active&page=1&page_size=2", security, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var alerts []models.Alert
	require.NoError(t, json.Unmarshal(env.Data, &alerts))
	assert.Len(t, alerts, 2)
	require.NotNil(t, env.Meta)
	assert.Equal(t, int64(3), env.Meta.Pagination.Total)

	rec, _ = call(t, r, http.MethodGet, "/api/v1/sos?status=bogus", security, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = call(t, r, http.MethodGet, "/api/v1/sos", newUser(t, models.RoleStaff), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGuardianAvailabilityAndNearby(t *testing.T) {
	r := newTestServer(t)
	security := newUser(t, models.RoleSecurity)
	near := newUser(t, models.RoleStaff)
	far := newUser(t, models.RoleStaff)

	call(t, r, http.MethodPut, "/api/v1/guardians/me/location", near, map[string]float64{"lat": 37.4280, "lng": -122.1697})
	call(t, r, http.MethodPut, "/api/v1/guardians/me/location", far, map[string]float64{"lat": 37.4500, "lng": -122.1697})

	rec, env := call(t, r, http.MethodGet, "/api/v1/guardians/nearby?lat=37.4275&lng=-122.1697&limit=5&radius_m=1000", security, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ranked []models.RankedGuardian
	require.NoError(t, json.Unmarshal(env.Data, &ranked))
	require.Len(t, ranked, 1)
	assert.Equal(t, near.id, ranked[0].Guardian.ID)

	rec, _ = call(t, r, http.MethodPut, "/api/v1/guardians/me/availability", near, map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, rec.Code)

	_, env = call(t, r, http.MethodGet, "/api/v1/guardians/nearby?lat=37.4275&lng=-122.1697", security, nil)
	require.NoError(t, json.Unmarshal(env.Data, &ranked))
	require.Len(t, ranked, 1)
	assert.Equal(t, far.id, ranked[0].Guardian.ID)

	rec, _ = call(t, r, http.MethodGet, "/api/v1/guardians/nearby?lat=100&lng=0", security, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = call(t, r, http.MethodPut, "/api/v1/guardians/me/availability", newUser(t, models.RoleStudent), map[string]bool{"active": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
