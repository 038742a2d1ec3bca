package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"campusguard/internal/models"
	"campusguard/internal/utils"
	"campusguard/pkg/logger"
)

type recordingMirror struct {
	guardians []*models.Guardian
	alerts    []*models.Alert
}

func (m *recordingMirror) EnqueueGuardian(g *models.Guardian) { m.guardians = append(m.guardians, g) }
func (m *recordingMirror) EnqueueAlert(a *models.Alert)       { m.alerts = append(m.alerts, a) }

func TestDirectoryRejectsNonGuardianAndBadCoordinates(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory()
	id := primitive.NewObjectID()

	_, err := dir.Register(ctx, id, models.RoleStudent)
	assert.ErrorIs(t, err, ErrNotGuardian)

	_, err = dir.UpsertLocation(ctx, id, models.RoleStaff, models.Location{Lat: 91, Lng: 0})
	assert.ErrorIs(t, err, ErrInvalidLocation)

	_, err = dir.Get(ctx, id)
	assert.ErrorIs(t, err, ErrGuardianNotFound)

	_, err = dir.SetActive(ctx, id, true)
	assert.ErrorIs(t, err, ErrGuardianNotFound)
}

func TestDirectoryUpsertAndListActiveByRole(t *testing.T) {
	ctx := context.Background()
	mirror := &recordingMirror{}
	dir := NewDirectoryService(NewMemoryDirectoryStore(), mirror, logger.NewDiscard())

	staff := guardianAt(t, dir, models.RoleStaff, 100)
	security := guardianAt(t, dir, models.RoleSecurity, 200)

	g, err := dir.Get(ctx, staff)
	require.NoError(t, err)
	assert.True(t, g.Active)
	require.NotNil(t, g.Location)

	role := models.RoleSecurity
	onlySecurity, err := dir.ListActive(ctx, &role)
	require.NoError(t, err)
	require.Len(t, onlySecurity, 1)
	assert.Equal(t, security, onlySecurity[0].ID)

	all, err := dir.ListActive(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Len(t, mirror.guardians, 2)
}

func TestDirectoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory()
	id := guardianAt(t, dir, models.RoleStaff, 100)

	g, err := dir.Get(ctx, id)
	require.NoError(t, err)
	g.Location.Lat = 0
	g.Active = false

	again, err := dir.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, again.Active)
	assert.NotEqual(t, 0.0, again.Location.Lat)
}

func TestDirectorySweepStale(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	dir := newTestDirectory()
	dir.now = clock.Now

	stale := guardianAt(t, dir, models.RoleStaff, 100)
	clock.Advance(8 * time.Minute)
	fresh := guardianAt(t, dir, models.RoleSecurity, 100)
	clock.Advance(3 * time.Minute)

	swept, err := dir.SweepStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	g, err := dir.Get(ctx, stale)
	require.NoError(t, err)
	assert.True(t, g.Stale)
	assert.True(t, g.Active, "the sweep must not override the guardian's availability choice")

	g, err = dir.Get(ctx, fresh)
	require.NoError(t, err)
	assert.True(t, g.Available())

	active, err := dir.ListActive(ctx, nil)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, fresh, active[0].ID)

	swept, err = dir.SweepStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, swept)
}

func TestDirectoryTouchClearsStale(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	dir := newTestDirectory()
	dir.now = clock.Now

	id := guardianAt(t, dir, models.RoleStaff, 100)
	clock.Advance(11 * time.Minute)
	_, err := dir.SweepStale(ctx, 10*time.Minute)
	require.NoError(t, err)

	g, err := dir.Touch(ctx, id)
	require.NoError(t, err)
	assert.False(t, g.Stale)
	assert.Equal(t, clock.Now(), g.LastSeenAt)
	require.NotNil(t, g.Location)

	_, err = dir.Touch(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrGuardianNotFound)
}

func TestDirectoryStaleDoesNotReviveOptedOutGuardian(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	dir := newTestDirectory()
	dir.now = clock.Now

	id := guardianAt(t, dir, models.RoleStaff, 100)
	_, err := dir.SetActive(ctx, id, false)
	require.NoError(t, err)
	clock.Advance(11 * time.Minute)

	swept, err := dir.SweepStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, swept)

	g, err := dir.Touch(ctx, id)
	require.NoError(t, err)
	assert.False(t, g.Available())
}

func TestDirectoryRestoreKeepsLiveEntries(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory()
	live := guardianAt(t, dir, models.RoleStaff, 100)

	loc := utils.OffsetMeters(campus, 300, 0)
	stored := &models.Guardian{ID: primitive.NewObjectID(), Role: models.RoleSecurity, Active: true, Location: &loc}
	student := &models.Guardian{ID: primitive.NewObjectID(), Role: models.RoleStudent, Active: true}
	staleCopy := &models.Guardian{ID: live, Role: models.RoleStaff, Active: false}

	require.NoError(t, dir.Restore(ctx, []*models.Guardian{stored, student, staleCopy}))

	g, err := dir.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.False(t, g.Active, "restored guardians wait for a reconnect")

	_, err = dir.Get(ctx, student.ID)
	assert.ErrorIs(t, err, ErrGuardianNotFound)

	g, err = dir.Get(ctx, live)
	require.NoError(t, err)
	assert.True(t, g.Active)
}

func TestRedisDirectoryStore(t *testing.T) {
	ctx := context.Background()
	kv := newFakeKV(newFakeClock())
	store := NewRedisDirectoryStore(kv)
	dir := NewDirectoryService(store, nil, logger.NewDiscard())

	a := guardianAt(t, dir, models.RoleStaff, 50)
	b := guardianAt(t, dir, models.RoleSecurity, 500)

	g, err := store.Get(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStaff, g.Role)

	_, err = store.Get(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrGuardianNotFound)

	// value gone but index entry left behind
	kv.Delete(guardianKey(b.Hex()))
	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, a, all[0].ID)

	members, err := kv.SMembers(ctx, utils.CacheGuardianIndexKey)
	require.NoError(t, err)
	assert.Equal(t, []string{a.Hex()}, members)

	kv.err = errStoreDown
	_, err = store.List(ctx)
	assert.ErrorIs(t, err, errStoreDown)
}
