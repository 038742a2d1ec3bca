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
	"campusguard/pkg/websocket"
)

func TestSessionTopics(t *testing.T) {
	id := primitive.NewObjectID()

	student := SessionTopics(websocket.Session{UserID: id, Role: "student"})
	assert.Equal(t, []string{UserTopic(id)}, student)

	security := SessionTopics(websocket.Session{UserID: id, Role: "security"})
	assert.ElementsMatch(t, []string{UserTopic(id), GuardianTopic(id), RoleTopic(models.RoleSecurity), utils.TopicAllGuardians}, security)
}

func TestPresenceGuardianLifecycle(t *testing.T) {
	ctx := context.Background()
	broker := newFakeBroker()
	dir := newTestDirectory()
	presence := NewPresenceService(broker, dir, logger.NewDiscard())
	session := websocket.Session{ID: "s1", UserID: primitive.NewObjectID(), Role: "staff"}

	presence.OnConnect(session)
	topics := broker.Topics(session.SubscriberID())
	assert.True(t, topics[utils.TopicAllGuardians])
	assert.True(t, topics[GuardianTopic(session.UserID)])

	g, err := dir.Get(ctx, session.UserID)
	require.NoError(t, err)
	assert.True(t, g.Active)
	assert.Nil(t, g.Location)

	presence.OnLocation(session, campus.Lat, campus.Lng)
	presence.OnLocation(session, 500, 0)
	g, err = dir.Get(ctx, session.UserID)
	require.NoError(t, err)
	require.NotNil(t, g.Location)
	assert.Equal(t, campus, *g.Location)

	presence.OnDisconnect(session, false)
	g, _ = dir.Get(ctx, session.UserID)
	assert.True(t, g.Active)

	presence.OnDisconnect(session, true)
	g, _ = dir.Get(ctx, session.UserID)
	assert.False(t, g.Active)
}

func TestPresenceIgnoresStudentsInDirectory(t *testing.T) {
	ctx := context.Background()
	broker := newFakeBroker()
	dir := newTestDirectory()
	presence := NewPresenceService(broker, dir, logger.NewDiscard())
	session := websocket.Session{ID: "s1", UserID: primitive.NewObjectID(), Role: "student"}

	presence.OnConnect(session)
	presence.OnLocation(session, campus.Lat, campus.Lng)
	presence.OnDisconnect(session, true)

	assert.True(t, broker.Topics(session.SubscriberID())[UserTopic(session.UserID)])
	_, err := dir.Get(ctx, session.UserID)
	assert.ErrorIs(t, err, ErrGuardianNotFound)
}

func TestPresenceLocationPushRevivesStaleGuardian(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	dir := newTestDirectory()
	dir.now = clock.Now
	presence := NewPresenceService(newFakeBroker(), dir, logger.NewDiscard())
	matcher := NewMatcher(dir)
	session := websocket.Session{ID: "s1", UserID: primitive.NewObjectID(), Role: "security"}

	presence.OnConnect(session)
	presence.OnLocation(session, campus.Lat, campus.Lng)
	matched, err := matcher.FindNearest(ctx, campus, 5)
	require.NoError(t, err)
	require.Len(t, matched, 1)

	clock.Advance(11 * time.Minute)
	swept, err := dir.SweepStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)
	matched, err = matcher.FindNearest(ctx, campus, 5)
	require.NoError(t, err)
	assert.Empty(t, matched)

	presence.OnLocation(session, campus.Lat, campus.Lng)
	matched, err = matcher.FindNearest(ctx, campus, 5)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, session.UserID, matched[0].Guardian.ID)

	g, err := dir.Get(ctx, session.UserID)
	require.NoError(t, err)
	assert.True(t, g.Active)
	assert.False(t, g.Stale)
}

func TestPresenceHeartbeatKeepsGuardianFresh(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	dir := newTestDirectory()
	dir.now = clock.Now
	presence := NewPresenceService(newFakeBroker(), dir, logger.NewDiscard())
	session := websocket.Session{ID: "s1", UserID: primitive.NewObjectID(), Role: "staff"}

	presence.OnHeartbeat(session)
	_, err := dir.Get(ctx, session.UserID)
	assert.ErrorIs(t, err, ErrGuardianNotFound)

	presence.OnConnect(session)
	presence.OnLocation(session, campus.Lat, campus.Lng)
	for i := 0; i < 3; i++ {
		clock.Advance(6 * time.Minute)
		presence.OnHeartbeat(session)
	}

	swept, err := dir.SweepStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, swept)

	role := models.RoleStaff
	active, err := dir.ListActive(ctx, &role)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, session.UserID, active[0].ID)
}
