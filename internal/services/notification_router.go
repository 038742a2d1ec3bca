package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"campusguard/internal/models"
	"campusguard/internal/utils"
	"campusguard/pkg/logger"
	"campusguard/pkg/metrics"
	"campusguard/pkg/websocket"
)

// Broker is a topic registry. Delivery reaches currently connected
// subscribers only; nothing is queued for offline ones.
type Broker interface {
	Subscribe(subscriberID, topic string)
	Unsubscribe(subscriberID, topic string)
	UnsubscribeAll(subscriberID string)
	Publish(topic string, message websocket.Message) int
}

// OutboundNotifier reaches responders outside the realtime channel.
type OutboundNotifier interface {
	NotifyEscalation(ctx context.Context, alert *models.Alert)
}

func GuardianTopic(id primitive.ObjectID) string {
	return utils.TopicGuardianPrefix + id.Hex()
}

func UserTopic(id primitive.ObjectID) string {
	return utils.TopicUserPrefix + id.Hex()
}

func RoleTopic(role models.Role) string {
	return utils.TopicRolePrefix + role.String()
}

// NotificationRouter decides which topics receive each lifecycle event.
type NotificationRouter struct {
	broker          Broker
	outbound        OutboundNotifier
	outboundTimeout time.Duration
	now             func() time.Time
	logger          *logger.Logger
}

func NewNotificationRouter(broker Broker, outbound OutboundNotifier, log *logger.Logger) *NotificationRouter {
	return &NotificationRouter{
		broker:          broker,
		outbound:        outbound,
		outboundTimeout: 30 * time.Second,
		now:             time.Now,
		logger:          log.WithField("component", "notification_router"),
	}
}

// AlertCreated targets the matched guardians, or every guardian when nobody matched.
func (r *NotificationRouter) AlertCreated(alert *models.Alert, matched []models.RankedGuardian) int {
	if len(matched) == 0 {
		return r.publish(alert, models.LifecycleCreated, nil, map[string]interface{}{"broadcast": true}, utils.TopicAllGuardians)
	}

	delivered := 0
	for _, m := range matched {
		data := map[string]interface{}{
			"distance_meters": m.DistanceMeters,
			"walk_minutes":    utils.EstimateWalkMinutes(m.DistanceMeters, 0),
		}
		delivered += r.publish(alert, models.LifecycleCreated, nil, data, GuardianTopic(m.Guardian.ID))
	}
	return delivered
}

// AlertEscalated widens the net to every guardian and hands off to outbound channels.
func (r *NotificationRouter) AlertEscalated(alert *models.Alert, cause string) int {
	delivered := r.publish(alert, models.LifecycleEscalated, nil, map[string]interface{}{"cause": cause}, utils.TopicAllGuardians)

	if r.outbound != nil {
		snapshot := alert.Clone()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), r.outboundTimeout)
			defer cancel()
			r.outbound.NotifyEscalation(ctx, snapshot)
		}()
	}
	return delivered
}

func (r *NotificationRouter) AlertAcknowledged(alert *models.Alert, actorID primitive.ObjectID) int {
	return r.publish(alert, models.LifecycleAcknowledged, &actorID, nil, utils.TopicAllGuardians, UserTopic(alert.RequesterID))
}

func (r *NotificationRouter) AlertResolved(alert *models.Alert, actorID primitive.ObjectID) int {
	return r.publish(alert, models.LifecycleResolved, &actorID, nil, utils.TopicAllGuardians, UserTopic(alert.RequesterID))
}

// EscortDeclined only tells the requester; other guardians keep seeing the request as open.
func (r *NotificationRouter) EscortDeclined(alert *models.Alert, actorID primitive.ObjectID) int {
	return r.publish(alert, models.LifecycleDeclined, &actorID, nil, UserTopic(alert.RequesterID))
}

func (r *NotificationRouter) publish(alert *models.Alert, lifecycle models.LifecycleEvent, actorID *primitive.ObjectID, data map[string]interface{}, topics ...string) int {
	eventType, ok := models.EventTypeFor(alert.Kind, lifecycle)
	if !ok {
		r.logger.WithAlertID(alert.ID).WithField("kind", alert.Kind).Warn("No event type for lifecycle transition")
		return 0
	}

	now := r.now()
	event := models.Event{
		Type:      eventType,
		Alert:     alert,
		Timestamp: now,
		Data:      data,
	}
	if actorID != nil {
		event.ActorID = actorID.Hex()
	}

	delivered := 0
	for _, topic := range topics {
		delivered += r.broker.Publish(topic, websocket.Message{
			Type:      string(eventType),
			Timestamp: now.Unix(),
			Data:      event,
		})
	}

	metrics.RealtimeDeliveries.WithLabelValues(string(eventType)).Add(float64(delivered))
	r.logger.WithAlertID(alert.ID).WithFields(map[string]interface{}{
		"event":     eventType,
		"topics":    topics,
		"delivered": delivered,
	}).Debug("Published alert event")

	return delivered
}
