package models

import (
	"time"
)

type EventType string

const (
	EventNewAlert          EventType = "new-alert"
	EventAlertEscalated    EventType = "alert-escalated"
	EventAlertAcknowledged EventType = "alert-acknowledged"
	EventAlertResolved     EventType = "alert-resolved"

	EventNewEscortRequest EventType = "new-escort-request"
	EventEscortEscalated  EventType = "escort-escalated"
	EventEscortAccepted   EventType = "escort-accepted"
	EventEscortDeclined   EventType = "escort-declined"
	EventEscortResolved   EventType = "escort-resolved"
)

// LifecycleEvent names the transition an event reports, independent of alert kind.
type LifecycleEvent int

const (
	LifecycleCreated LifecycleEvent = iota
	LifecycleEscalated
	LifecycleAcknowledged
	LifecycleDeclined
	LifecycleResolved
)

var eventNames = map[AlertKind]map[LifecycleEvent]EventType{
	AlertKindSOS: {
		LifecycleCreated:      EventNewAlert,
		LifecycleEscalated:    EventAlertEscalated,
		LifecycleAcknowledged: EventAlertAcknowledged,
		LifecycleResolved:     EventAlertResolved,
	},
	AlertKindEscort: {
		LifecycleCreated:      EventNewEscortRequest,
		LifecycleEscalated:    EventEscortEscalated,
		LifecycleAcknowledged: EventEscortAccepted,
		LifecycleDeclined:     EventEscortDeclined,
		LifecycleResolved:     EventEscortResolved,
	},
}

// EventTypeFor maps a lifecycle transition to the wire event name for the alert kind.
func EventTypeFor(kind AlertKind, lifecycle LifecycleEvent) (EventType, bool) {
	t, ok := eventNames[kind][lifecycle]
	return t, ok
}

// Event is the payload pushed to realtime subscribers.
type Event struct {
	Type      EventType              `json:"type"`
	Alert     *Alert                 `json:"alert,omitempty"`
	ActorID   string                 `json:"actor_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
