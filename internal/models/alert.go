package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AlertKind string
type AlertStatus string

const (
	AlertKindSOS    AlertKind = "sos"
	AlertKindEscort AlertKind = "escort"

	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusEscalated    AlertStatus = "escalated"
	AlertStatusResolved     AlertStatus = "resolved"
)

func (s AlertStatus) Valid() bool {
	switch s {
	case AlertStatusActive, AlertStatusAcknowledged, AlertStatusEscalated, AlertStatusResolved:
		return true
	}
	return false
}

func (k AlertKind) Valid() bool {
	return k == AlertKindSOS || k == AlertKindEscort
}

// Alert is an emergency submission or escort request and its lifecycle record.
// Escort requests carry a Destination; SOS alerts never do.
type Alert struct {
	ID                primitive.ObjectID   `json:"id" bson:"_id"`
	Kind              AlertKind            `json:"kind" bson:"kind"`
	RequesterID       primitive.ObjectID   `json:"requester_id" bson:"requester_id"`
	Location          Location             `json:"location" bson:"location"`
	Destination       *Location            `json:"destination,omitempty" bson:"destination,omitempty"`
	DestinationLabel  string               `json:"destination_label,omitempty" bson:"destination_label,omitempty"`
	Status            AlertStatus          `json:"status" bson:"status"`
	NotifiedGuardians []primitive.ObjectID `json:"notified_guardians" bson:"notified_guardians"`
	DeclinedBy        []primitive.ObjectID `json:"declined_by,omitempty" bson:"declined_by,omitempty"`
	AcknowledgedBy    *primitive.ObjectID  `json:"acknowledged_by" bson:"acknowledged_by"`
	AcknowledgedAt    *time.Time           `json:"acknowledged_at" bson:"acknowledged_at"`
	EscalatedAt       *time.Time           `json:"escalated_at" bson:"escalated_at"`
	ResolvedBy        *primitive.ObjectID  `json:"resolved_by" bson:"resolved_by"`
	ResolvedAt        *time.Time           `json:"resolved_at" bson:"resolved_at"`
	ResolutionNotes   string               `json:"resolution_notes,omitempty" bson:"resolution_notes,omitempty"`
	Version           int64                `json:"version" bson:"version"`
	CreatedAt         time.Time            `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at" bson:"updated_at"`
}

// Clone returns a deep copy so callers never share memory with the engine.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	c := *a
	if a.Destination != nil {
		d := *a.Destination
		c.Destination = &d
	}
	c.NotifiedGuardians = append([]primitive.ObjectID(nil), a.NotifiedGuardians...)
	c.DeclinedBy = append([]primitive.ObjectID(nil), a.DeclinedBy...)
	c.AcknowledgedBy = cloneID(a.AcknowledgedBy)
	c.ResolvedBy = cloneID(a.ResolvedBy)
	c.AcknowledgedAt = cloneTime(a.AcknowledgedAt)
	c.EscalatedAt = cloneTime(a.EscalatedAt)
	c.ResolvedAt = cloneTime(a.ResolvedAt)
	return &c
}

func (a *Alert) HasDeclined(guardianID primitive.ObjectID) bool {
	for _, id := range a.DeclinedBy {
		if id == guardianID {
			return true
		}
	}
	return false
}

// AllNotifiedDeclined is true when a targeted set exists and every member declined.
func (a *Alert) AllNotifiedDeclined() bool {
	if len(a.NotifiedGuardians) == 0 {
		return false
	}
	for _, id := range a.NotifiedGuardians {
		if !a.HasDeclined(id) {
			return false
		}
	}
	return true
}

func cloneID(id *primitive.ObjectID) *primitive.ObjectID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

type AlertFilter struct {
	Kind   AlertKind
	Status AlertStatus
}
