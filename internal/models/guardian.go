package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Guardian struct {
	ID         primitive.ObjectID `json:"id" bson:"_id"`
	Role       Role               `json:"role" bson:"role"`
	Active     bool               `json:"active" bson:"active"`
	// Stale is set by the liveness sweep and cleared by any sign of life.
	// It is independent of Active.
	Stale      bool               `json:"stale" bson:"stale"`
	Location   *Location          `json:"location,omitempty" bson:"location,omitempty"`
	LastSeenAt time.Time          `json:"last_seen_at" bson:"last_seen_at"`
	UpdatedAt  time.Time          `json:"updated_at" bson:"updated_at"`
}

func (g *Guardian) HasLocation() bool {
	return g.Location != nil
}

// Available reports whether the guardian can be matched to new alerts.
func (g *Guardian) Available() bool {
	return g.Active && !g.Stale
}

func (g *Guardian) Clone() *Guardian {
	if g == nil {
		return nil
	}
	c := *g
	if g.Location != nil {
		loc := *g.Location
		c.Location = &loc
	}
	return &c
}

// RankedGuardian is a matcher result: a guardian and its distance to the alert.
type RankedGuardian struct {
	Guardian       *Guardian `json:"guardian"`
	DistanceMeters float64   `json:"distance_meters"`
}
