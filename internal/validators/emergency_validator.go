package validators

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"campusguard/internal/models"
)

// Coordinates are pointers so a missing field is told apart from 0.
type LocationRequest struct {
	Lat *float64 `json:"lat" validate:"required,latitude"`
	Lng *float64 `json:"lng" validate:"required,longitude"`
}

func (r *LocationRequest) Location() models.Location {
	return models.Location{Lat: *r.Lat, Lng: *r.Lng}
}

type SOSRequest struct {
	Lat *float64 `json:"lat" validate:"required,latitude"`
	Lng *float64 `json:"lng" validate:"required,longitude"`
}

func (r *SOSRequest) Location() models.Location {
	return models.Location{Lat: *r.Lat, Lng: *r.Lng}
}

type EscortRequest struct {
	Lat              *float64         `json:"lat" validate:"required,latitude"`
	Lng              *float64         `json:"lng" validate:"required,longitude"`
	Destination      *LocationRequest `json:"destination" validate:"required"`
	DestinationLabel string           `json:"destination_label" validate:"omitempty,max=120"`
}

func (r *EscortRequest) Location() models.Location {
	return models.Location{Lat: *r.Lat, Lng: *r.Lng}
}

// ResolveRequest carries optional notes; their length limit is configurable
// and enforced by the alert engine.
type ResolveRequest struct {
	Notes string `json:"notes"`
}

type AvailabilityRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type NearbyQuery struct {
	Lat     *float64 `form:"lat" validate:"required,latitude"`
	Lng     *float64 `form:"lng" validate:"required,longitude"`
	Limit   int      `form:"limit" validate:"omitempty,min=1,max=50"`
	RadiusM float64  `form:"radius_m" validate:"omitempty,gt=0"`
}

func (q *NearbyQuery) Location() models.Location {
	return models.Location{Lat: *q.Lat, Lng: *q.Lng}
}

type IDParam struct {
	ID string `uri:"id" validate:"required,object_id"`
}

func (p IDParam) ObjectID() primitive.ObjectID {
	id, _ := primitive.ObjectIDFromHex(p.ID)
	return id
}

func ValidateEscortRequest(req *EscortRequest) ValidationErrors {
	errs := ValidateStruct(req)
	req.DestinationLabel = SanitizeInput(req.DestinationLabel)
	return errs
}
