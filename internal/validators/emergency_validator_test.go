package validators

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func ptr(v float64) *float64 { return &v }

func TestSOSRequestValidation(t *testing.T) {
	assert.Empty(t, ValidateStruct(&SOSRequest{Lat: ptr(0), Lng: ptr(0)}))

	errs := ValidateStruct(&SOSRequest{Lat: ptr(91), Lng: nil})
	fields := errs.Fields()
	assert.Contains(t, fields, "lat")
	assert.Contains(t, fields, "lng")
	assert.Equal(t, "lng is required", fields["lng"])
}

func TestEscortRequestValidation(t *testing.T) {
	req := &EscortRequest{Lat: ptr(37.42), Lng: ptr(-122.17), DestinationLabel: " <b>Library</b> "}
	errs := ValidateEscortRequest(req)
	require.Len(t, errs, 1)
	assert.Equal(t, "destination", errs[0].Field)
	assert.Equal(t, "Library", req.DestinationLabel)

	req.Destination = &LocationRequest{Lat: ptr(37.43), Lng: ptr(-190)}
	errs = ValidateEscortRequest(req)
	require.Len(t, errs, 1)
	assert.Equal(t, "destination.lng", errs[0].Field)

	req.Destination.Lng = ptr(-122.16)
	req.DestinationLabel = strings.Repeat("a", 121)
	errs = ValidateEscortRequest(req)
	require.Len(t, errs, 1)
	assert.Equal(t, "destination_label must be at most 120 characters", errs[0].Message)
}

func TestNearbyQueryAndIDParam(t *testing.T) {
	assert.Empty(t, ValidateStruct(&NearbyQuery{Lat: ptr(1), Lng: ptr(1)}))
	assert.NotEmpty(t, ValidateStruct(&NearbyQuery{Lat: ptr(1), Lng: ptr(1), Limit: 500}))
	assert.NotEmpty(t, ValidateStruct(&NearbyQuery{Lat: ptr(1), Lng: ptr(1), RadiusM: -1}))

	id := primitive.NewObjectID()
	param := IDParam{ID: id.Hex()}
	assert.Empty(t, ValidateStruct(&param))
	assert.Equal(t, id, param.ObjectID())

	errs := ValidateStruct(&IDParam{ID: "nope"})
	require.Len(t, errs, 1)
	assert.Equal(t, "Invalid ID format", errs[0].Message)
	assert.False(t, IsValidObjectID("nope"))
}

func TestAvailabilityRequiresFlag(t *testing.T) {
	active := false
	assert.Empty(t, ValidateStruct(&AvailabilityRequest{Active: &active}))
	assert.NotEmpty(t, ValidateStruct(&AvailabilityRequest{}))
}
