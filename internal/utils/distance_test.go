package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"campusguard/internal/models"
)

func TestDistanceMeters(t *testing.T) {
	origin := models.Location{Lat: 40.7128, Lng: -74.0060}

	t.Run("same point is zero", func(t *testing.T) {
		assert.Zero(t, DistanceMeters(origin, origin))
	})

	t.Run("symmetric", func(t *testing.T) {
		other := models.Location{Lat: 40.7306, Lng: -73.9352}
		assert.InDelta(t, DistanceMeters(origin, other), DistanceMeters(other, origin), 1e-9)
	})

	t.Run("one degree of latitude", func(t *testing.T) {
		north := models.Location{Lat: origin.Lat + 1, Lng: origin.Lng}
		expected := EarthRadiusMeters * math.Pi / 180
		assert.InDelta(t, expected, DistanceMeters(origin, north), 0.5)
	})

	t.Run("known city pair", func(t *testing.T) {
		london := models.Location{Lat: 51.5074, Lng: -0.1278}
		paris := models.Location{Lat: 48.8566, Lng: 2.3522}
		assert.InDelta(t, 343_500, DistanceMeters(london, paris), 1_500)
	})
}

func TestOffsetMetersRoundTrip(t *testing.T) {
	origin := models.Location{Lat: 37.8719, Lng: -122.2585}

	for _, meters := range []float64{50, 500, 10_000} {
		moved := OffsetMeters(origin, meters, 0)
		assert.InDelta(t, meters, DistanceMeters(origin, moved), meters*0.001)
	}

	east := OffsetMeters(origin, 0, 250)
	assert.InDelta(t, 250, DistanceMeters(origin, east), 0.5)
}

func TestIsWithinRadius(t *testing.T) {
	a := models.Location{Lat: 37.8719, Lng: -122.2585}
	b := OffsetMeters(a, 1000, 0)

	assert.True(t, IsWithinRadius(a, b, 1010))
	assert.False(t, IsWithinRadius(a, b, 990))
}

func TestIsValidCoordinates(t *testing.T) {
	tests := []struct {
		name     string
		lat, lng float64
		valid    bool
	}{
		{"origin", 0, 0, true},
		{"bounds", 90, -180, true},
		{"lat too high", 90.0001, 0, false},
		{"lat too low", -91, 0, false},
		{"lng too high", 0, 180.5, false},
		{"nan", math.NaN(), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidCoordinates(tt.lat, tt.lng))
		})
	}
}

func TestEstimateWalkMinutes(t *testing.T) {
	assert.Equal(t, 12, EstimateWalkMinutes(1000, 0))
	assert.Equal(t, 6, EstimateWalkMinutes(1000, 10))
	assert.Equal(t, 0, EstimateWalkMinutes(0, 5))
}
