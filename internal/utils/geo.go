package utils

import (
	"math"

	"campusguard/internal/models"
)

func IsValidCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func IsValidLocation(loc models.Location) bool {
	return IsValidCoordinates(loc.Lat, loc.Lng)
}

// OffsetMeters moves a point north and east by the given distances. Accurate enough
// at campus scale; used to build fixtures and synthetic positions.
func OffsetMeters(origin models.Location, northMeters, eastMeters float64) models.Location {
	dLat := northMeters / EarthRadiusMeters * 180 / math.Pi
	dLng := eastMeters / (EarthRadiusMeters * math.Cos(origin.Lat*math.Pi/180)) * 180 / math.Pi
	return models.Location{Lat: origin.Lat + dLat, Lng: origin.Lng + dLng}
}
