package utils

import (
	"math"

	"campusguard/internal/models"
)

// DistanceMeters is the haversine great-circle distance between two points.
// Both points must already satisfy IsValidCoordinates.
func DistanceMeters(a, b models.Location) float64 {
	return haversine(a.Lat, a.Lng, b.Lat, b.Lng) * EarthRadiusMeters
}

func IsWithinRadius(center, point models.Location, radiusMeters float64) bool {
	return DistanceMeters(center, point) <= radiusMeters
}

// haversine returns the central angle in radians between two points.
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lon1Rad := lon1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	lon2Rad := lon2 * math.Pi / 180

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// EstimateWalkMinutes is used for escort ETAs; walking pace defaults to 5 km/h.
func EstimateWalkMinutes(distanceMeters float64, speedKMH float64) int {
	if speedKMH <= 0 {
		speedKMH = 5
	}
	minutes := distanceMeters / 1000 / speedKMH * 60
	return int(math.Ceil(minutes))
}
