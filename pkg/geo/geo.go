package geo

import (
	"math"
)

const earthRadiusKM = 6371.0

type Location struct {
	Latitude  float64
	Longitude float64
}

func degreeToRadians(angle float64) float64 {
	return angle * (math.Pi / 180.0)
}

func NewLocation(latDegree float64, lonDegree float64) Location {
	return Location{
		Latitude:  degreeToRadians(latDegree),
		Longitude: degreeToRadians(lonDegree),
	}
}

func havFunction(angleRad float64) float64 {
	return (1 - math.Cos(angleRad)) / 2.0
}

func havFormula(one Location, two Location) float64 {
	latitudeDiff := one.Latitude - two.Latitude
	longitudeDiff := one.Longitude - two.Longitude

	havLatitude := havFunction(latitudeDiff)
	havLongitude := havFunction(longitudeDiff)

	return havLatitude + math.Cos(one.Latitude)*math.Cos(two.Latitude)*havLongitude
}

func archaversine(havAngle float64) float64 {
	return 2.0 * math.Asin(math.Sqrt(havAngle))
}

// HaversineDistance returns the great-circle distance in kilometers.
func HaversineDistance(one Location, two Location) float64 {
	return earthRadiusKM * archaversine(havFormula(one, two))
}

// DistanceMeters is HaversineDistance over degree coordinates, in meters.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	return HaversineDistance(NewLocation(lat1, lon1), NewLocation(lat2, lon2)) * 1000.0
}
