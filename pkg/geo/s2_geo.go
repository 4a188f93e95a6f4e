package geo

import (
	"github.com/golang/geo/s2"
)

// ProjectPointToSegment projects (pLat, pLon) onto the great-circle segment
// between a and b and returns the projected coordinate.
func ProjectPointToSegment(aLat, aLon, bLat, bLon, pLat, pLon float64) (float64, float64) {
	aS2 := s2.PointFromLatLng(s2.LatLngFromDegrees(aLat, aLon))
	bS2 := s2.PointFromLatLng(s2.LatLngFromDegrees(bLat, bLon))
	pS2 := s2.PointFromLatLng(s2.LatLngFromDegrees(pLat, pLon))
	projection := s2.Project(pS2, aS2, bS2)
	projLatLng := s2.LatLngFromPoint(projection)
	return projLatLng.Lat.Degrees(), projLatLng.Lng.Degrees()
}

// PerpendicularDistanceMeters returns the distance from (pLat, pLon) to its
// projection onto the segment between a and b, in meters.
func PerpendicularDistanceMeters(aLat, aLon, bLat, bLon, pLat, pLon float64) float64 {
	projLat, projLon := ProjectPointToSegment(aLat, aLon, bLat, bLon, pLat, pLon)
	return DistanceMeters(pLat, pLon, projLat, projLon)
}
