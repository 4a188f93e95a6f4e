package geo

import "math"

//	φ1,λ1 is the start point, φ2,λ2 the end point
//	 	φ is latitude, λ is longitude
//
// https://www.movable-type.co.uk/scripts/latlong.html
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	p1LatRad := degreeToRadians(lat1)
	p2LatRad := degreeToRadians(lat2)

	diffLon := degreeToRadians(lon2 - lon1)

	y := math.Sin(diffLon) * math.Cos(p2LatRad)
	x := math.Cos(p1LatRad)*math.Sin(p2LatRad) - math.Sin(p1LatRad)*math.Cos(p2LatRad)*math.Cos(diffLon)
	theta := math.Atan2(y, x)

	bearing := math.Mod((theta*180/math.Pi)+360, 360)
	return bearing
}

// TurnDelta maps the change between two bearings into (-180, 180]. Negative
// is a left turn, positive a right turn.
func TurnDelta(b1, b2 float64) float64 {
	turn := b2 - b1
	if turn > 180 {
		turn -= 360
	} else if turn < -180 {
		turn += 360
	}
	return turn
}

