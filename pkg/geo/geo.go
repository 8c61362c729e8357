// Package geo implements the geofence check used when recording attendance.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// toleranceMeters absorbs floating point error for points sitting exactly on
// the fence.
const toleranceMeters = 1e-3

// Distance returns the great-circle distance in meters between two points
// given in degrees.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	if a > 1 {
		a = 1
	}
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// ValidCoordinate reports whether lat/lng are finite and within range.
func ValidCoordinate(lat, lng float64) bool {
	if !finite(lat) || !finite(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// IsWithinRadius reports whether the user point lies within radiusMeters of
// the center. Any degenerate input yields false.
func IsWithinRadius(userLat, userLng, centerLat, centerLng, radiusMeters float64) bool {
	if !ValidCoordinate(userLat, userLng) || !ValidCoordinate(centerLat, centerLng) {
		return false
	}
	if !finite(radiusMeters) || radiusMeters < 0 {
		return false
	}
	return Distance(userLat, userLng, centerLat, centerLng) <= radiusMeters+toleranceMeters
}

// Offset returns the point reached by travelling distanceMeters from the
// origin along the given bearing (degrees clockwise from north).
func Offset(lat, lng, distanceMeters, bearingDegrees float64) (float64, float64) {
	delta := distanceMeters / EarthRadiusMeters
	theta := bearingDegrees * math.Pi / 180
	phi1 := lat * math.Pi / 180
	lambda1 := lng * math.Pi / 180

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(math.Sin(theta)*math.Sin(delta)*math.Cos(phi1), math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2))

	return phi2 * 180 / math.Pi, math.Mod(lambda2*180/math.Pi+540, 360) - 180
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
