package geospatial

import "math"

const earthRadiusKm = 6371.0

// km per degree of latitude
const kmPerDegree = 111.32

// HaversineKm returns the great-circle distance in kilometres between two points.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// BoundingBox returns a box enclosing the circle of radiusKm around a point.
// Longitude span is clamped near the poles.
func BoundingBox(lat, lng, radiusKm float64) (minLat, minLng, maxLat, maxLng float64) {
	latDelta := radiusKm / kmPerDegree
	cos := math.Cos(toRad(lat))
	lngDelta := 180.0
	if cos > 1e-6 {
		lngDelta = math.Min(180, radiusKm/(kmPerDegree*cos))
	}
	return math.Max(-90, lat-latDelta), lng - lngDelta, math.Min(90, lat+latDelta), lng + lngDelta
}

// RoundKm rounds a distance to two decimals, the precision the search service reports.
func RoundKm(km float64) float64 {
	return math.Round(km*100) / 100
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
