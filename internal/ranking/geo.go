package ranking

import "math"

const earthRadiusKm = 6371.0

// haversineKm computes the great-circle distance between two coordinates in
// kilometers.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// roundKm rounds a distance to 3 decimals, the resolution reported to
// clients.
func roundKm(km float64) float64 {
	return math.Round(km*1000) / 1000
}
