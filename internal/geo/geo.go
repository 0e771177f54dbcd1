package geo

import (
	"math"

	"shuttled/internal/domain"
)

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle (haversine) distance between two
// points in kilometres.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// Bearing returns the initial bearing in degrees from point 1 to point 2,
// normalised to [0, 360).
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dLon := radians(lon2 - lon1)

	y := math.Sin(dLon) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLon)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// PathDistanceKm sums consecutive great-circle distances over a trip path.
func PathDistanceKm(points []domain.TripPoint) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += DistanceKm(points[i-1].Lat, points[i-1].Lon, points[i].Lat, points[i].Lon)
	}
	return total
}

// AtOrBeyond reports whether point B has reached or passed point A along a
// route's forward progress, where forward is the bearing from A to the next
// stop. The point counts as beyond when its along-track component relative
// to A is non-negative.
func AtOrBeyond(aLat, aLon, nextLat, nextLon, bLat, bLon float64) bool {
	if aLat == bLat && aLon == bLon {
		return true
	}
	forward := Bearing(aLat, aLon, nextLat, nextLon)
	toB := Bearing(aLat, aLon, bLat, bLon)

	diff := math.Abs(math.Mod(forward-toB+540, 360) - 180)
	return diff <= 90
}

// NearestStop returns the stop in the sequence closest to the given point
// and its distance in kilometres. ok is false for an empty sequence.
func NearestStop(stops []domain.RouteStop, lat, lon float64) (stop domain.RouteStop, distKm float64, ok bool) {
	if len(stops) == 0 {
		return domain.RouteStop{}, 0, false
	}
	best := 0
	bestDist := DistanceKm(lat, lon, stops[0].Lat, stops[0].Lon)
	for i := 1; i < len(stops); i++ {
		d := DistanceKm(lat, lon, stops[i].Lat, stops[i].Lon)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return stops[best], bestDist, true
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
