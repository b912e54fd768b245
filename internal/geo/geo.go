// Package geo holds the spherical-earth primitives shared by playback and analysis.
package geo

import "math"

// EarthRadiusKm is the mean earth radius used by every distance in this module.
const EarthRadiusKm = 6371.0

var headings = [8]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

func toRad(d float64) float64 { return d * math.Pi / 180 }

// DistanceKm returns the great-circle (haversine) distance between two points.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// BearingDeg returns the initial compass bearing from point 1 to point 2 in [0,360).
func BearingDeg(lat1, lon1, lat2, lon2 float64) float64 {
	y := math.Sin(toRad(lon2-lon1)) * math.Cos(toRad(lat2))
	x := math.Cos(toRad(lat1))*math.Sin(toRad(lat2)) - math.Sin(toRad(lat1))*math.Cos(toRad(lat2))*math.Cos(toRad(lon2-lon1))
	brng := math.Mod(math.Atan2(y, x)*180/math.Pi+360, 360)
	// Mod can round up to exactly 360 for tiny negative angles.
	if brng >= 360 {
		brng = 0
	}
	return brng
}

// SpeedKmh returns distance/hours, or 0 when hours is not positive.
func SpeedKmh(distanceKm, hours float64) float64 {
	if hours <= 0 {
		return 0
	}
	return distanceKm / hours
}

// Heading buckets a bearing into an 8-way compass point, 45 degrees per bucket starting at N.
func Heading(bearing float64) string {
	b := math.Mod(bearing, 360)
	if b < 0 {
		b += 360
	}
	return headings[int(b/45)%8]
}

// Lerp interpolates between a and b, returning the endpoints exactly outside (0,1).
func Lerp(a, b, p float64) float64 {
	if p <= 0 {
		return a
	}
	if p >= 1 {
		return b
	}
	return a + (b-a)*p
}

// Clamp constrains v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ValidCoordinate reports whether lat/lon are finite and inside WGS84 ranges.
func ValidCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
