// Package playback locates a moving entity along a timed waypoint route.
//
// Everything here is a pure function of its inputs: waypoints are never
// mutated, nothing is cached, and no I/O happens. Road paths are supplied
// by the caller after the bracketing segment is known (see Prepare).
package playback

import (
	"time"

	"route-playback/internal/geo"
)

// Coordinate is a WGS84 point.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Waypoint is one timed stop or pass-through point of a route.
// Nil pointer fields mean "unknown", never zero.
type Waypoint struct {
	Sequence               int        `json:"sequence"`
	Timestamp              *time.Time `json:"timestamp"`
	DayOfWeek              int        `json:"day_of_week"` // 0=Monday
	Latitude               float64    `json:"latitude"`
	Longitude              float64    `json:"longitude"`
	IsParking              bool       `json:"is_parking"`
	ParkingDurationMinutes *int       `json:"parking_duration_minutes,omitempty"`
	OriginalAddress        *string    `json:"original_address,omitempty"`
}

// Coordinate returns the waypoint's position.
func (w Waypoint) Coordinate() Coordinate {
	return Coordinate{Latitude: w.Latitude, Longitude: w.Longitude}
}

// DistanceKm returns the haversine distance between two waypoints.
func DistanceKm(a, b Waypoint) float64 {
	return geo.DistanceKm(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// RoadPath is an ordered polyline approximating the road between two waypoints.
// A nil RoadPath means no path was supplied.
type RoadPath []Coordinate
