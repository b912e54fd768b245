package playback

import "time"

func clock(h, m int) *time.Time {
	t := time.Date(2025, time.October, 13, h, m, 0, 0, time.UTC) // a Monday
	return &t
}

func wp(seq int, ts *time.Time, lat, lon float64) Waypoint {
	return Waypoint{Sequence: seq, Timestamp: ts, Latitude: lat, Longitude: lon}
}

func anchored(h, m int) time.Time {
	return Anchor(*clock(h, m), 0)
}

func scenario() []Waypoint {
	return []Waypoint{
		wp(1, clock(8, 0), 24.85, 67.00),
		wp(2, clock(9, 0), 24.90, 67.10),
	}
}
