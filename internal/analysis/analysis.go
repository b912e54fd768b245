// Package analysis derives whole-route statistics from a waypoint sequence.
// Waypoints are taken in the caller's order; nothing is re-sorted or anchored.
package analysis

import (
	"route-playback/internal/geo"
	"route-playback/internal/playback"
)

// Statistics are the distance and speed figures of a route.
type Statistics struct {
	TotalDistanceKm float64 `json:"total_distance_km"`
	AverageSpeedKmh float64 `json:"average_speed_kmh"`
	MaxSpeedKmh     float64 `json:"max_speed_kmh"`
}

// ComputeStatistics sums haversine distance across consecutive pairs. The
// average is the arithmetic mean of the per-pair speeds, counted only where
// both timestamps are known and strictly increasing.
func ComputeStatistics(wps []playback.Waypoint) Statistics {
	if len(wps) < 2 {
		return Statistics{}
	}
	var st Statistics
	var sum float64
	var count int
	for i := 1; i < len(wps); i++ {
		p1, p2 := wps[i-1], wps[i]
		dist := playback.DistanceKm(p1, p2)
		st.TotalDistanceKm += dist
		if p1.Timestamp == nil || p2.Timestamp == nil || !p2.Timestamp.After(*p1.Timestamp) {
			continue
		}
		speed := geo.SpeedKmh(dist, p2.Timestamp.Sub(*p1.Timestamp).Hours())
		sum += speed
		count++
		if speed > st.MaxSpeedKmh {
			st.MaxSpeedKmh = speed
		}
	}
	if count > 0 {
		st.AverageSpeedKmh = sum / float64(count)
	}
	return st
}

// Bounds is the bounding box of a route. All fields are nil for an empty route.
type Bounds struct {
	Northeast *playback.Coordinate `json:"northeast"`
	Southwest *playback.Coordinate `json:"southwest"`
	Center    *playback.Coordinate `json:"center"`
}

func ComputeBounds(wps []playback.Waypoint) Bounds {
	if len(wps) == 0 {
		return Bounds{}
	}
	ne := wps[0].Coordinate()
	sw := ne
	for _, w := range wps[1:] {
		if w.Latitude > ne.Latitude {
			ne.Latitude = w.Latitude
		}
		if w.Longitude > ne.Longitude {
			ne.Longitude = w.Longitude
		}
		if w.Latitude < sw.Latitude {
			sw.Latitude = w.Latitude
		}
		if w.Longitude < sw.Longitude {
			sw.Longitude = w.Longitude
		}
	}
	center := playback.Coordinate{
		Latitude:  (ne.Latitude + sw.Latitude) / 2,
		Longitude: (ne.Longitude + sw.Longitude) / 2,
	}
	return Bounds{Northeast: &ne, Southwest: &sw, Center: &center}
}

// SegmentMetrics describes one consecutive pair of waypoints.
type SegmentMetrics struct {
	SegmentNumber   int      `json:"segment_number"`
	FromSequence    int      `json:"from_sequence"`
	ToSequence      int      `json:"to_sequence"`
	DistanceKm      float64  `json:"distance_km"`
	DistanceM       int      `json:"distance_m"`
	DurationMinutes *float64 `json:"duration_minutes"`
	SpeedKmh        float64  `json:"speed_kmh"`
	Bearing         float64  `json:"bearing"`
	IsParking       bool     `json:"is_parking"`
}

// ComputeSegments returns per-pair metrics. Duration is nil when either
// timestamp is unknown, and negative durations are floored at zero.
func ComputeSegments(wps []playback.Waypoint) []SegmentMetrics {
	segs := make([]SegmentMetrics, 0, max(len(wps)-1, 0))
	for i := 1; i < len(wps); i++ {
		p1, p2 := wps[i-1], wps[i]
		dist := playback.DistanceKm(p1, p2)
		s := SegmentMetrics{
			SegmentNumber: i,
			FromSequence:  p1.Sequence,
			ToSequence:    p2.Sequence,
			DistanceKm:    geo.Round(dist, 3),
			DistanceM:     int(dist * 1000),
			Bearing:       geo.Round(geo.BearingDeg(p1.Latitude, p1.Longitude, p2.Latitude, p2.Longitude), 1),
			IsParking:     p2.IsParking,
		}
		if p1.Timestamp != nil && p2.Timestamp != nil {
			minutes := max(p2.Timestamp.Sub(*p1.Timestamp).Minutes(), 0)
			rounded := geo.Round(minutes, 2)
			s.DurationMinutes = &rounded
			s.SpeedKmh = geo.Round(geo.SpeedKmh(dist, minutes/60), 2)
		}
		segs = append(segs, s)
	}
	return segs
}

// SpeedDistribution counts speeds into half-open km/h bins.
type SpeedDistribution struct {
	Under20 int `json:"0-20"`
	From20  int `json:"20-40"`
	From40  int `json:"40-60"`
	Over60  int `json:"60+"`
}

func Distribution(speeds []float64) SpeedDistribution {
	var d SpeedDistribution
	for _, s := range speeds {
		switch {
		case s < 20:
			d.Under20++
		case s < 40:
			d.From20++
		case s < 60:
			d.From40++
		default:
			d.Over60++
		}
	}
	return d
}
