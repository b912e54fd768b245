package analysis

import (
	"sort"
	"time"

	"route-playback/internal/geo"
	"route-playback/internal/playback"
)

const milesPerKm = 0.621371

type Overview struct {
	TotalWaypoints       int        `json:"total_waypoints"`
	TotalDistanceKm      float64    `json:"total_distance_km"`
	TotalDistanceMiles   float64    `json:"total_distance_miles"`
	TotalDurationMinutes *float64   `json:"total_duration_minutes"`
	StartTime            *time.Time `json:"start_time"`
	EndTime              *time.Time `json:"end_time"`
}

type SpeedAnalysis struct {
	AverageSpeedKmh   float64           `json:"average_speed_kmh"`
	MedianSpeedKmh    float64           `json:"median_speed_kmh"`
	MaxSpeedKmh       float64           `json:"max_speed_kmh"`
	MinSpeedKmh       float64           `json:"min_speed_kmh"`
	SpeedDistribution SpeedDistribution `json:"speed_distribution"`
}

type ParkingLocation struct {
	Sequence        int     `json:"sequence"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	DurationMinutes *int    `json:"duration_minutes"`
	Address         *string `json:"address,omitempty"`
}

// ParkingAnalysis sums only known parking durations; stops without one are
// counted in UnknownDurationStops.
type ParkingAnalysis struct {
	TotalParkingStops             int               `json:"total_parking_stops"`
	TotalParkingMinutes           *int              `json:"total_parking_minutes"`
	AverageParkingDurationMinutes *float64          `json:"average_parking_duration_minutes"`
	LongestParkingMinutes         *int              `json:"longest_parking_minutes"`
	UnknownDurationStops          int               `json:"unknown_duration_stops"`
	ParkingLocations              []ParkingLocation `json:"parking_locations"`
}

type TimeAnalysis struct {
	MovingTimeHours       float64  `json:"moving_time_hours"`
	StationaryTimeHours   float64  `json:"stationary_time_hours"`
	LargestTimeGapMinutes *float64 `json:"largest_time_gap_minutes"`
}

// Report is the full analysis envelope for one route.
type Report struct {
	Overview        Overview         `json:"overview"`
	SpeedAnalysis   SpeedAnalysis    `json:"speed_analysis"`
	ParkingAnalysis ParkingAnalysis  `json:"parking_analysis"`
	RouteBounds     Bounds           `json:"route_bounds"`
	Segments        []SegmentMetrics `json:"segments"`
	TimeAnalysis    TimeAnalysis     `json:"time_analysis"`
}

// Analyze recomputes every figure from scratch; there is no incremental state.
func Analyze(wps []playback.Waypoint) Report {
	stats := ComputeStatistics(wps)
	segments := ComputeSegments(wps)

	speeds := make([]float64, 0, len(segments))
	for _, s := range segments {
		speeds = append(speeds, s.SpeedKmh)
	}

	return Report{
		Overview:        overview(wps, stats),
		SpeedAnalysis:   speedAnalysis(stats, speeds),
		ParkingAnalysis: parkingAnalysis(wps),
		RouteBounds:     ComputeBounds(wps),
		Segments:        segments,
		TimeAnalysis:    timeAnalysis(segments),
	}
}

func overview(wps []playback.Waypoint, stats Statistics) Overview {
	o := Overview{
		TotalWaypoints:     len(wps),
		TotalDistanceKm:    geo.Round(stats.TotalDistanceKm, 3),
		TotalDistanceMiles: geo.Round(stats.TotalDistanceKm*milesPerKm, 3),
	}
	if len(wps) == 0 {
		return o
	}
	o.StartTime = wps[0].Timestamp
	o.EndTime = wps[len(wps)-1].Timestamp
	if o.StartTime != nil && o.EndTime != nil && !o.EndTime.Before(*o.StartTime) {
		d := geo.Round(o.EndTime.Sub(*o.StartTime).Minutes(), 2)
		o.TotalDurationMinutes = &d
	}
	return o
}

func speedAnalysis(stats Statistics, speeds []float64) SpeedAnalysis {
	sa := SpeedAnalysis{
		AverageSpeedKmh:   geo.Round(stats.AverageSpeedKmh, 2),
		SpeedDistribution: Distribution(speeds),
	}
	if len(speeds) == 0 {
		return sa
	}
	sorted := append([]float64(nil), speeds...)
	sort.Float64s(sorted)
	sa.MedianSpeedKmh = geo.Round(sorted[len(sorted)/2], 2)
	sa.MinSpeedKmh = geo.Round(sorted[0], 2)
	sa.MaxSpeedKmh = geo.Round(sorted[len(sorted)-1], 2)
	return sa
}

func parkingAnalysis(wps []playback.Waypoint) ParkingAnalysis {
	pa := ParkingAnalysis{ParkingLocations: []ParkingLocation{}}
	total, known, longest := 0, 0, 0
	for _, w := range wps {
		if !w.IsParking {
			continue
		}
		pa.TotalParkingStops++
		pa.ParkingLocations = append(pa.ParkingLocations, ParkingLocation{
			Sequence:        w.Sequence,
			Latitude:        w.Latitude,
			Longitude:       w.Longitude,
			DurationMinutes: w.ParkingDurationMinutes,
			Address:         w.OriginalAddress,
		})
		if w.ParkingDurationMinutes == nil {
			pa.UnknownDurationStops++
			continue
		}
		d := *w.ParkingDurationMinutes
		total += d
		known++
		longest = max(longest, d)
	}
	if known > 0 {
		avg := geo.Round(float64(total)/float64(known), 2)
		pa.TotalParkingMinutes = &total
		pa.AverageParkingDurationMinutes = &avg
		pa.LongestParkingMinutes = &longest
	}
	return pa
}

func timeAnalysis(segments []SegmentMetrics) TimeAnalysis {
	var ta TimeAnalysis
	var moving, stationary float64
	for _, s := range segments {
		if s.DurationMinutes == nil {
			continue
		}
		d := *s.DurationMinutes
		if s.SpeedKmh > 0 {
			moving += d
		} else {
			stationary += d
		}
		if ta.LargestTimeGapMinutes == nil || d > *ta.LargestTimeGapMinutes {
			gap := d
			ta.LargestTimeGapMinutes = &gap
		}
	}
	ta.MovingTimeHours = geo.Round(moving/60, 2)
	ta.StationaryTimeHours = geo.Round(stationary/60, 2)
	return ta
}
