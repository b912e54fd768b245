package playback

import (
	"time"

	"route-playback/internal/geo"
)

// Status is the playback state of an entity at the query instant.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusMoving     Status = "moving"
	StatusParked     Status = "parked"
	StatusCompleted  Status = "completed"
	StatusInactive   Status = "inactive"
)

// Query is the instant to resolve. DayOfWeek (Monday=0) selects the weekday
// of the reference week; without it the instant's own weekday is used.
// DayActive=false forces an inactive result.
type Query struct {
	At        time.Time
	DayOfWeek *int
	DayActive *bool
}

// SimulatedPosition is the response envelope consumed by the frontend.
// Field names are a wire contract.
type SimulatedPosition struct {
	Status        Status             `json:"status"`
	Message       string             `json:"message,omitempty"`
	Position      *Coordinate        `json:"position,omitempty"`
	MovementData  *MovementData      `json:"movement_data,omitempty"`
	RouteProgress *RouteProgress     `json:"route_progress,omitempty"`
	ETA           *ETA               `json:"eta,omitempty"`
	Distance      *Distance          `json:"distance,omitempty"`
	Interpolation *InterpolationInfo `json:"interpolation,omitempty"`
}

type MovementData struct {
	SpeedKmh       float64 `json:"speed_kmh"`
	SpeedMs        float64 `json:"speed_ms"`
	Bearing        float64 `json:"bearing"`
	Heading        string  `json:"heading"`
	IsAccelerating bool    `json:"is_accelerating"`
	IsDecelerating bool    `json:"is_decelerating"`
}

type TimedPosition struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

type CurrentSegment struct {
	FromWaypointSequence   int           `json:"from_waypoint_sequence"`
	ToWaypointSequence     int           `json:"to_waypoint_sequence"`
	SegmentProgressPercent float64       `json:"segment_progress_percent"`
	FromPosition           TimedPosition `json:"from_position"`
	ToPosition             TimedPosition `json:"to_position"`
}

type RouteProgress struct {
	CurrentSegment         CurrentSegment `json:"current_segment"`
	OverallProgressPercent float64        `json:"overall_progress_percent"`
	CompletedWaypoints     int            `json:"completed_waypoints"`
	TotalWaypoints         int            `json:"total_waypoints"`
	RemainingWaypoints     int            `json:"remaining_waypoints"`
}

// ETA figures may be negative only when the input clocks are inconsistent.
type ETA struct {
	NextWaypoint          time.Time `json:"next_waypoint"`
	FinalDestination      time.Time `json:"final_destination"`
	MinutesToNextWaypoint float64   `json:"minutes_to_next_waypoint"`
	MinutesToDestination  float64   `json:"minutes_to_destination"`
	SecondsToNextWaypoint float64   `json:"seconds_to_next_waypoint"`
	SecondsToDestination  float64   `json:"seconds_to_destination"`
}

type Distance struct {
	ToNextWaypointKm float64 `json:"to_next_waypoint_km"`
	ToNextWaypointM  int     `json:"to_next_waypoint_m"`
	TotalRemainingKm float64 `json:"total_remaining_km"`
	TotalCompletedKm float64 `json:"total_completed_km"`
}

type InterpolationInfo struct {
	Method         Method         `json:"method"`
	FallbackReason FallbackReason `json:"fallback_reason,omitempty"`
}

// Frame is a query resolved up to the point where a road path could be used.
// When Segment reports a bracketing pair, the caller may fetch a path for it
// and pass it to Resolve; every other outcome is already final.
type Frame struct {
	timeline  Timeline
	at        time.Time
	result    SimulatedPosition
	segment   Segment
	bracketed bool
}

// Prepare anchors the route and the query and classifies the query instant.
func Prepare(waypoints []Waypoint, q Query) *Frame {
	f := &Frame{at: AnchorQuery(q.At, q.DayOfWeek)}
	if q.DayActive != nil && !*q.DayActive {
		f.result = SimulatedPosition{Status: StatusInactive, Message: "Day not active"}
		return f
	}
	f.timeline = NewTimeline(waypoints)
	if len(f.timeline) == 0 {
		f.result = SimulatedPosition{Status: StatusInactive}
		return f
	}

	first, last := f.timeline.First(), f.timeline.Last()
	switch {
	case f.at.Before(first.At):
		f.result = SimulatedPosition{Status: StatusNotStarted, Message: "Route not started", Position: coordinatePtr(first)}
	case f.at.After(last.At):
		f.result = SimulatedPosition{Status: StatusCompleted, Message: "Route completed", Position: coordinatePtr(last)}
	default:
		seg, ok := f.timeline.Locate(f.at)
		if !ok {
			f.result = SimulatedPosition{Status: StatusInactive, Position: coordinatePtr(first)}
			return f
		}
		f.segment, f.bracketed = seg, true
	}
	return f
}

// Segment returns the bracketing pair when the entity is between two waypoints.
func (f *Frame) Segment() (Segment, bool) { return f.segment, f.bracketed }

// At returns the anchored query instant.
func (f *Frame) At() time.Time { return f.at }

// Timeline returns the anchored, sorted route.
func (f *Frame) Timeline() Timeline { return f.timeline }

// Resolve produces the final position. path is ignored unless the frame is bracketed.
func (f *Frame) Resolve(path RoadPath) SimulatedPosition {
	if !f.bracketed {
		return f.result
	}
	seg, tl, at := f.segment, f.timeline, f.at
	interp := Interpolate(seg, path)

	speed := geo.SpeedKmh(interp.SegmentDistanceKm, seg.Duration().Hours())
	status := StatusParked
	if speed > 0 {
		status = StatusMoving
	}

	n := len(tl)
	denom := n - 1
	if denom < 1 {
		denom = 1
	}
	overall := (float64(seg.Index) + seg.Progress) / float64(denom) * 100
	remainingWaypoints := n - seg.Index
	if remainingWaypoints < 0 {
		remainingWaypoints = 0
	}

	toNext := interp.SegmentDistanceKm - interp.DistanceTraveledKm
	if toNext < 0 {
		toNext = 0
	}
	completedKm, remainingKm := interp.DistanceTraveledKm, toNext
	for i := 0; i+1 < n; i++ {
		switch {
		case i < seg.Index:
			completedKm += DistanceKm(tl[i].Waypoint, tl[i+1].Waypoint)
		case i > seg.Index:
			remainingKm += DistanceKm(tl[i].Waypoint, tl[i+1].Waypoint)
		}
	}

	last := tl.Last()
	pos := interp.Position
	return SimulatedPosition{
		Status:   status,
		Position: &pos,
		MovementData: &MovementData{
			SpeedKmh: geo.Round(speed, 2),
			SpeedMs:  geo.Round(speed/3.6, 2),
			Bearing:  geo.Round(interp.BearingDeg, 1),
			Heading:  geo.Heading(interp.BearingDeg),
		},
		RouteProgress: &RouteProgress{
			CurrentSegment: CurrentSegment{
				FromWaypointSequence:   seg.From.Sequence,
				ToWaypointSequence:     seg.To.Sequence,
				SegmentProgressPercent: geo.Round(seg.Progress*100, 2),
				FromPosition:           timedPosition(seg.From),
				ToPosition:             timedPosition(seg.To),
			},
			OverallProgressPercent: geo.Round(overall, 2),
			CompletedWaypoints:     seg.Index,
			TotalWaypoints:         n,
			RemainingWaypoints:     remainingWaypoints,
		},
		ETA: &ETA{
			NextWaypoint:          seg.To.At,
			FinalDestination:      last.At,
			MinutesToNextWaypoint: geo.Round(seg.To.At.Sub(at).Minutes(), 2),
			MinutesToDestination:  geo.Round(last.At.Sub(at).Minutes(), 2),
			SecondsToNextWaypoint: geo.Round(seg.To.At.Sub(at).Seconds(), 0),
			SecondsToDestination:  geo.Round(last.At.Sub(at).Seconds(), 0),
		},
		Distance: &Distance{
			ToNextWaypointKm: geo.Round(toNext, 3),
			ToNextWaypointM:  int(toNext * 1000),
			TotalRemainingKm: geo.Round(remainingKm, 3),
			TotalCompletedKm: geo.Round(completedKm, 3),
		},
		Interpolation: &InterpolationInfo{Method: interp.Method, FallbackReason: interp.Fallback},
	}
}

// Simulate resolves a query with straight-line interpolation.
func Simulate(waypoints []Waypoint, q Query) SimulatedPosition {
	return Prepare(waypoints, q).Resolve(nil)
}

func coordinatePtr(s Stop) *Coordinate {
	c := s.Coordinate()
	return &c
}

func timedPosition(s Stop) TimedPosition {
	return TimedPosition{Latitude: s.Latitude, Longitude: s.Longitude, Timestamp: s.At}
}
