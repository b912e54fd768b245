package playback

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func query(h, m int) Query {
	day := 0
	return Query{At: *clock(h, m), DayOfWeek: &day}
}

func TestSimulate_Moving(t *testing.T) {
	res := Simulate(scenario(), query(8, 30))

	require.Equal(t, StatusMoving, res.Status)
	require.NotNil(t, res.Position)
	assert.InDelta(t, 24.875, res.Position.Latitude, 1e-9)
	assert.InDelta(t, 67.05, res.Position.Longitude, 1e-9)

	require.NotNil(t, res.RouteProgress)
	assert.Equal(t, 50.0, res.RouteProgress.CurrentSegment.SegmentProgressPercent)
	assert.Equal(t, 50.0, res.RouteProgress.OverallProgressPercent)
	assert.Equal(t, 1, res.RouteProgress.CurrentSegment.FromWaypointSequence)
	assert.Equal(t, 2, res.RouteProgress.CurrentSegment.ToWaypointSequence)
	assert.Equal(t, 0, res.RouteProgress.CompletedWaypoints)
	assert.Equal(t, 2, res.RouteProgress.TotalWaypoints)
	assert.Equal(t, 2, res.RouteProgress.RemainingWaypoints)

	require.NotNil(t, res.MovementData)
	dist := DistanceKm(scenario()[0], scenario()[1])
	assert.InDelta(t, dist, res.MovementData.SpeedKmh, 0.01)
	assert.InDelta(t, res.MovementData.SpeedKmh/3.6, res.MovementData.SpeedMs, 0.01)
	assert.Equal(t, "NE", res.MovementData.Heading)

	require.NotNil(t, res.ETA)
	assert.Equal(t, 30.0, res.ETA.MinutesToNextWaypoint)
	assert.Equal(t, 30.0, res.ETA.MinutesToDestination)
	assert.Equal(t, 1800.0, res.ETA.SecondsToNextWaypoint)
	assert.Equal(t, anchored(9, 0), res.ETA.NextWaypoint)

	require.NotNil(t, res.Distance)
	assert.InDelta(t, dist/2, res.Distance.ToNextWaypointKm, 0.001)
	assert.Equal(t, int(dist/2*1000), res.Distance.ToNextWaypointM)
	assert.InDelta(t, dist/2, res.Distance.TotalCompletedKm, 0.001)

	require.NotNil(t, res.Interpolation)
	assert.Equal(t, MethodLinear, res.Interpolation.Method)
	assert.Equal(t, FallbackNoPath, res.Interpolation.FallbackReason)
}

func TestSimulate_NotStartedAndCompleted(t *testing.T) {
	before := Simulate(scenario(), query(7, 0))
	assert.Equal(t, StatusNotStarted, before.Status)
	assert.Equal(t, &Coordinate{Latitude: 24.85, Longitude: 67.00}, before.Position)
	assert.Nil(t, before.MovementData)

	after := Simulate(scenario(), query(10, 0))
	assert.Equal(t, StatusCompleted, after.Status)
	assert.Equal(t, &Coordinate{Latitude: 24.90, Longitude: 67.10}, after.Position)
}

func TestSimulate_ExactEndpointsAreInsideRoute(t *testing.T) {
	start := Simulate(scenario(), query(8, 0))
	assert.Equal(t, StatusMoving, start.Status)
	assert.Equal(t, &Coordinate{Latitude: 24.85, Longitude: 67.00}, start.Position)

	end := Simulate(scenario(), query(9, 0))
	assert.Equal(t, StatusMoving, end.Status)
	assert.Equal(t, &Coordinate{Latitude: 24.90, Longitude: 67.10}, end.Position)
	assert.Equal(t, 0, end.Distance.ToNextWaypointM)
}

func TestSimulate_Inactive(t *testing.T) {
	empty := Simulate(nil, query(8, 0))
	assert.Equal(t, StatusInactive, empty.Status)
	assert.Nil(t, empty.Position)

	noTimes := Simulate([]Waypoint{wp(1, nil, 1, 1)}, query(8, 0))
	assert.Equal(t, StatusInactive, noTimes.Status)
	assert.Nil(t, noTimes.Position)

	// A lone waypoint at the query instant brackets nothing.
	lone := Simulate([]Waypoint{wp(1, clock(8, 0), 5, 6)}, query(8, 0))
	assert.Equal(t, StatusInactive, lone.Status)
	assert.Equal(t, &Coordinate{Latitude: 5, Longitude: 6}, lone.Position)

	off := false
	q := query(8, 30)
	q.DayActive = &off
	assert.Equal(t, StatusInactive, Simulate(scenario(), q).Status)
}

func TestSimulate_ParkedWhenNotMoving(t *testing.T) {
	wps := []Waypoint{
		wp(1, clock(8, 0), 24.85, 67.00),
		wp(2, clock(9, 0), 24.85, 67.00),
		wp(3, clock(10, 0), 24.90, 67.10),
	}
	res := Simulate(wps, query(8, 20))
	assert.Equal(t, StatusParked, res.Status)
	assert.Equal(t, 0.0, res.MovementData.SpeedKmh)
	assert.InDelta(t, 16.67, res.RouteProgress.OverallProgressPercent, 0.01)
}

func TestSimulate_CalendarIndependent(t *testing.T) {
	day := 2
	a := Query{At: time.Date(2025, 10, 15, 8, 30, 0, 0, time.UTC), DayOfWeek: &day}
	b := Query{At: time.Date(2031, 2, 3, 8, 30, 0, 0, time.UTC), DayOfWeek: &day}
	wps := scenario()
	for i := range wps {
		wps[i].DayOfWeek = 2
	}
	assert.Equal(t, Simulate(wps, a), Simulate(wps, b))
}

func TestFrame_ResolveWithRoadPath(t *testing.T) {
	f := Prepare(scenario(), query(8, 30))
	seg, ok := f.Segment()
	require.True(t, ok)
	assert.Equal(t, 1, seg.From.Sequence)

	path := RoadPath{
		{Latitude: 24.85, Longitude: 67.00},
		{Latitude: 24.85, Longitude: 67.10},
		{Latitude: 24.90, Longitude: 67.10},
	}
	res := f.Resolve(path)
	require.Equal(t, StatusMoving, res.Status)
	assert.Equal(t, MethodRoadPath, res.Interpolation.Method)
	assert.Empty(t, res.Interpolation.FallbackReason)
	// The road is longer than the straight line, so is the speed.
	assert.Greater(t, res.MovementData.SpeedKmh, DistanceKm(scenario()[0], scenario()[1]))
	assert.Equal(t, 24.85, res.Position.Latitude)
}

func TestFrame_NotBracketedIgnoresPath(t *testing.T) {
	f := Prepare(scenario(), query(7, 0))
	_, ok := f.Segment()
	assert.False(t, ok)
	assert.Equal(t, StatusNotStarted, f.Resolve(RoadPath{{Latitude: 1, Longitude: 1}}).Status)
}

func TestSimulatedPosition_JSONContract(t *testing.T) {
	b, err := json.Marshal(Simulate(scenario(), query(8, 30)))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	for _, key := range []string{"status", "position", "movement_data", "route_progress", "eta", "distance"} {
		assert.Contains(t, m, key)
	}
	assert.Contains(t, m["position"], "latitude")
	assert.Contains(t, m["movement_data"], "speed_ms")
	assert.Contains(t, m["route_progress"], "overall_progress_percent")
	assert.Contains(t, m["eta"], "minutes_to_destination")
	assert.Contains(t, m["distance"], "to_next_waypoint_m")
}
