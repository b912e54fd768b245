package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"route-playback/internal/ingest"
	"route-playback/internal/playback"
	"route-playback/internal/sim"
)

type fakeStore struct {
	routes map[string][]playback.Waypoint
	days   []*int
}

func (f *fakeStore) FetchWaypoints(_ context.Context, vehicleID string, day *int) ([]playback.Waypoint, error) {
	f.days = append(f.days, day)
	wps, ok := f.routes[vehicleID]
	if !ok {
		return nil, fmt.Errorf("vehicle %q: not found", vehicleID)
	}
	return wps, nil
}

func (f *fakeStore) ListVehicles(context.Context) ([]string, error) {
	var ids []string
	for id := range f.routes {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func ptr[T any](v T) *T { return &v }

func wpInput(seq int, ts string, lat, lon float64) ingest.WaypointInput {
	return ingest.WaypointInput{Sequence: seq, Timestamp: ptr(ts), Latitude: ptr(lat), Longitude: ptr(lon)}
}

func routeInputs() []ingest.WaypointInput {
	return []ingest.WaypointInput{
		wpInput(1, "2025-10-13T08:00:00", 24.85, 67.00),
		wpInput(2, "2025-10-13T09:00:00", 24.90, 67.10),
	}
}

func newService(store Store) *Service {
	return New(ingest.NewParser(time.UTC), sim.NewManager(nil, time.Second, 2, nil), store, nil)
}

func TestPositionEnvelope(t *testing.T) {
	s := newService(nil)
	resp, err := s.Position(context.Background(), ingest.PositionRequest{
		VehicleID:   "truck-1",
		CurrentTime: "2025-10-13T08:30:00",
		Waypoints:   routeInputs(),
	})
	require.NoError(t, err)
	assert.Equal(t, playback.StatusMoving, resp.Status)

	b, err := json.Marshal(resp)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	for _, k := range []string{"success", "processing_time_ms", "timestamp", "request_id", "vehicle_id", "status", "position", "movement_data", "eta"} {
		assert.Contains(t, m, k)
	}
	assert.Equal(t, true, m["success"])
	assert.Len(t, m["request_id"], 36)
}

func TestPositionRejectsInvalid(t *testing.T) {
	s := newService(nil)
	_, err := s.Position(context.Background(), ingest.PositionRequest{VehicleID: "truck-1"})
	var verr *ingest.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestBatchReportsFailuresInPlace(t *testing.T) {
	s := newService(nil)
	resp, err := s.Batch(context.Background(), ingest.BatchPositionsRequest{
		CurrentTime: "2025-10-13T08:30:00",
		Vehicles: []ingest.PositionRequest{
			{VehicleID: "a", Waypoints: routeInputs()},
			{VehicleID: "b", Waypoints: []ingest.WaypointInput{wpInput(1, "2025-10-13T08:00:00", 124, 67)}},
			{VehicleID: "c", CurrentTime: "2025-10-13T10:00:00", Waypoints: routeInputs()},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Positions, 3)
	assert.Equal(t, 3, resp.TotalVehicles)
	assert.Equal(t, "a", resp.Positions[0].VehicleID)
	assert.Equal(t, playback.StatusMoving, resp.Positions[0].Status)
	assert.Equal(t, "b", resp.Positions[1].VehicleID)
	assert.NotEmpty(t, resp.Positions[1].Error)
	assert.Equal(t, playback.StatusCompleted, resp.Positions[2].Status)
	assert.Equal(t, sim.BatchSummary{Moving: 1, Completed: 1, Errors: 1}, resp.Summary)
}

func TestAnalyzeAndValidate(t *testing.T) {
	s := newService(nil)
	resp, err := s.Analyze(ingest.RouteRequest{Waypoints: routeInputs()})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Analysis.Overview.TotalWaypoints)

	_, err = s.Analyze(ingest.RouteRequest{Waypoints: []ingest.WaypointInput{wpInput(1, "2025-10-13T08:00:00", 124, 67)}})
	assert.Error(t, err)

	v := s.Validate(ingest.RouteRequest{Waypoints: []ingest.WaypointInput{wpInput(1, "2025-10-13T08:00:00", 124, 67)}})
	assert.False(t, v.Valid)
	assert.False(t, v.CanProceed)
	assert.Len(t, v.Errors, 1)
}

func TestStoredOperations(t *testing.T) {
	t1 := time.Date(2025, 10, 13, 8, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 10, 13, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{routes: map[string][]playback.Waypoint{
		"truck-1": {
			{Sequence: 1, Timestamp: &t1, Latitude: 24.85, Longitude: 67.00},
			{Sequence: 2, Timestamp: &t2, Latitude: 24.90, Longitude: 67.10},
		},
	}}
	s := newService(store)
	ctx := context.Background()

	pos, err := s.StoredPosition(ctx, "truck-1", time.Date(2026, 1, 7, 8, 30, 0, 0, time.UTC), ptr(0), "")
	require.NoError(t, err)
	assert.Equal(t, playback.StatusMoving, pos.Status)
	assert.Equal(t, playback.MethodLinear, pos.Interpolation.Method)
	assert.Nil(t, store.days[0])

	an, err := s.StoredAnalysis(ctx, "truck-1", ptr(0))
	require.NoError(t, err)
	assert.Equal(t, "truck-1", an.VehicleID)
	assert.Equal(t, 0, *store.days[1])

	vs, err := s.Vehicles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"truck-1"}, vs.Vehicles)

	_, err = s.StoredPosition(ctx, "ghost", time.Now(), nil, "")
	assert.Error(t, err)
}

func TestStoredOperationsWithoutStore(t *testing.T) {
	s := newService(nil)
	_, err := s.Vehicles(context.Background())
	assert.ErrorIs(t, err, ErrNoStore)
	_, err = s.StoredPosition(context.Background(), "x", time.Now(), nil, "")
	assert.ErrorIs(t, err, ErrNoStore)
	assert.NoError(t, s.Ping(context.Background()))
	assert.False(t, s.HasStore())
}

func TestPositionWithoutDayOfWeekUsesTimestampWeekday(t *testing.T) {
	s := newService(nil)
	resp, err := s.Position(context.Background(), ingest.PositionRequest{
		VehicleID:   "truck-2",
		CurrentTime: "2025-10-14T08:30:00Z",
		Waypoints: []ingest.WaypointInput{
			wpInput(1, "2025-10-14T08:00:00Z", 24.85, 67.00),
			wpInput(2, "2025-10-14T09:00:00Z", 24.90, 67.10),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, playback.StatusMoving, resp.Status)
	assert.InDelta(t, 24.875, resp.Position.Latitude, 1e-9)
}
