package sim

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mmetrics "route-playback/internal/metrics"
	"route-playback/internal/playback"
	"route-playback/internal/roadpath"
)

func at(h, m int) time.Time {
	return time.Date(2025, 10, 13, h, m, 0, 0, time.UTC)
}

func route() []playback.Waypoint {
	t1, t2 := at(8, 0), at(9, 0)
	return []playback.Waypoint{
		{Sequence: 1, Timestamp: &t1, Latitude: 24.85, Longitude: 67.00},
		{Sequence: 2, Timestamp: &t2, Latitude: 24.90, Longitude: 67.10},
	}
}

func request(id string, h, m int, method playback.Method) VehicleRequest {
	day := 0
	return VehicleRequest{
		VehicleID: id,
		Waypoints: route(),
		Query:     playback.Query{At: at(h, m), DayOfWeek: &day},
		Method:    method,
	}
}

func countingProvider(path playback.RoadPath, err error) (roadpath.Provider, *atomic.Int32) {
	var calls atomic.Int32
	return roadpath.ProviderFunc(func(context.Context, roadpath.Request) (playback.RoadPath, error) {
		calls.Add(1)
		return path, err
	}), &calls
}

func TestPositionLinearSkipsProvider(t *testing.T) {
	p, calls := countingProvider(nil, nil)
	m := NewManager(p, time.Second, 2, nil)

	pos := m.Position(context.Background(), request("v1", 8, 30, playback.MethodLinear))
	require.Equal(t, playback.StatusMoving, pos.Status)
	assert.InDelta(t, 24.875, pos.Position.Latitude, 1e-9)
	assert.Equal(t, playback.MethodLinear, pos.Interpolation.Method)
	assert.EqualValues(t, 0, calls.Load())
}

func TestPositionUsesRoadPath(t *testing.T) {
	path := playback.RoadPath{
		{Latitude: 24.85, Longitude: 67.00},
		{Latitude: 24.85, Longitude: 67.10},
		{Latitude: 24.90, Longitude: 67.10},
	}
	p, calls := countingProvider(path, nil)
	mc := mmetrics.NewCollector(2, time.Second)
	m := NewManager(p, time.Second, 2, mc)

	pos := m.Position(context.Background(), request("v1", 8, 30, playback.MethodRoadPath))
	require.Equal(t, playback.StatusMoving, pos.Status)
	assert.Equal(t, playback.MethodRoadPath, pos.Interpolation.Method)
	assert.Equal(t, playback.FallbackNone, pos.Interpolation.FallbackReason)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.RoadPathLookup.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.Positions.WithLabelValues("moving")))
}

func TestPositionFallsBackOnProviderError(t *testing.T) {
	p, _ := countingProvider(nil, errors.New("quota exceeded"))
	mc := mmetrics.NewCollector(2, time.Second)
	m := NewManager(p, time.Second, 2, mc)

	pos := m.Position(context.Background(), request("v1", 8, 30, playback.MethodRoadPath))
	require.Equal(t, playback.StatusMoving, pos.Status)
	assert.Equal(t, playback.MethodLinear, pos.Interpolation.Method)
	assert.Equal(t, playback.FallbackNoPath, pos.Interpolation.FallbackReason)
	assert.InDelta(t, 24.875, pos.Position.Latitude, 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.RoadPathLookup.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.Fallbacks.WithLabelValues(string(playback.FallbackNoPath))))
}

func TestPositionFallsBackOnTimeout(t *testing.T) {
	slow := roadpath.ProviderFunc(func(ctx context.Context, _ roadpath.Request) (playback.RoadPath, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	mc := mmetrics.NewCollector(1, 10*time.Millisecond)
	m := NewManager(slow, 10*time.Millisecond, 1, mc)

	pos := m.Position(context.Background(), request("v1", 8, 30, playback.MethodRoadPath))
	assert.Equal(t, playback.MethodLinear, pos.Interpolation.Method)
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.RoadPathLookup.WithLabelValues("timeout")))
}

func TestPositionWithoutProvider(t *testing.T) {
	m := NewManager(nil, time.Second, 1, nil)
	pos := m.Position(context.Background(), request("v1", 8, 30, playback.MethodRoadPath))
	assert.Equal(t, playback.MethodLinear, pos.Interpolation.Method)
	assert.Equal(t, playback.FallbackNoPath, pos.Interpolation.FallbackReason)
}

func TestPositionOutsideRouteSkipsProvider(t *testing.T) {
	p, calls := countingProvider(nil, nil)
	m := NewManager(p, time.Second, 1, nil)

	assert.Equal(t, playback.StatusNotStarted, m.Position(context.Background(), request("v1", 7, 0, playback.MethodRoadPath)).Status)
	assert.Equal(t, playback.StatusCompleted, m.Position(context.Background(), request("v1", 10, 0, playback.MethodRoadPath)).Status)
	assert.EqualValues(t, 0, calls.Load())
}

func TestPositionPassesDepartureHint(t *testing.T) {
	var got roadpath.Request
	p := roadpath.ProviderFunc(func(_ context.Context, req roadpath.Request) (playback.RoadPath, error) {
		got = req
		return nil, roadpath.ErrEmptyPath
	})
	m := NewManager(p, time.Second, 1, nil)
	m.now = func() time.Time { return time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC) } // a Wednesday

	req := request("v1", 8, 30, playback.MethodRoadPath)
	req.APIKey = "request-key"
	m.Position(context.Background(), req)

	require.NotNil(t, got.Departure)
	assert.Equal(t, time.Monday, got.Departure.Weekday())
	assert.Equal(t, 8, got.Departure.Hour())
	assert.True(t, got.Departure.After(m.now()))
	assert.Equal(t, "request-key", got.APIKey)
	assert.Equal(t, 24.85, got.From.Latitude)
}

func TestBatchKeepsOrderAndSummarizes(t *testing.T) {
	m := NewManager(nil, time.Second, 3, nil)

	var reqs []VehicleRequest
	times := [][2]int{{7, 0}, {8, 30}, {10, 0}, {8, 15}, {9, 30}}
	for i, hm := range times {
		reqs = append(reqs, request(fmt.Sprintf("v%d", i), hm[0], hm[1], playback.MethodLinear))
	}
	inactive := false
	reqs[4].Query.DayActive = &inactive

	results := m.Batch(context.Background(), reqs)
	require.Len(t, results, len(reqs))
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("v%d", i), r.VehicleID)
	}
	assert.Equal(t, playback.StatusNotStarted, results[0].Status)
	assert.Equal(t, playback.StatusMoving, results[1].Status)
	assert.Equal(t, playback.StatusCompleted, results[2].Status)

	results = append(results, VehicleResult{VehicleID: "bad", Error: "latitude out of range"})
	assert.Equal(t, BatchSummary{Moving: 2, NotStarted: 1, Completed: 1, Inactive: 1, Errors: 1}, Summarize(results))
}

func TestBatchEmpty(t *testing.T) {
	m := NewManager(nil, time.Second, 3, nil)
	assert.Empty(t, m.Batch(context.Background(), nil))
}

func TestPositionCountsCacheHitsOnce(t *testing.T) {
	path := playback.RoadPath{
		{Latitude: 24.85, Longitude: 67.00},
		{Latitude: 24.85, Longitude: 67.10},
		{Latitude: 24.90, Longitude: 67.10},
	}
	upstream, calls := countingProvider(path, nil)
	cache, err := roadpath.OpenBoltCache(filepath.Join(t.TempDir(), "paths.db"), time.Hour, upstream)
	require.NoError(t, err)
	defer cache.Close()

	mc := mmetrics.NewCollector(1, time.Second)
	cache.OnHit(mc.CacheHits.Inc)
	m := NewManager(cache, time.Second, 1, mc)

	for i := 0; i < 2; i++ {
		pos := m.Position(context.Background(), request("v1", 8, 30, playback.MethodRoadPath))
		assert.Equal(t, playback.MethodRoadPath, pos.Interpolation.Method)
	}
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(mc.RoadPathLookup.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.CacheHits))
}
