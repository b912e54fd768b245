package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	mmetrics "route-playback/internal/metrics"
	"route-playback/internal/playback"
	"route-playback/internal/roadpath"
)

// VehicleRequest is one validated position query.
type VehicleRequest struct {
	VehicleID string
	Waypoints []playback.Waypoint
	Query     playback.Query
	Method    playback.Method
	APIKey    string
}

// VehicleResult is the per-vehicle entry of a batch. Failed entries carry
// Error and no position.
type VehicleResult struct {
	VehicleID string `json:"vehicle_id"`
	Error     string `json:"error,omitempty"`
	*playback.SimulatedPosition
}

type BatchSummary struct {
	Moving     int `json:"moving"`
	Parked     int `json:"parked"`
	Inactive   int `json:"inactive"`
	NotStarted int `json:"not_started"`
	Completed  int `json:"completed"`
	Errors     int `json:"errors"`
}

// Summarize counts results by status; entries with an error count as errors.
func Summarize(results []VehicleResult) BatchSummary {
	var s BatchSummary
	for _, r := range results {
		if r.Error != "" || r.SimulatedPosition == nil {
			s.Errors++
			continue
		}
		switch r.Status {
		case playback.StatusMoving:
			s.Moving++
		case playback.StatusParked:
			s.Parked++
		case playback.StatusInactive:
			s.Inactive++
		case playback.StatusNotStarted:
			s.NotStarted++
		case playback.StatusCompleted:
			s.Completed++
		}
	}
	return s
}

// Manager resolves position queries. It holds no per-vehicle state; every
// call works only on its own request.
type Manager struct {
	provider roadpath.Provider
	timeout  time.Duration
	workers  int
	metrics  *mmetrics.Collector
	now      func() time.Time
}

func NewManager(provider roadpath.Provider, roadPathTimeout time.Duration, workers int, metrics *mmetrics.Collector) *Manager {
	if workers <= 0 {
		workers = 1
	}
	return &Manager{
		provider: provider,
		timeout:  roadPathTimeout,
		workers:  workers,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Position resolves one vehicle. A road path is only requested when the
// vehicle is between two waypoints and the caller asked for road_path.
func (m *Manager) Position(ctx context.Context, req VehicleRequest) playback.SimulatedPosition {
	start := time.Now()
	frame := playback.Prepare(req.Waypoints, req.Query)

	var path playback.RoadPath
	if seg, ok := frame.Segment(); ok && req.Method == playback.MethodRoadPath {
		path = m.roadPath(ctx, req, seg)
	}
	pos := frame.Resolve(path)

	if m.metrics != nil {
		m.metrics.SimulateDuration.Observe(time.Since(start).Seconds())
		m.metrics.Positions.WithLabelValues(string(pos.Status)).Inc()
		if req.Method == playback.MethodRoadPath && pos.Interpolation != nil && pos.Interpolation.FallbackReason != playback.FallbackNone {
			m.metrics.Fallbacks.WithLabelValues(string(pos.Interpolation.FallbackReason)).Inc()
		}
	}
	return pos
}

func (m *Manager) roadPath(ctx context.Context, req VehicleRequest, seg playback.Segment) playback.RoadPath {
	if m.provider == nil {
		m.countLookup("skipped")
		return nil
	}
	departure := playback.NextOccurrence(seg.From.At, m.now())
	start := time.Now()
	path, err := roadpath.Fetch(ctx, m.provider, m.timeout, roadpath.Request{
		From:      seg.From.Coordinate(),
		To:        seg.To.Coordinate(),
		Departure: &departure,
		APIKey:    req.APIKey,
	})
	if m.metrics != nil {
		m.metrics.RoadPathDuration.Observe(time.Since(start).Seconds())
	}
	switch {
	case err == nil:
		m.countLookup("ok")
		return path
	case errors.Is(err, roadpath.ErrNoCredential):
		m.countLookup("skipped")
	case errors.Is(err, roadpath.ErrEmptyPath):
		m.countLookup("empty")
	case errors.Is(err, context.DeadlineExceeded):
		m.countLookup("timeout")
		log.WithField("vehicle_id", req.VehicleID).Warnf("road path timed out after %s, using straight line", m.timeout)
	default:
		m.countLookup("error")
		log.WithField("vehicle_id", req.VehicleID).Warnf("road path error: %v", err)
	}
	return nil
}

func (m *Manager) countLookup(outcome string) {
	if m.metrics != nil {
		m.metrics.RoadPathLookup.WithLabelValues(outcome).Inc()
	}
}

// Batch resolves every request on a bounded worker pool. Results keep the
// input order.
func (m *Manager) Batch(ctx context.Context, reqs []VehicleRequest) []VehicleResult {
	results := make([]VehicleResult, len(reqs))
	if m.metrics != nil {
		m.metrics.BatchSize.Observe(float64(len(reqs)))
	}
	if len(reqs) == 0 {
		return results
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := m.workers
	if workers > len(reqs) {
		workers = len(reqs)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				pos := m.Position(ctx, reqs[i])
				results[i] = VehicleResult{VehicleID: reqs[i].VehicleID, SimulatedPosition: &pos}
			}
		}()
	}
	for i := range reqs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	log.Debugf("batch resolved %d vehicles with %d workers", len(reqs), workers)
	return results
}
