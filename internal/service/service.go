// Package service joins payload validation, the simulator and the analyzer
// into the request/response operations shared by the HTTP and NATS surfaces.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"route-playback/internal/analysis"
	"route-playback/internal/ingest"
	mmetrics "route-playback/internal/metrics"
	"route-playback/internal/playback"
	"route-playback/internal/sim"
)

// ErrNoStore is returned by stored-route operations when no waypoint store
// is configured.
var ErrNoStore = errors.New("waypoint store not configured")

// Store is the read side of the waypoint store.
type Store interface {
	FetchWaypoints(ctx context.Context, vehicleID string, day *int) ([]playback.Waypoint, error)
	ListVehicles(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

type Service struct {
	parser  *ingest.Parser
	manager *sim.Manager
	store   Store
	metrics *mmetrics.Collector
	now     func() time.Time
}

func New(parser *ingest.Parser, manager *sim.Manager, store Store, metrics *mmetrics.Collector) *Service {
	return &Service{parser: parser, manager: manager, store: store, metrics: metrics, now: time.Now}
}

// Parser exposes the payload parser, e.g. for query string times.
func (s *Service) Parser() *ingest.Parser { return s.parser }

// Meta is the envelope shared by every successful response.
type Meta struct {
	Success          bool      `json:"success"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	Timestamp        time.Time `json:"timestamp"`
	RequestID        string    `json:"request_id"`
}

func (s *Service) meta(start time.Time) Meta {
	return Meta{
		Success:          true,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Timestamp:        s.now().UTC(),
		RequestID:        uuid.NewString(),
	}
}

type PositionResponse struct {
	Meta
	VehicleID string `json:"vehicle_id"`
	playback.SimulatedPosition
}

type BatchResponse struct {
	Meta
	Positions     []sim.VehicleResult `json:"positions"`
	TotalVehicles int                 `json:"total_vehicles"`
	Summary       sim.BatchSummary    `json:"summary"`
}

type AnalysisResponse struct {
	Meta
	VehicleID string          `json:"vehicle_id,omitempty"`
	Analysis  analysis.Report `json:"analysis"`
}

type ValidationResponse struct {
	Meta
	analysis.ValidationReport
}

type VehiclesResponse struct {
	Meta
	Vehicles []string `json:"vehicles"`
	Count    int      `json:"count"`
}

func (s *Service) Position(ctx context.Context, req ingest.PositionRequest) (*PositionResponse, error) {
	start := time.Now()
	vr, err := s.parser.Position(req, ingest.BatchPositionsRequest{})
	if err != nil {
		return nil, err
	}
	pos := s.manager.Position(ctx, vr)
	return &PositionResponse{Meta: s.meta(start), VehicleID: vr.VehicleID, SimulatedPosition: pos}, nil
}

// Batch resolves every vehicle; vehicles that fail validation are reported
// in place and counted as errors without failing the batch.
func (s *Service) Batch(ctx context.Context, req ingest.BatchPositionsRequest) (*BatchResponse, error) {
	start := time.Now()
	reqs, idx, failed, err := s.parser.Batch(req)
	if err != nil {
		return nil, err
	}
	resolved := s.manager.Batch(ctx, reqs)

	results := make([]sim.VehicleResult, len(req.Vehicles))
	for j, i := range idx {
		results[i] = resolved[j]
	}
	for i, ferr := range failed {
		results[i] = sim.VehicleResult{VehicleID: req.Vehicles[i].VehicleID, Error: ferr.Error()}
	}
	return &BatchResponse{
		Meta:          s.meta(start),
		Positions:     results,
		TotalVehicles: len(results),
		Summary:       sim.Summarize(results),
	}, nil
}

func (s *Service) Analyze(req ingest.RouteRequest) (*AnalysisResponse, error) {
	start := time.Now()
	wps, err := s.parser.Route(req)
	if err != nil {
		return nil, err
	}
	s.countAnalysis("analyze")
	return &AnalysisResponse{Meta: s.meta(start), Analysis: analysis.Analyze(wps)}, nil
}

// Validate never rejects the payload; problems are part of the report.
func (s *Service) Validate(req ingest.RouteRequest) *ValidationResponse {
	start := time.Now()
	report := analysis.Validate(s.parser.Lenient(req.Waypoints))
	s.countAnalysis("validate")
	return &ValidationResponse{Meta: s.meta(start), ValidationReport: report}
}

func (s *Service) countAnalysis(kind string) {
	if s.metrics != nil {
		s.metrics.Analyses.WithLabelValues(kind).Inc()
	}
}

func (s *Service) Vehicles(ctx context.Context) (*VehiclesResponse, error) {
	start := time.Now()
	if s.store == nil {
		return nil, ErrNoStore
	}
	ids, err := s.store.ListVehicles(ctx)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return &VehiclesResponse{Meta: s.meta(start), Vehicles: ids, Count: len(ids)}, nil
}

// StoredPosition simulates a vehicle from its stored route. The whole week
// is loaded; day only selects which weekday the query instant falls on.
func (s *Service) StoredPosition(ctx context.Context, vehicleID string, at time.Time, day *int, method playback.Method) (*PositionResponse, error) {
	start := time.Now()
	if s.store == nil {
		return nil, ErrNoStore
	}
	wps, err := s.store.FetchWaypoints(ctx, vehicleID, nil)
	if err != nil {
		return nil, err
	}
	if method == "" {
		method = playback.MethodLinear
	}
	pos := s.manager.Position(ctx, sim.VehicleRequest{
		VehicleID: vehicleID,
		Waypoints: wps,
		Query:     playback.Query{At: at, DayOfWeek: day},
		Method:    method,
	})
	return &PositionResponse{Meta: s.meta(start), VehicleID: vehicleID, SimulatedPosition: pos}, nil
}

// StoredAnalysis analyzes one stored day of a vehicle, or every day when day is nil.
func (s *Service) StoredAnalysis(ctx context.Context, vehicleID string, day *int) (*AnalysisResponse, error) {
	start := time.Now()
	if s.store == nil {
		return nil, ErrNoStore
	}
	wps, err := s.store.FetchWaypoints(ctx, vehicleID, day)
	if err != nil {
		return nil, err
	}
	s.countAnalysis("analyze")
	return &AnalysisResponse{Meta: s.meta(start), VehicleID: vehicleID, Analysis: analysis.Analyze(wps)}, nil
}

// Ping reports the store's health; a missing store is healthy.
func (s *Service) Ping(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	return s.store.Ping(ctx)
}

// HasStore reports whether stored-route operations are available.
func (s *Service) HasStore() bool { return s.store != nil }
