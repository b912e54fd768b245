package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"route-playback/internal/ingest"
	"route-playback/internal/playback"
)

// Health handles GET /health and /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	body := map[string]any{
		"status":    "healthy",
		"version":   h.opts.Version,
		"timestamp": h.now().UTC(),
	}
	if h.svc.HasStore() {
		body["database"] = "connected"
	}
	if err := h.svc.Ping(ctx); err != nil {
		body["status"] = "error"
		body["database"] = "disconnected"
		body["error"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// Version handles GET /api/v1/version
func (h *Handler) Version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    h.opts.Version,
		"build_date": h.opts.BuildDate,
		"api_prefix": "/api/v1",
	})
}

// CalculatePosition handles POST /api/v1/simulation/calculate-position
func (h *Handler) CalculatePosition(w http.ResponseWriter, r *http.Request) {
	var req ingest.PositionRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Position(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CalculatePositionsBatch handles POST /api/v1/simulation/calculate-positions-batch
func (h *Handler) CalculatePositionsBatch(w http.ResponseWriter, r *http.Request) {
	var req ingest.BatchPositionsRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Batch(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// AnalyzeRoute handles POST /api/v1/routes/analyze
func (h *Handler) AnalyzeRoute(w http.ResponseWriter, r *http.Request) {
	var req ingest.RouteRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Analyze(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ValidateRoute handles POST /api/v1/routes/validate
func (h *Handler) ValidateRoute(w http.ResponseWriter, r *http.Request) {
	var req ingest.RouteRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Validate(req))
}

// ListVehicles handles GET /api/v1/vehicles
func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Vehicles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// VehiclePosition handles GET /api/v1/vehicles/{vehicleID}/position?at=&day=&method=
// at defaults to now.
func (h *Handler) VehiclePosition(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "vehicleID")
	q := r.URL.Query()

	at := h.now()
	if raw := q.Get("at"); raw != "" {
		t, err := h.svc.Parser().ParseTime(raw)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		at = t
	}
	day, ok := dayParam(w, r)
	if !ok {
		return
	}
	method := playback.Method(strings.TrimSpace(q.Get("method")))
	switch method {
	case "", playback.MethodLinear, playback.MethodRoadPath:
	default:
		badRequest(w, "method must be linear or road_path")
		return
	}

	resp, err := h.svc.StoredPosition(r.Context(), vehicleID, at, day, method)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// VehicleAnalysis handles GET /api/v1/vehicles/{vehicleID}/analysis?day=
func (h *Handler) VehicleAnalysis(w http.ResponseWriter, r *http.Request) {
	day, ok := dayParam(w, r)
	if !ok {
		return
	}
	resp, err := h.svc.StoredAnalysis(r.Context(), chi.URLParam(r, "vehicleID"), day)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func dayParam(w http.ResponseWriter, r *http.Request) (*int, bool) {
	raw := r.URL.Query().Get("day")
	if raw == "" {
		return nil, true
	}
	d, err := strconv.Atoi(raw)
	if err != nil || d < 0 || d > 6 {
		badRequest(w, "day must be an integer between 0 (Monday) and 6 (Sunday)")
		return nil, false
	}
	return &d, true
}
