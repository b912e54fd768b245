// Package ingest turns request payloads into validated waypoints. It is the
// only place where malformed coordinates or times are rejected.
package ingest

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"route-playback/internal/playback"
	"route-playback/internal/sim"
)

// ErrInvalidTime is returned for timestamps in none of the accepted layouts.
var ErrInvalidTime = errors.New("invalid time")

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// WaypointInput is the wire form of a waypoint.
type WaypointInput struct {
	Sequence               int      `json:"sequence" validate:"gte=1"`
	Timestamp              *string  `json:"timestamp"`
	DayOfWeek              *int     `json:"day_of_week" validate:"omitempty,gte=0,lte=6"`
	Latitude               *float64 `json:"latitude" validate:"required,finite,gte=-90,lte=90"`
	Longitude              *float64 `json:"longitude" validate:"required,finite,gte=-180,lte=180"`
	IsParking              bool     `json:"is_parking"`
	ParkingDurationMinutes *int     `json:"parking_duration_minutes" validate:"omitempty,gte=0"`
	OriginalAddress        *string  `json:"original_address"`
}

type PositionRequest struct {
	VehicleID           string          `json:"vehicle_id" validate:"required"`
	CurrentTime         string          `json:"current_time"`
	DayOfWeek           *int            `json:"day_of_week" validate:"omitempty,gte=0,lte=6"`
	IsDayActive         *bool           `json:"is_day_active"`
	Waypoints           []WaypointInput `json:"waypoints" validate:"dive"`
	InterpolationMethod string          `json:"interpolation_method" validate:"omitempty,oneof=linear road_path"`
	APIKey              string          `json:"api_key,omitempty"`
}

type BatchPositionsRequest struct {
	CurrentTime         string            `json:"current_time"`
	Vehicles            []PositionRequest `json:"vehicles" validate:"required"`
	InterpolationMethod string            `json:"interpolation_method" validate:"omitempty,oneof=linear road_path"`
	APIKey              string            `json:"api_key,omitempty"`
}

type RouteRequest struct {
	Waypoints []WaypointInput `json:"waypoints" validate:"dive"`
}

// FieldIssue is one rejected field.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every rejected field of a payload.
type ValidationError struct {
	Issues []FieldIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, i := range e.Issues {
		parts = append(parts, i.Field+": "+i.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Parser validates payloads. Zone-less timestamps are read in loc.
type Parser struct {
	validate *validator.Validate
	loc      *time.Location
}

func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	return &Parser{validate: v, loc: loc}
}

// ParseTime accepts RFC3339 and a few zone-less layouts.
func (p *Parser) ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, p.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
}

// Check runs struct validation and converts failures into a ValidationError.
func (p *Parser) Check(v any) error {
	err := p.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Issues = append(out.Issues, FieldIssue{Field: fe.Namespace(), Message: describe(fe)})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "finite":
		return "must be a finite number"
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return "failed " + fe.Tag()
}

// Waypoints converts validated inputs. Timestamps that fail to parse are
// reported, never silently dropped.
func (p *Parser) Waypoints(in []WaypointInput) ([]playback.Waypoint, error) {
	out := make([]playback.Waypoint, 0, len(in))
	var issues []FieldIssue
	for i, w := range in {
		if w.Latitude == nil || w.Longitude == nil {
			issues = append(issues, FieldIssue{Field: fmt.Sprintf("waypoints[%d]", i), Message: "latitude and longitude are required"})
			continue
		}
		wp := playback.Waypoint{
			Sequence:               w.Sequence,
			Latitude:               *w.Latitude,
			Longitude:              *w.Longitude,
			IsParking:              w.IsParking,
			ParkingDurationMinutes: w.ParkingDurationMinutes,
			OriginalAddress:        w.OriginalAddress,
		}
		if w.Timestamp != nil && strings.TrimSpace(*w.Timestamp) != "" {
			ts, err := p.ParseTime(*w.Timestamp)
			if err != nil {
				issues = append(issues, FieldIssue{Field: fmt.Sprintf("waypoints[%d].timestamp", i), Message: err.Error()})
				continue
			}
			wp.Timestamp = &ts
		}
		wp.DayOfWeek = dayOf(w.DayOfWeek, wp.Timestamp)
		out = append(out, wp)
	}
	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return out, nil
}

// Route validates and converts a route payload.
func (p *Parser) Route(req RouteRequest) ([]playback.Waypoint, error) {
	if err := p.Check(req); err != nil {
		return nil, err
	}
	return p.Waypoints(req.Waypoints)
}

// Position validates a single-vehicle request. defaults carries batch-level
// values used when the vehicle omits them.
func (p *Parser) Position(req PositionRequest, defaults BatchPositionsRequest) (sim.VehicleRequest, error) {
	if err := p.Check(req); err != nil {
		return sim.VehicleRequest{}, err
	}
	raw := req.CurrentTime
	if raw == "" {
		raw = defaults.CurrentTime
	}
	if raw == "" {
		return sim.VehicleRequest{}, &ValidationError{Issues: []FieldIssue{{Field: "current_time", Message: "is required"}}}
	}
	at, err := p.ParseTime(raw)
	if err != nil {
		return sim.VehicleRequest{}, &ValidationError{Issues: []FieldIssue{{Field: "current_time", Message: err.Error()}}}
	}
	wps, err := p.Waypoints(req.Waypoints)
	if err != nil {
		return sim.VehicleRequest{}, err
	}

	method := firstNonEmpty(req.InterpolationMethod, defaults.InterpolationMethod, string(playback.MethodLinear))
	return sim.VehicleRequest{
		VehicleID: req.VehicleID,
		Waypoints: wps,
		Query:     playback.Query{At: at, DayOfWeek: req.DayOfWeek, DayActive: req.IsDayActive},
		Method:    playback.Method(method),
		APIKey:    firstNonEmpty(req.APIKey, defaults.APIKey),
	}, nil
}

// Batch validates the envelope and each vehicle. Vehicles that fail are
// returned in errs keyed by their index; the rest are returned in order with
// their original indexes.
func (p *Parser) Batch(req BatchPositionsRequest) (reqs []sim.VehicleRequest, idx []int, errs map[int]error, err error) {
	if err := p.Check(req); err != nil {
		return nil, nil, nil, err
	}
	errs = map[int]error{}
	for i, v := range req.Vehicles {
		vr, verr := p.Position(v, req)
		if verr != nil {
			errs[i] = verr
			continue
		}
		reqs = append(reqs, vr)
		idx = append(idx, i)
	}
	return reqs, idx, errs, nil
}

// dayOf returns the explicit weekday or, when absent, the weekday the
// timestamp falls on. Untimed waypoints never enter playback, so their
// day is left at 0.
func dayOf(day *int, ts *time.Time) int {
	switch {
	case day != nil:
		return *day
	case ts != nil:
		return playback.WeekdayIndex(*ts)
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Lenient converts inputs without rejecting anything, for data-quality
// reports. Missing coordinates become NaN and unreadable timestamps are
// dropped, so the report flags them instead of the request failing.
func (p *Parser) Lenient(in []WaypointInput) []playback.Waypoint {
	out := make([]playback.Waypoint, 0, len(in))
	for _, w := range in {
		wp := playback.Waypoint{
			Sequence:               w.Sequence,
			Latitude:               math.NaN(),
			Longitude:              math.NaN(),
			IsParking:              w.IsParking,
			ParkingDurationMinutes: w.ParkingDurationMinutes,
			OriginalAddress:        w.OriginalAddress,
		}
		if w.Latitude != nil {
			wp.Latitude = *w.Latitude
		}
		if w.Longitude != nil {
			wp.Longitude = *w.Longitude
		}
		if w.Timestamp != nil {
			if ts, err := p.ParseTime(*w.Timestamp); err == nil {
				wp.Timestamp = &ts
			}
		}
		wp.DayOfWeek = dayOf(w.DayOfWeek, wp.Timestamp)
		out = append(out, wp)
	}
	return out
}
