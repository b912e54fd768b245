package analysis

import (
	"fmt"

	"route-playback/internal/geo"
	"route-playback/internal/playback"
)

const (
	checkPassed             = "passed"
	checkFailed             = "failed"
	checkPassedWithWarnings = "passed_with_warnings"

	speedWarningKmh   = 200.0
	gapWarningMinutes = 6 * 60.0
	severityError     = "error"
	severityWarning   = "warning"
)

type Issue struct {
	Severity string `json:"severity"`
	Field    string `json:"field"`
	Message  string `json:"message"`
	Sequence *int   `json:"sequence,omitempty"`
}

type ValidationStatistics struct {
	TotalWaypoints   int `json:"total_waypoints"`
	ValidWaypoints   int `json:"valid_waypoints"`
	InvalidWaypoints int `json:"invalid_waypoints"`
	WarningsCount    int `json:"warnings_count"`
}

type ValidationReport struct {
	Valid           bool                 `json:"valid"`
	ChecksPerformed map[string]string    `json:"checks_performed"`
	Errors          []Issue              `json:"errors"`
	Warnings        []Issue              `json:"warnings"`
	Statistics      ValidationStatistics `json:"statistics"`
	CanProceed      bool                 `json:"can_proceed"`
}

// Validate inspects a route for data-quality problems. Only out-of-range
// coordinates are errors; ordering, gaps, speeds and missing times are warnings.
func Validate(wps []playback.Waypoint) ValidationReport {
	r := ValidationReport{
		ChecksPerformed: map[string]string{},
		Errors:          []Issue{},
		Warnings:        []Issue{},
	}
	r.Statistics.TotalWaypoints = len(wps)

	coords, completeness := checkPassed, checkPassed
	for _, w := range wps {
		seq := w.Sequence
		if !geo.ValidCoordinate(w.Latitude, w.Longitude) {
			coords = checkFailed
			r.Statistics.InvalidWaypoints++
			r.Errors = append(r.Errors, Issue{
				Severity: severityError, Field: "coordinates", Sequence: &seq,
				Message: fmt.Sprintf("coordinates out of range: %g,%g", w.Latitude, w.Longitude),
			})
		} else {
			r.Statistics.ValidWaypoints++
		}
		if w.Timestamp == nil {
			completeness = checkPassedWithWarnings
			r.Warnings = append(r.Warnings, Issue{Severity: severityWarning, Field: "timestamp", Sequence: &seq, Message: "missing timestamp"})
		}
	}

	ordering, speeds, gaps := checkPassed, checkPassed, checkPassed
	for i := 1; i < len(wps); i++ {
		p1, p2 := wps[i-1], wps[i]
		if p1.Timestamp == nil || p2.Timestamp == nil {
			continue
		}
		seq := p2.Sequence
		d := p2.Timestamp.Sub(*p1.Timestamp)
		if d < 0 {
			ordering = checkPassedWithWarnings
			r.Warnings = append(r.Warnings, Issue{Severity: severityWarning, Field: "timestamp", Sequence: &seq, Message: "timestamp earlier than previous waypoint"})
			continue
		}
		if d.Minutes() > gapWarningMinutes {
			gaps = checkPassedWithWarnings
			r.Warnings = append(r.Warnings, Issue{Severity: severityWarning, Field: "timestamp", Sequence: &seq,
				Message: fmt.Sprintf("time gap of %.0f minutes", d.Minutes())})
		}
		if !geo.ValidCoordinate(p1.Latitude, p1.Longitude) || !geo.ValidCoordinate(p2.Latitude, p2.Longitude) {
			continue
		}
		if v := geo.SpeedKmh(playback.DistanceKm(p1, p2), d.Hours()); v > speedWarningKmh {
			speeds = checkPassedWithWarnings
			r.Warnings = append(r.Warnings, Issue{Severity: severityWarning, Field: "speed", Sequence: &seq,
				Message: fmt.Sprintf("implied speed %.1f km/h", v)})
		}
	}

	r.ChecksPerformed["coordinate_ranges"] = coords
	r.ChecksPerformed["timestamp_ordering"] = ordering
	r.ChecksPerformed["speed_limits"] = speeds
	r.ChecksPerformed["time_gaps"] = gaps
	r.ChecksPerformed["data_completeness"] = completeness
	r.Statistics.WarningsCount = len(r.Warnings)
	r.Valid = len(r.Errors) == 0
	r.CanProceed = r.Valid
	return r
}
