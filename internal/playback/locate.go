package playback

import (
	"sort"
	"time"

	"route-playback/internal/geo"
)

// Stop is a waypoint together with its anchored instant.
type Stop struct {
	Waypoint
	At time.Time
}

// Timeline is a route ordered by anchored instant. Waypoints without a
// timestamp are left out.
type Timeline []Stop

// NewTimeline anchors and stable-sorts waypoints; ties keep their input order.
func NewTimeline(waypoints []Waypoint) Timeline {
	tl := make(Timeline, 0, len(waypoints))
	for _, w := range waypoints {
		if w.Timestamp == nil {
			continue
		}
		tl = append(tl, Stop{Waypoint: w, At: Anchor(*w.Timestamp, w.DayOfWeek)})
	}
	sort.SliceStable(tl, func(i, j int) bool { return tl[i].At.Before(tl[j].At) })
	return tl
}

// First returns the earliest stop. The timeline must not be empty.
func (tl Timeline) First() Stop { return tl[0] }

// Last returns the latest stop. The timeline must not be empty.
func (tl Timeline) Last() Stop { return tl[len(tl)-1] }

// Segment is the bracketing pair for a query instant.
type Segment struct {
	Index    int // position of From in the timeline
	From     Stop
	To       Stop
	Progress float64 // [0,1]
}

// Duration returns the scheduled time between the segment's endpoints.
func (s Segment) Duration() time.Duration { return s.To.At.Sub(s.From.At) }

// Locate finds the first adjacent pair with From.At <= at <= To.At.
// ok is false for an empty timeline or when no pair brackets at.
func (tl Timeline) Locate(at time.Time) (seg Segment, ok bool) {
	for i := 0; i+1 < len(tl); i++ {
		from, to := tl[i], tl[i+1]
		if at.Before(from.At) || at.After(to.At) {
			continue
		}
		progress := 0.0
		if total := to.At.Sub(from.At); total > 0 {
			progress = geo.Clamp(float64(at.Sub(from.At))/float64(total), 0, 1)
		}
		return Segment{Index: i, From: from, To: to, Progress: progress}, true
	}
	return Segment{}, false
}

// Locate anchors and sorts waypoints, then finds the segment bracketing an
// already anchored query instant.
func Locate(waypoints []Waypoint, at time.Time) (Segment, bool) {
	return NewTimeline(waypoints).Locate(at)
}
