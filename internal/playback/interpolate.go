package playback

import "route-playback/internal/geo"

// Method names how a position was interpolated.
type Method string

const (
	MethodLinear   Method = "linear"
	MethodRoadPath Method = "road_path"
)

// FallbackReason explains why an interpolation is not a full road-path result.
// It is empty when the requested path was followed.
type FallbackReason string

const (
	FallbackNone        FallbackReason = ""
	FallbackNoPath      FallbackReason = "no_road_path"
	FallbackEmptyPath   FallbackReason = "empty_path"
	FallbackSinglePoint FallbackReason = "single_point_path"
	FallbackDegenerate  FallbackReason = "degenerate_path"
)

// Interpolation is the tagged outcome of Interpolate. Both distances come
// from the same source: the road path when Method is MethodRoadPath,
// haversine between the waypoints otherwise.
type Interpolation struct {
	Position           Coordinate
	SegmentDistanceKm  float64
	DistanceTraveledKm float64
	BearingDeg         float64
	Method             Method
	Fallback           FallbackReason
}

// Degraded reports whether the result is a fallback rather than a path-following position.
func (i Interpolation) Degraded() bool { return i.Fallback != FallbackNone }

// Interpolate places the entity along seg. A nil path means linear mode.
func Interpolate(seg Segment, path RoadPath) Interpolation {
	switch {
	case path == nil:
		return linear(seg, FallbackNoPath)
	case len(path) == 0:
		return linear(seg, FallbackEmptyPath)
	case len(path) == 1:
		return Interpolation{
			Position:   path[0],
			BearingDeg: waypointBearing(seg),
			Method:     MethodRoadPath,
			Fallback:   FallbackSinglePoint,
		}
	}
	return alongPath(seg, path)
}

func linear(seg Segment, reason FallbackReason) Interpolation {
	from, to, p := seg.From, seg.To, seg.Progress
	dist := DistanceKm(from.Waypoint, to.Waypoint)
	return Interpolation{
		Position: Coordinate{
			Latitude:  geo.Lerp(from.Latitude, to.Latitude, p),
			Longitude: geo.Lerp(from.Longitude, to.Longitude, p),
		},
		SegmentDistanceKm:  dist,
		DistanceTraveledKm: dist * p,
		BearingDeg:         waypointBearing(seg),
		Method:             MethodLinear,
		Fallback:           reason,
	}
}

func waypointBearing(seg Segment) float64 {
	return geo.BearingDeg(seg.From.Latitude, seg.From.Longitude, seg.To.Latitude, seg.To.Longitude)
}

// CumulativeKm returns the running haversine distance at each polyline vertex.
func CumulativeKm(path RoadPath) []float64 {
	if len(path) == 0 {
		return nil
	}
	cum := make([]float64, len(path))
	for i := 1; i < len(path); i++ {
		cum[i] = cum[i-1] + geo.DistanceKm(path[i-1].Latitude, path[i-1].Longitude, path[i].Latitude, path[i].Longitude)
	}
	return cum
}

func alongPath(seg Segment, path RoadPath) Interpolation {
	n := len(path)
	cum := CumulativeKm(path)
	total := cum[n-1]
	if total == 0 {
		return Interpolation{
			Position:   path[0],
			BearingDeg: waypointBearing(seg),
			Method:     MethodRoadPath,
			Fallback:   FallbackDegenerate,
		}
	}

	target := seg.Progress * total
	res := Interpolation{
		SegmentDistanceKm:  total,
		DistanceTraveledKm: target,
		Method:             MethodRoadPath,
	}
	if target <= 0 {
		res.Position = path[0]
		res.BearingDeg = edgeBearing(path[0], path[1])
		return res
	}
	if target >= total {
		res.Position = path[n-1]
		res.BearingDeg = edgeBearing(path[n-2], path[n-1])
		return res
	}

	// first vertex whose running total meets the target
	i := 1
	for i < n-1 && cum[i] < target {
		i++
	}
	p0, p1 := path[i-1], path[i]
	d0, d1 := cum[i-1], cum[i]
	frac := 0.0
	if d1 > d0 {
		frac = (target - d0) / (d1 - d0)
	}
	res.Position = Coordinate{
		Latitude:  p0.Latitude + (p1.Latitude-p0.Latitude)*frac,
		Longitude: p0.Longitude + (p1.Longitude-p0.Longitude)*frac,
	}
	res.BearingDeg = edgeBearing(p0, p1)
	return res
}

func edgeBearing(a, b Coordinate) float64 {
	return geo.BearingDeg(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}
