// Package roadpath fetches road-following polylines between two waypoints.
// Every failure here is recoverable: callers fall back to straight-line
// interpolation.
package roadpath

import (
	"context"
	"errors"
	"fmt"
	"time"

	"route-playback/internal/playback"
)

var (
	ErrEmptyPath    = errors.New("road path is empty")
	ErrNoCredential = errors.New("no road path credential")
)

// Request describes one segment to route.
type Request struct {
	From      playback.Coordinate
	To        playback.Coordinate
	Departure *time.Time // real-world departure hint, may be nil
	APIKey    string     // overrides the provider default when set
}

// Provider returns the road path for a segment.
type Provider interface {
	RoadPath(ctx context.Context, req Request) (playback.RoadPath, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (playback.RoadPath, error)

func (f ProviderFunc) RoadPath(ctx context.Context, req Request) (playback.RoadPath, error) {
	return f(ctx, req)
}

// Fetch calls p with a bounded timeout. An empty result is reported as
// ErrEmptyPath so callers can distinguish it from transport failures.
func Fetch(ctx context.Context, p Provider, timeout time.Duration, req Request) (playback.RoadPath, error) {
	if p == nil {
		return nil, ErrNoCredential
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	path, err := p.RoadPath(ctx, req)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("road path: %w", context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("road path: %w", err)
	}
	if len(path) == 0 {
		return nil, ErrEmptyPath
	}
	return path, nil
}

func endpoint(c playback.Coordinate) string {
	return fmt.Sprintf("%.6f,%.6f", c.Latitude, c.Longitude)
}
