package roadpath

import (
	"container/list"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"googlemaps.github.io/maps"

	"route-playback/internal/playback"
)

// GoogleProvider asks the Directions API for a driving route and decodes its
// overview polyline. Clients are kept per API key in a bounded LRU.
type GoogleProvider struct {
	defaultKey string
	maxClients int

	mu      sync.Mutex
	order   *list.List // front = most recently used
	clients map[string]*list.Element
}

type clientEntry struct {
	key    string
	client *maps.Client
}

func NewGoogleProvider(defaultKey string, maxClients int) *GoogleProvider {
	if maxClients <= 0 {
		maxClients = 1
	}
	return &GoogleProvider{
		defaultKey: strings.TrimSpace(defaultKey),
		maxClients: maxClients,
		order:      list.New(),
		clients:    make(map[string]*list.Element),
	}
}

func (g *GoogleProvider) client(apiKey string) (*maps.Client, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		key = g.defaultKey
	}
	if key == "" {
		return nil, ErrNoCredential
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if el, ok := g.clients[key]; ok {
		g.order.MoveToFront(el)
		return el.Value.(*clientEntry).client, nil
	}
	c, err := maps.NewClient(maps.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("maps client: %w", err)
	}
	g.clients[key] = g.order.PushFront(&clientEntry{key: key, client: c})
	for g.order.Len() > g.maxClients {
		oldest := g.order.Back()
		g.order.Remove(oldest)
		delete(g.clients, oldest.Value.(*clientEntry).key)
	}
	return c, nil
}

// Len reports the number of cached clients.
func (g *GoogleProvider) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.order.Len()
}

func (g *GoogleProvider) RoadPath(ctx context.Context, req Request) (playback.RoadPath, error) {
	c, err := g.client(req.APIKey)
	if err != nil {
		return nil, err
	}
	dr := &maps.DirectionsRequest{
		Origin:      endpoint(req.From),
		Destination: endpoint(req.To),
		Mode:        maps.TravelModeDriving,
	}
	if req.Departure != nil {
		dr.DepartureTime = strconv.FormatInt(req.Departure.Unix(), 10)
	}
	routes, _, err := c.Directions(ctx, dr)
	if err != nil {
		return nil, fmt.Errorf("directions: %w", err)
	}
	if len(routes) == 0 {
		return nil, ErrEmptyPath
	}
	pts, err := routes[0].OverviewPolyline.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	path := make(playback.RoadPath, 0, len(pts))
	for _, p := range pts {
		path = append(path, playback.Coordinate{Latitude: p.Lat, Longitude: p.Lng})
	}
	return path, nil
}
