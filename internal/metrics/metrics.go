package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

type Collector struct {
	reg *prometheus.Registry

	Positions      *prometheus.CounterVec // status label
	Fallbacks      *prometheus.CounterVec // reason label
	Analyses       *prometheus.CounterVec // kind label: analyze|validate
	RoadPathLookup *prometheus.CounterVec // outcome label: ok|error|timeout|empty|skipped
	CacheHits      prometheus.Counter     // subset of ok lookups served from the path cache

	NATSRequests  *prometheus.CounterVec // subject label
	NATSErrors    *prometheus.CounterVec // subject label
	NATSConnected prometheus.Gauge

	HTTPRequests *prometheus.CounterVec // route, code labels

	SimulateDuration prometheus.Histogram
	RoadPathDuration prometheus.Histogram
	BatchSize        prometheus.Histogram

	BatchWorkers    prometheus.Gauge
	RoadPathTimeout prometheus.Gauge // seconds
}

func NewCollector(batchWorkers int, roadPathTimeout time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Positions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playback_positions_total",
			Help: "Simulated positions by resulting status.",
		}, []string{"status"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playback_interpolation_fallbacks_total",
			Help: "Interpolations that did not use a usable road path, by reason.",
		}, []string{"reason"}),
		Analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playback_route_analyses_total",
			Help: "Route analyses performed.",
		}, []string{"kind"}),
		RoadPathLookup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playback_road_path_lookups_total",
			Help: "Road path lookups by outcome.",
		}, []string{"outcome"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playback_road_path_cache_hits_total",
			Help: "Road path lookups served from the persistent cache.",
		}),
		NATSRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playback_nats_requests_total",
			Help: "NATS requests handled.",
		}, []string{"subject"}),
		NATSErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playback_nats_errors_total",
			Help: "NATS requests answered with an error.",
		}, []string{"subject"}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playback_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playback_http_requests_total",
			Help: "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
		SimulateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "playback_simulate_duration_seconds",
			Help:    "Duration of a single position computation, road path included.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		RoadPathDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "playback_road_path_duration_seconds",
			Help:    "Duration of road path lookups.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 13),
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "playback_batch_size",
			Help:    "Vehicles per batch request.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		BatchWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playback_batch_workers",
			Help: "Configured batch worker pool size.",
		}),
		RoadPathTimeout: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playback_road_path_timeout_seconds",
			Help: "Road path lookup timeout in seconds.",
		}),
	}

	reg.MustRegister(
		c.Positions, c.Fallbacks, c.Analyses, c.RoadPathLookup, c.CacheHits,
		c.NATSRequests, c.NATSErrors, c.NATSConnected,
		c.HTTPRequests,
		c.SimulateDuration, c.RoadPathDuration, c.BatchSize,
		c.BatchWorkers, c.RoadPathTimeout,
	)

	c.BatchWorkers.Set(float64(batchWorkers))
	c.RoadPathTimeout.Set(roadPathTimeout.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Registry exposes the underlying registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
