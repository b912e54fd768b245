package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"route-playback/internal/api"
	"route-playback/internal/config"
	"route-playback/internal/db"
	"route-playback/internal/ingest"
	"route-playback/internal/logging"
	"route-playback/internal/metrics"
	"route-playback/internal/responder"
	"route-playback/internal/roadpath"
	"route-playback/internal/service"
	"route-playback/internal/sim"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics setup
	mcol := metrics.NewCollector(cfg.BatchWorkers, cfg.RoadPathTimeout)
	if cfg.MetricsAddr != "" {
		srv := mcol.Serve(cfg.MetricsAddr)
		defer shutdown(srv)
	}

	// Waypoint store
	var store service.Store
	if s := openStore(ctx, cfg); s != nil {
		defer s.Close()
		store = s
	}

	// Road path provider; requests may bring their own API key
	var provider roadpath.Provider = roadpath.NewGoogleProvider(cfg.GoogleMapsAPIKey, cfg.RoadPathClients)
	if cfg.GoogleMapsAPIKey == "" {
		log.Printf("GOOGLE_MAPS_API_KEY not set; road_path requests without api_key use straight lines")
	}
	if cfg.RoadPathCachePath != "" {
		cache, err := roadpath.OpenBoltCache(cfg.RoadPathCachePath, cfg.RoadPathCacheTTL, provider)
		if err != nil {
			log.Fatalf("road path cache error: %v", err)
		}
		defer cache.Close()
		cache.OnHit(mcol.CacheHits.Inc)
		if n, err := cache.Purge(); err != nil {
			log.Printf("road path cache purge error: %v", err)
		} else if n > 0 {
			log.Printf("purged %d expired road paths", n)
		}
		provider = cache
	}

	mgr := sim.NewManager(provider, cfg.RoadPathTimeout, cfg.BatchWorkers, mcol)
	svc := service.New(ingest.NewParser(cfg.Location), mgr, store, mcol)

	// NATS request/reply surface
	if cfg.NATSURL != "" {
		resp, err := responder.Connect(cfg.NATSURL, svc, cfg.NATSSubjectPrefix, cfg.NATSQueue, wrapResponderMetrics(mcol))
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer resp.Close()
		if err := resp.Start(ctx); err != nil {
			log.Fatalf("nats subscribe error: %v", err)
		}
	}

	// HTTP surface
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(svc, mcol, api.Options{AllowedOrigins: cfg.AllowedOrigins, Version: cfg.APIVersion, BuildDate: os.Getenv("BUILD_DATE")}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("http listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	// Block until context cancelled
	<-ctx.Done()
	shutdown(srv)
	log.Println("shutdown complete")
}

func openStore(ctx context.Context, cfg *config.Config) *db.Store {
	var (
		driver, dsn string
		err         error
	)
	switch cfg.WaypointStore {
	case config.StorePostgres:
		driver = db.DriverPostgres
		dsn, err = db.WithDatabase(cfg.DatabaseURL, cfg.WaypointDB)
		if err != nil {
			log.Fatalf("compose DSN: %v", err)
		}
	case config.StoreSQLite:
		driver, dsn = db.DriverSQLite, cfg.SQLitePath
	default:
		log.Printf("no waypoint store configured; stored-route endpoints are disabled")
		return nil
	}

	s, err := db.Open(driver, dsn)
	if err != nil {
		log.Fatalf("db open error: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		log.Fatalf("db ping error: %v", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		log.Fatalf("db schema error: %v", err)
	}
	log.Printf("waypoint store ready (%s)", cfg.WaypointStore)
	return s
}

func shutdown(srv *http.Server) {
	// Shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

// wrapResponderMetrics adapts our Collector to the ResponderMetrics interface.
func wrapResponderMetrics(c *metrics.Collector) responder.ResponderMetrics {
	if c == nil {
		return nil
	}
	return &natsMetrics{c: c}
}

type natsMetrics struct{ c *metrics.Collector }

func (n *natsMetrics) RequestInc(op string) { n.c.NATSRequests.WithLabelValues(op).Inc() }
func (n *natsMetrics) ErrorInc(op string)   { n.c.NATSErrors.WithLabelValues(op).Inc() }
func (n *natsMetrics) SetConnected(b bool) {
	if b {
		n.c.NATSConnected.Set(1)
	} else {
		n.c.NATSConnected.Set(0)
	}
}
