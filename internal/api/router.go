package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"

	mmetrics "route-playback/internal/metrics"
	"route-playback/internal/service"
)

type Options struct {
	AllowedOrigins []string
	Version        string
	BuildDate      string
}

type Handler struct {
	svc     *service.Service
	metrics *mmetrics.Collector
	opts    Options
	now     func() time.Time
}

func NewRouter(svc *service.Service, metrics *mmetrics.Collector, opts Options) http.Handler {
	h := &Handler{svc: svc, metrics: metrics, opts: opts, now: time.Now}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Use(h.observe)

	r.Get("/health", h.Health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/version", h.Version)

		r.Post("/simulation/calculate-position", h.CalculatePosition)
		r.Post("/simulation/calculate-positions-batch", h.CalculatePositionsBatch)

		r.Post("/routes/analyze", h.AnalyzeRoute)
		r.Post("/routes/validate", h.ValidateRoute)

		r.Get("/vehicles", h.ListVehicles)
		r.Get("/vehicles/{vehicleID}/position", h.VehiclePosition)
		r.Get("/vehicles/{vehicleID}/analysis", h.VehicleAnalysis)
	})
	return r
}

// observe logs each request and counts it by route pattern.
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if h.metrics != nil {
			h.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		}
		log.WithFields(log.Fields{
			"method": r.Method,
			"route":  route,
			"status": status,
			"took":   time.Since(start).String(),
		}).Debug("http request")
	})
}
