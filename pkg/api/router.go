package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dlrs-ng/land-registry/pkg/registry"
)

// Config configures the HTTP API.
type Config struct {
	// Identity resolves callers. Nil admits every caller as admin.
	Identity IdentityExtractor

	CORS CORSConfig

	// Metrics, when set, is served on /metrics.
	Metrics prometheus.Gatherer

	// MaxBodyBytes caps request bodies. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64

	Logger *slog.Logger
}

// NewRouter creates the chi router serving the parcel API.
func NewRouter(svc *registry.Service, cfg Config) chi.Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	h := &handlers{svc: svc, logger: cfg.Logger, maxBodyBytes: cfg.MaxBodyBytes}

	surveyor := RequireRole(cfg.Identity, RoleSurveyor, RoleAdmin)
	admin := RequireRole(cfg.Identity, RoleAdmin)
	public := RequireRole(cfg.Identity, RolePublic, RoleSurveyor, RoleAdmin)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cfg.CORS.handler())

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.health)
		r.With(public).Get("/verify", h.verify)

		r.Route("/parcels", func(r chi.Router) {
			r.With(surveyor).Get("/", h.list)
			r.With(surveyor).Post("/", h.submit)

			r.Route("/{id}", func(r chi.Router) {
				r.With(surveyor).Get("/", h.get)
				r.With(surveyor).Put("/", h.edit)
				r.With(surveyor).Delete("/", h.remove)
				r.With(surveyor).Get("/history", h.history)
				r.With(admin).Post("/approve", h.approve)
				r.With(admin).Get("/integrity", h.integrity)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	return r
}

// requestLogger logs one line per request at debug level.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"requestId", middleware.GetReqID(r.Context()))
		})
	}
}
