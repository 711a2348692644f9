package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"gopkg.in/throttled/throttled.v2"
	"gopkg.in/throttled/throttled.v2/store/memstore"

	"github.com/cardinal-app/magiclink"
	"github.com/cardinal-app/magiclink/internal/config"
	"github.com/cardinal-app/magiclink/internal/factory"
	"github.com/cardinal-app/magiclink/internal/logging"
)

// newRouter creates the chi router with middleware and routes.
func newRouter(cfg *config.Config, f *factory.Factory, logger *zap.Logger) (chi.Router, error) {
	ml := f.MagicLink()
	p := f.Pipeline(ml)

	limit, err := rateLimiter(cfg.RateLimitPerMin)
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	if cfg.TrustProxyHeaders {
		// The rate limiter keys on RemoteAddr; client-supplied headers
		// must not reach it unless a proxy rewrites them.
		router.Use(middleware.RealIP)
	}
	router.Use(logging.Middleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"magiclink"}`))
	})

	router.With(limit).Method(http.MethodGet, magiclink.ConsumePath,
		magiclink.ConsumeHandler(cfg.AppDeepLink, logger.Named("consume")))

	router.Route("/auth/custom", func(r chi.Router) {
		r.Use(limit)
		p.RegisterRoutes(r)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"endpoint not found"}`))
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"error":"method not allowed"}`))
	})

	return router, nil
}

// rateLimiter limits each remote address to perMin requests a minute. Zero
// disables limiting.
func rateLimiter(perMin int) (func(http.Handler) http.Handler, error) {
	if perMin <= 0 {
		return func(h http.Handler) http.Handler { return h }, nil
	}
	store, err := memstore.New(65536)
	if err != nil {
		return nil, err
	}
	burst := perMin / 5
	if burst < 1 {
		burst = 1
	}
	rl, err := throttled.NewGCRARateLimiter(store, throttled.RateQuota{
		MaxRate:  throttled.PerMin(perMin),
		MaxBurst: burst,
	})
	if err != nil {
		return nil, err
	}
	h := throttled.HTTPRateLimiter{
		RateLimiter: rl,
		VaryBy:      &throttled.VaryBy{RemoteAddr: true},
	}
	return h.RateLimit, nil
}
