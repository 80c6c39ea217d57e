package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	mw "github.com/errorcue/errorcue/internal/api/middleware"
	"github.com/errorcue/errorcue/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
// Nil handlers answer 501; a nil RateLimit or Metrics disables that concern.
type Dependencies struct {
	StorageMode    string
	DefaultOwner   string
	AllowedOrigins []string
	DebugRoutes    bool
	TrustProxy     bool

	RateLimit *mw.RateLimit
	Metrics   Instrumenter

	HealthHandler        http.HandlerFunc
	IngestHandler        http.HandlerFunc
	ListHandler          http.HandlerFunc
	StatsHandler         http.HandlerFunc
	FilterOptionsHandler http.HandlerFunc
	RetryHandler         http.HandlerFunc
	ResolveHandler       http.HandlerFunc
	TestErrorHandler     http.HandlerFunc
}

// Instrumenter records per-route HTTP metrics and exposes them.
type Instrumenter interface {
	InstrumentHandler(next http.Handler) http.Handler
	Handler() http.Handler
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if deps.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.InstrumentHandler)
	}
	r.Use(mw.CORS(deps.AllowedOrigins))
	r.Use(mw.StorageMode(deps.StorageMode))
	r.Use(mw.Owner(deps.DefaultOwner))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", orNotImplemented(deps.HealthHandler))

		r.Group(func(r chi.Router) {
			if deps.RateLimit != nil {
				r.Use(deps.RateLimit.Limit)
			}
			r.Post("/errors", orNotImplemented(deps.IngestHandler))
		})
		r.Get("/errors", orNotImplemented(deps.ListHandler))
		r.Get("/stats", orNotImplemented(deps.StatsHandler))
		r.Get("/filter-options", orNotImplemented(deps.FilterOptionsHandler))

		retry := orNotImplemented(deps.RetryHandler)
		resolve := orNotImplemented(deps.ResolveHandler)
		r.Post("/errors/{id}/retry", retry)
		r.Post("/retry-error/{id}", retry)
		r.Post("/errors/{id}/resolve", resolve)
		r.Post("/resolve-error/{id}", resolve)
	})

	if deps.DebugRoutes {
		r.Get("/debug/test-error", orNotImplemented(deps.TestErrorHandler))
	}

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
