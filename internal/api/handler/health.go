package handler

import (
	"context"
	"net/http"

	"github.com/errorcue/errorcue/internal/api/response"
	"github.com/errorcue/errorcue/internal/store"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/health. A nil
// cache is reported as disabled rather than degraded.
func NewHealthHandler(mode store.Mode, s Pinger, c Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if mode != store.ModeDurable {
			checks["database"] = "demo"
		} else if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if c == nil {
			checks["cache"] = "disabled"
		} else if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		body := map[string]any{
			"status":   "ok",
			"storage":  mode,
			"services": checks,
		}
		if checks["database"] == "degraded" || checks["cache"] == "degraded" {
			body["status"] = "degraded"
			response.Status(w, http.StatusServiceUnavailable, body)
			return
		}
		response.JSON(w, body)
	}
}
