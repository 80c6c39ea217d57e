package handler

import (
	"context"
	"net/http"

	mw "github.com/errorcue/errorcue/internal/api/middleware"
	"github.com/errorcue/errorcue/internal/api/response"
	"github.com/errorcue/errorcue/pkg/models"
)

// StatsProvider summarizes an owner's recent errors.
type StatsProvider interface {
	Stats(ctx context.Context, owner string) (*models.Stats, error)
}

// FilterOptionsProvider lists an owner's distinct filter values.
type FilterOptionsProvider interface {
	FilterOptions(ctx context.Context, owner string) (*models.FilterOptions, error)
}

// NewStatsHandler returns an http.HandlerFunc for GET /api/stats.
func NewStatsHandler(svc StatsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, _ := mw.GetOwner(r)
		stats, err := svc.Stats(r.Context(), owner)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.JSON(w, stats)
	}
}

// NewFilterOptionsHandler returns an http.HandlerFunc for GET /api/filter-options.
func NewFilterOptionsHandler(svc FilterOptionsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, _ := mw.GetOwner(r)
		opts, err := svc.FilterOptions(r.Context(), owner)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.JSON(w, opts)
	}
}
