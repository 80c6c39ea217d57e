package handler

import (
	"context"
	"net/http"

	"github.com/errorcue/errorcue/internal/api/response"
	"github.com/errorcue/errorcue/internal/errorlog"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Retrier simulates a retry of one record.
type Retrier interface {
	Retry(ctx context.Context, id uuid.UUID) (*errorlog.RetryResult, error)
}

// Resolver marks one record resolved.
type Resolver interface {
	Resolve(ctx context.Context, id uuid.UUID) (*errorlog.ResolveResult, error)
}

// NewRetryHandler returns an http.HandlerFunc for POST /api/errors/{id}/retry
// and its /api/retry-error/{id} alias.
func NewRetryHandler(svc Retrier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := recordID(w, r)
		if !ok {
			return
		}

		res, err := svc.Retry(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		response.JSON(w, response.Message{
			"message": "Retry completed",
			"result":  res.Outcome,
			"errorId": res.ErrorID,
		})
	}
}

// NewResolveHandler returns an http.HandlerFunc for POST /api/errors/{id}/resolve
// and its /api/resolve-error/{id} alias.
func NewResolveHandler(svc Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := recordID(w, r)
		if !ok {
			return
		}

		res, err := svc.Resolve(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		response.JSON(w, response.Message{
			"message":    "Error marked as resolved",
			"errorId":    res.ErrorID,
			"resolved":   res.Resolved,
			"resolvedAt": res.ResolvedAt,
		})
	}
}

// recordID reads the {id} URL parameter. Ids that are not UUIDs cannot name
// a record, so they are reported as not found.
func recordID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Error log not found", nil)
		return uuid.Nil, false
	}
	return id, true
}
