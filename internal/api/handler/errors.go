package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	mw "github.com/errorcue/errorcue/internal/api/middleware"
	"github.com/errorcue/errorcue/internal/api/response"
	"github.com/errorcue/errorcue/internal/errorlog"
	"github.com/errorcue/errorcue/pkg/models"
	"github.com/google/uuid"
)

const maxIngestBodyBytes = 1 << 20

// Ingester persists incoming error reports.
type Ingester interface {
	Submit(ctx context.Context, rep errorlog.Report) (uuid.UUID, error)
}

// Lister returns an owner's error records.
type Lister interface {
	List(ctx context.Context, f errorlog.Filter) ([]*models.ErrorRecord, error)
}

type ingestRequest struct {
	UserID          string         `json:"userId"`
	Timestamp       string         `json:"timestamp"`
	IntegrationName string         `json:"integrationName"`
	ErrorType       string         `json:"errorType"`
	ErrorMessage    string         `json:"errorMessage"`
	RawPayload      map[string]any `json:"rawPayload"`
}

// NewIngestHandler returns an http.HandlerFunc for POST /api/errors.
func NewIngestHandler(svc Ingester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingestRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBodyBytes))
		if err := dec.Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Invalid JSON body; rawPayload must be an object", nil)
			return
		}

		var occurred time.Time
		if ts := strings.TrimSpace(req.Timestamp); ts != "" {
			parsed, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
					"timestamp must be a valid RFC3339 timestamp", []string{"timestamp"})
				return
			}
			occurred = parsed
		}

		id, err := svc.Submit(r.Context(), errorlog.Report{
			Owner:           req.UserID,
			OccurredAt:      occurred,
			IntegrationName: req.IntegrationName,
			ErrorType:       req.ErrorType,
			ErrorMessage:    req.ErrorMessage,
			RawPayload:      req.RawPayload,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		response.Created(w, response.Message{
			"message": "Error logged successfully",
			"id":      id,
		})
	}
}

// NewListHandler returns an http.HandlerFunc for GET /api/errors.
func NewListHandler(svc Lister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, _ := mw.GetOwner(r)
		q := r.URL.Query()

		start, err := parseDateParam(q.Get("startDate"), false)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"startDate must be an RFC3339 timestamp or YYYY-MM-DD date", []string{"startDate"})
			return
		}
		end, err := parseDateParam(q.Get("endDate"), true)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"endDate must be an RFC3339 timestamp or YYYY-MM-DD date", []string{"endDate"})
			return
		}

		showResolved, _ := strconv.ParseBool(q.Get("showResolved"))

		records, err := svc.List(r.Context(), errorlog.Filter{
			Owner:        owner,
			Integration:  q.Get("integration"),
			ErrorType:    q.Get("errorType"),
			StartDate:    start,
			EndDate:      end,
			ShowResolved: showResolved,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		response.JSON(w, records)
	}
}

// parseDateParam accepts RFC3339 or a bare date. A bare end date covers the
// whole day.
func parseDateParam(v string, endOfDay bool) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		return d.Add(24*time.Hour - time.Nanosecond), nil
	}
	return d, nil
}

// writeServiceError maps errorlog errors onto the response envelope.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *errorlog.ValidationError
	switch {
	case errors.As(err, &verr):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error(), verr.Fields)
	case errors.Is(err, errorlog.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Error log not found", nil)
	default:
		slog.Error("request failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
