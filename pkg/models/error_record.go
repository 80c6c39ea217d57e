// Package models contains shared data models used across the ErrorCue codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Error types the dashboard knows how to label. The store accepts any value.
const (
	ErrorTypeAuthExpired      = "AUTH_EXPIRED"
	ErrorTypeRateLimit        = "RATE_LIMIT"
	ErrorTypeConnectionFailed = "CONNECTION_FAILED"
	ErrorTypeInvalidData      = "INVALID_DATA"
	ErrorTypeTimeout          = "TIMEOUT"
)

// ErrorRecord is one automation error reported through the webhook.
// RetryCount always equals len(RetryHistory); Resolved is true exactly when ResolvedAt is set.
type ErrorRecord struct {
	ID              uuid.UUID      `db:"id"               json:"id"`
	Owner           string         `db:"owner"            json:"user_id"`
	OccurredAt      time.Time      `db:"occurred_at"      json:"timestamp"`
	IntegrationName string         `db:"integration_name" json:"integration_name"`
	ErrorType       string         `db:"error_type"       json:"error_type"`
	ErrorMessage    string         `db:"error_message"    json:"error_message"`
	RawPayload      map[string]any `db:"raw_payload"      json:"raw_payload"`
	Resolved        bool           `db:"resolved"         json:"resolved"`
	ResolvedAt      *time.Time     `db:"resolved_at"      json:"resolved_at,omitempty"`
	RetryCount      int            `db:"retry_count"      json:"retry_count"`
	LastRetryAt     *time.Time     `db:"last_retry_at"    json:"last_retry_at,omitempty"`
	RetryHistory    []RetryResult  `db:"retry_history"    json:"retry_results"`
	CreatedAt       time.Time      `db:"created_at"       json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"       json:"updated_at"`
}

// RetryResult is a single entry in a record's retry history.
type RetryResult struct {
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Response  map[string]any `json:"response,omitempty"`
}

// WindowCount is the number of records sharing an error type and integration
// inside a stats window.
type WindowCount struct {
	ErrorType       string
	IntegrationName string
	Count           int
}

// Stats summarizes an owner's recent errors.
type Stats struct {
	TotalErrors         int    `json:"totalErrors"`
	MostCommonErrorType string `json:"mostCommonErrorType"`
	TotalIntegrations   int    `json:"totalIntegrations"`
}

// FilterOptions lists the distinct values an owner can filter by.
type FilterOptions struct {
	Integrations []string `json:"integrations"`
	ErrorTypes   []string `json:"errorTypes"`
}
