package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/errorcue/errorcue/pkg/models"
)

type sample struct {
	age         time.Duration
	integration string
	errorType   string
	message     string
	payload     map[string]any
	retries     int
	lastRetry   time.Duration
	resolvedAgo time.Duration
}

var samples = []sample{
	{time.Hour, "Zapier", models.ErrorTypeAuthExpired, "OAuth token expired for Gmail account",
		map[string]any{"zapId": "ZAP-83921", "step": "Send Email", "response": "401 Unauthorized"}, 1, 30 * time.Minute, 0},
	{2 * time.Hour, "n8n", models.ErrorTypeConnectionFailed, "Failed to connect to Slack API",
		map[string]any{"nodeId": "slack-node-1", "workflowId": "workflow-456", "error": "Network timeout"}, 2, time.Hour, 50 * time.Minute},
	{3 * time.Hour, "Make.com", models.ErrorTypeRateLimit, "API rate limit exceeded for Google Sheets",
		map[string]any{"scenarioId": "scenario-789", "module": "Google Sheets - Add Row"}, 0, 0, 0},
	{4 * time.Hour, "Zapier", models.ErrorTypeInvalidData, "Invalid email format in trigger data",
		map[string]any{"zapId": "ZAP-12345", "step": "Format Email", "invalidData": map[string]any{"email": "not-an-email"}}, 3, 2 * time.Hour, 0},
	{5 * time.Hour, "n8n", models.ErrorTypeTimeout, "HTTP request timeout after 30 seconds",
		map[string]any{"nodeId": "http-request-1", "workflowId": "workflow-123", "url": "https://api.example.com"}, 1, 4*time.Hour + 30*time.Minute, 4 * time.Hour},
	{6 * time.Hour, "Make.com", models.ErrorTypeAuthExpired, "Google Drive authentication expired",
		map[string]any{"scenarioId": "scenario-456", "module": "Google Drive - Upload File"}, 2, 5 * time.Hour, 0},
	{7 * time.Hour, "Zapier", models.ErrorTypeRateLimit, "Twitter API rate limit exceeded",
		map[string]any{"zapId": "ZAP-67890", "step": "Post Tweet"}, 1, 6*time.Hour + 30*time.Minute, 6 * time.Hour},
	{8 * time.Hour, "n8n", models.ErrorTypeInvalidData, "Missing required field: customer_email",
		map[string]any{"nodeId": "validation-node", "workflowId": "workflow-789"}, 0, 0, 0},
	{9 * time.Hour, "Make.com", models.ErrorTypeConnectionFailed, "Unable to connect to Shopify store",
		map[string]any{"scenarioId": "scenario-321", "module": "Shopify - Get Orders", "storeUrl": "mystore.myshopify.com"}, 4, 5 * time.Hour, 0},
	{10 * time.Hour, "Zapier", models.ErrorTypeTimeout, "Webhook delivery timeout to customer endpoint",
		map[string]any{"zapId": "ZAP-11111", "step": "Send Webhook", "endpoint": "https://customer.com/webhook"}, 2, 8*time.Hour + 30*time.Minute, 8 * time.Hour},
}

// SampleRecords returns the canned demo records for owner, timed relative to now.
// Every record's retry history is consistent with its retry count.
func SampleRecords(owner string, now time.Time) []*models.ErrorRecord {
	records := make([]*models.ErrorRecord, 0, len(samples))
	for _, s := range samples {
		occurred := now.Add(-s.age)
		rec := &models.ErrorRecord{
			Owner:           owner,
			OccurredAt:      occurred,
			IntegrationName: s.integration,
			ErrorType:       s.errorType,
			ErrorMessage:    s.message,
			RawPayload:      copyMap(s.payload),
			RetryHistory:    []models.RetryResult{},
		}

		if s.retries > 0 {
			last := now.Add(-s.lastRetry)
			step := last.Sub(occurred) / time.Duration(s.retries)
			for i := 1; i <= s.retries; i++ {
				rec.RetryHistory = append(rec.RetryHistory, models.RetryResult{
					Timestamp: occurred.Add(step * time.Duration(i)),
					Success:   false,
					Message:   "Retry failed",
					Response:  map[string]any{"retryAttempt": true},
				})
			}
			lastAt := rec.RetryHistory[len(rec.RetryHistory)-1].Timestamp
			rec.LastRetryAt = &lastAt
		}
		rec.RetryCount = len(rec.RetryHistory)

		if s.resolvedAgo > 0 {
			at := now.Add(-s.resolvedAgo)
			rec.Resolved = true
			rec.ResolvedAt = &at
		}
		records = append(records, rec)
	}
	return records
}

// SeedSampleData inserts the sample records when the store holds no records at all.
// It returns the number of records inserted.
func SeedSampleData(ctx context.Context, s Store, owner string) (int, error) {
	n, err := s.CountErrorRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("count before seeding: %w", err)
	}
	if n > 0 {
		slog.Debug("store not empty, skipping sample data", "records", n)
		return 0, nil
	}

	records := SampleRecords(owner, time.Now().UTC())
	for _, rec := range records {
		if err := s.CreateErrorRecord(ctx, rec); err != nil {
			return 0, fmt.Errorf("seed sample record: %w", err)
		}
	}
	slog.Info("seeded sample data", "records", len(records), "owner", owner)
	return len(records), nil
}
