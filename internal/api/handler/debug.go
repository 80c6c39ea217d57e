package handler

import (
	"net/http"
	"time"

	mw "github.com/errorcue/errorcue/internal/api/middleware"
	"github.com/errorcue/errorcue/internal/api/response"
	"github.com/errorcue/errorcue/internal/errorlog"
	"github.com/errorcue/errorcue/pkg/models"
	"github.com/google/uuid"
)

type testError struct {
	integration string
	errorType   string
	message     string
	payload     map[string]any
}

var testErrors = []testError{
	{"Zapier", models.ErrorTypeAuthExpired, "OAuth token expired for Gmail integration",
		map[string]any{"zapId": "ZAP-TEST-1", "step": "Send Email"}},
	{"n8n", models.ErrorTypeConnectionFailed, "Failed to connect to HubSpot API",
		map[string]any{"workflowId": "workflow-test", "nodeId": "hubspot-node"}},
	{"Make.com", models.ErrorTypeRateLimit, "Airtable API rate limit exceeded",
		map[string]any{"scenarioId": "scenario-test", "module": "Airtable - Create Record"}},
	{"Zapier", models.ErrorTypeInvalidData, "Invalid phone number format in lead data",
		map[string]any{"zapId": "ZAP-TEST-2", "invalidData": map[string]any{"phone": "12-34"}}},
}

// NewTestErrorHandler returns an http.HandlerFunc for GET /debug/test-error.
// It submits a fixed set of sample reports through the normal ingestion path.
func NewTestErrorHandler(svc Ingester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, _ := mw.GetOwner(r)
		now := time.Now().UTC()

		ids := make([]uuid.UUID, 0, len(testErrors))
		for i, te := range testErrors {
			id, err := svc.Submit(r.Context(), errorlog.Report{
				Owner:           owner,
				OccurredAt:      now.Add(-time.Duration(i) * time.Minute),
				IntegrationName: te.integration,
				ErrorType:       te.errorType,
				ErrorMessage:    te.message,
				RawPayload:      te.payload,
			})
			if err != nil {
				writeServiceError(w, err)
				return
			}
			ids = append(ids, id)
		}

		response.JSON(w, response.Message{
			"message": "Test errors created",
			"count":   len(ids),
			"ids":     ids,
		})
	}
}
