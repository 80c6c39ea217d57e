package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/errorcue/errorcue/pkg/models"
)

const slackFooter = "Catch automation errors before they break your business • ErrorCue"

// SlackNotifier posts a Block Kit summary to a Slack incoming webhook.
// With an empty webhook URL it does nothing.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a SlackNotifier. timeout bounds each delivery.
func NewSlackNotifier(webhookURL string, timeout time.Duration) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *SlackNotifier) Name() string { return "slack" }

func (s *SlackNotifier) Notify(ctx context.Context, rec *models.ErrorRecord) error {
	if s.webhookURL == "" {
		slog.Info("slack webhook not configured, skipping notification", "error_id", rec.ID)
		return nil
	}

	body, err := json.Marshal(BuildSlackMessage(rec))
	if err != nil {
		return fmt.Errorf("encoding slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrNotifyRejected, resp.StatusCode)
	}

	slog.Info("slack notification sent", "error_id", rec.ID, "integration", rec.IntegrationName)
	return nil
}

// SlackMessage is the webhook payload.
type SlackMessage struct {
	Text   string       `json:"text"`
	Blocks []SlackBlock `json:"blocks"`
}

type SlackBlock struct {
	Type     string      `json:"type"`
	Text     *SlackText  `json:"text,omitempty"`
	Fields   []SlackText `json:"fields,omitempty"`
	Elements []SlackText `json:"elements,omitempty"`
}

type SlackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// BuildSlackMessage renders rec as a fixed-layout Block Kit message.
func BuildSlackMessage(rec *models.ErrorRecord) SlackMessage {
	md := func(s string) SlackText { return SlackText{Type: "mrkdwn", Text: s} }

	return SlackMessage{
		Text: fmt.Sprintf("ErrorCue: %s error in %s", rec.ErrorType, rec.IntegrationName),
		Blocks: []SlackBlock{
			{Type: "header", Text: &SlackText{Type: "plain_text", Text: "🚨 ErrorCue Alert", Emoji: true}},
			{Type: "section", Fields: []SlackText{
				md("*Integration:*\n" + rec.IntegrationName),
				md("*Error Type:*\n" + rec.ErrorType),
				md("*User ID:*\n" + rec.Owner),
				md("*Time:*\n" + rec.OccurredAt.UTC().Format(time.RFC1123)),
			}},
			{Type: "section", Text: &SlackText{Type: "mrkdwn", Text: "*Error Message:*\n```" + rec.ErrorMessage + "```"}},
			{Type: "section", Text: &SlackText{Type: "mrkdwn", Text: Suggestion(rec.ErrorType, rec.IntegrationName)}},
			{Type: "divider"},
			{Type: "context", Elements: []SlackText{md(slackFooter)}},
		},
	}
}

// Suggestion returns a remediation hint for errorType.
func Suggestion(errorType, integration string) string {
	var fix string
	switch errorType {
	case models.ErrorTypeAuthExpired:
		fix = fmt.Sprintf("Check and refresh OAuth tokens in your %s dashboard", integration)
	case models.ErrorTypeRateLimit:
		fix = fmt.Sprintf("Wait for rate limit reset or upgrade your %s plan", integration)
	case models.ErrorTypeConnectionFailed:
		fix = fmt.Sprintf("Check %s service status and network connectivity", integration)
	case models.ErrorTypeInvalidData:
		fix = fmt.Sprintf("Verify data format and field mappings in %s", integration)
	case models.ErrorTypeTimeout:
		fix = fmt.Sprintf("Increase timeout settings or check %s response times", integration)
	default:
		fix = fmt.Sprintf("Check %s configuration and logs", integration)
	}
	return "💡 *Suggested Fix:* " + fix
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrNotifyTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrNotifyTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrNotifyUnreachable, err)
}
