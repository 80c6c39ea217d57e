package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/errorcue/errorcue/pkg/models"
	"github.com/nats-io/nats.go"
)

// EventErrorCreated is the event name carried in every published message.
const EventErrorCreated = "error.created"

// Publisher is the subset of *nats.Conn the NATS notifier needs.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// NATSPublisher publishes each new record as JSON on a subject.
type NATSPublisher struct {
	pub     Publisher
	subject string
}

type errorCreatedEvent struct {
	Event string              `json:"event"`
	Sent  time.Time           `json:"sent_at"`
	Rec   *models.ErrorRecord `json:"record"`
}

// NewNATSPublisher wraps pub. Use ConnectNATS to obtain a live connection.
func NewNATSPublisher(pub Publisher, subject string) *NATSPublisher {
	return &NATSPublisher{pub: pub, subject: subject}
}

func (p *NATSPublisher) Name() string { return "nats" }

func (p *NATSPublisher) Notify(ctx context.Context, rec *models.ErrorRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrNotifyTimeout, err)
	}

	data, err := json.Marshal(errorCreatedEvent{Event: EventErrorCreated, Sent: time.Now().UTC(), Rec: rec})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := p.pub.Publish(p.subject, data); err != nil {
		return fmt.Errorf("%w: %v", ErrNotifyUnreachable, err)
	}
	return nil
}

// ConnectNATS dials the NATS server at url.
func ConnectNATS(url string, timeout time.Duration) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("errorcue"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}
