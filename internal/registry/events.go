package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType names a committed lifecycle change
type EventType string

const (
	EventProjectRegistered EventType = "project.registered"
	EventProjectVerified   EventType = "project.verified"
	EventProjectRejected   EventType = "project.rejected"
	EventCreditMinted      EventType = "credit.minted"
	EventCreditPurchased   EventType = "credit.purchased"
	EventCreditRetired     EventType = "credit.retired"
	EventSensorRecorded    EventType = "sensor.recorded"
)

// Event is published after a lifecycle operation commits
type Event struct {
	ID            string         `json:"id"`
	Type          EventType      `json:"type"`
	ProjectID     string         `json:"project_id,omitempty"`
	CreditID      string         `json:"credit_id,omitempty"`
	TransactionID string         `json:"transaction_id,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Data          map[string]any `json:"data,omitempty"`
}

// Publisher receives committed events. Implementations must not block for long;
// publish errors are logged by the caller and never undo the operation.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event) error { return nil }

func newEvent(t EventType, at time.Time) Event {
	return Event{ID: uuid.New().String(), Type: t, OccurredAt: at}
}
