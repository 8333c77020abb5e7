// Package events carries the Cloud→Local resync stream: fire-and-forget
// publications deduplicated at the consumer through the applied-op ledger.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sitelink/fenceline/internal/broker"
)

// EventCreated is the only event name emitted today; it maps onto the "post"
// apply action at the consumer.
const EventCreated = "created"

// Envelope is the wire body of one event.
type Envelope struct {
	EventID string          `json:"eventId"`
	Payload json.RawMessage `json:"payload"`
}

// Publisher emits events on event.<tenant>.<entity>.<name>.
type Publisher struct {
	b broker.Broker
}

// NewPublisher creates a publisher on the given broker.
func NewPublisher(b broker.Broker) *Publisher {
	return &Publisher{b: b}
}

// Publish sends one event. The eventID is the consumer's dedup key; callers
// must reuse the same id when retrying the same logical operation.
func (p *Publisher) Publish(ctx context.Context, tenantID, entity, name string, payload json.RawMessage, eventID string) error {
	body, err := json.Marshal(Envelope{EventID: eventID, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return p.b.Publish(ctx, broker.Message{
		Topic: broker.EventTopic(tenantID, entity, name),
		Body:  body,
	})
}
