package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sitelink/fenceline/internal/broker"
	"github.com/sitelink/fenceline/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Applier applies one event-borne payload. Implemented by the gateway's
// handler registry.
type Applier interface {
	ApplyEvent(ctx context.Context, entity, name string, payload json.RawMessage) error
}

// Consumer drains the tenant's event stream at the receiving site. Before
// applying it consults the applied-op ledger; after a successful apply it
// records the event id, so broker redelivery and flusher retries double-count
// nothing.
type Consumer struct {
	b        broker.Broker
	db       *gorm.DB
	applier  Applier
	tenantID string
	role     string
}

// NewConsumer creates an event consumer for this site.
func NewConsumer(b broker.Broker, db *gorm.DB, applier Applier, tenantID, role string) *Consumer {
	return &Consumer{b: b, db: db, applier: applier, tenantID: tenantID, role: role}
}

// Start subscribes to every event of this tenant.
func (c *Consumer) Start(ctx context.Context) error {
	queue := fmt.Sprintf("q.event.%s.%s", c.role, c.tenantID)
	pattern := fmt.Sprintf("event.%s.#", c.tenantID)

	if err := c.b.Subscribe(ctx, queue, pattern, c.onEvent); err != nil {
		return fmt.Errorf("subscribe events: %w", err)
	}
	log.Printf("👂 [EVT] consuming %s", pattern)
	return nil
}

func (c *Consumer) onEvent(ctx context.Context, m broker.Message) error {
	// topic: event.<tenant>.<entity>.<name>
	parts := strings.Split(m.Topic, ".")
	if len(parts) < 4 {
		return fmt.Errorf("%w: topic %q", broker.ErrDrop, m.Topic)
	}
	entity, name := parts[2], parts[3]

	var env Envelope
	if err := json.Unmarshal(m.Body, &env); err != nil || env.EventID == "" {
		return fmt.Errorf("%w: bad event envelope on %s", broker.ErrDrop, m.Topic)
	}
	eventID, err := uuid.Parse(env.EventID)
	if err != nil {
		return fmt.Errorf("%w: event id %q", broker.ErrDrop, env.EventID)
	}

	// ledger check: already applied → no-op
	var seen models.AppliedEvent
	err = c.db.WithContext(ctx).First(&seen, "id = ?", eventID).Error
	if err == nil {
		log.Printf("⏭️ [EVT] duplicate %s.%s %s", entity, name, eventID)
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("ledger lookup: %w", err)
	}

	if err := c.applier.ApplyEvent(ctx, entity, name, env.Payload); err != nil {
		if errors.Is(err, broker.ErrDrop) {
			return err
		}
		return fmt.Errorf("apply %s.%s: %w", entity, name, err)
	}

	record := models.AppliedEvent{ID: eventID, SeenAt: time.Now().UTC()}
	if err := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record).Error; err != nil {
		return fmt.Errorf("record applied event: %w", err)
	}

	log.Printf("✅ [EVT] applied %s.%s %s", entity, name, eventID)
	return nil
}
