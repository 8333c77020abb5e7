package outbox

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/sitelink/fenceline/internal/bus"
	"github.com/sitelink/fenceline/internal/events"
	"github.com/sitelink/fenceline/internal/fence"
	"github.com/sitelink/fenceline/internal/models"
	"gorm.io/gorm"
)

// CommandSender forwards one envelope and waits for its ack.
type CommandSender interface {
	SendWithAck(ctx context.Context, env bus.CommandEnvelope, timeout time.Duration) bus.AckResult
}

// EventPublisher emits one resync event.
type EventPublisher interface {
	Publish(ctx context.Context, tenantID, entity, name string, payload json.RawMessage, eventID string) error
}

// Flusher drains one direction of the outbox whenever the fence store reports
// Online. Items go out strictly in creation order; the first failure stops the
// batch so a stuck item never causes out-of-order application at the peer, and
// the whole unflushed prefix is retried next tick.
type Flusher struct {
	db        *gorm.DB
	store     *fence.Store
	sender    CommandSender
	publisher EventPublisher
	tenantID  string
	direction string
	tick      time.Duration
	batchSize int
	timeout   time.Duration

	// Notify, when set, reports how many items a cycle flushed.
	Notify func(flushed int)
}

// NewFlusher creates a flusher for one direction ("toCloud" at Local,
// "toLocal" at Cloud).
func NewFlusher(db *gorm.DB, store *fence.Store, sender CommandSender, publisher EventPublisher,
	tenantID, direction string, tick time.Duration, batchSize int, timeout time.Duration) *Flusher {
	return &Flusher{
		db:        db,
		store:     store,
		sender:    sender,
		publisher: publisher,
		tenantID:  tenantID,
		direction: direction,
		tick:      tick,
		batchSize: batchSize,
		timeout:   timeout,
	}
}

// Run flushes on a fixed tick until ctx is canceled.
func (f *Flusher) Run(ctx context.Context) {
	log.Printf("📤 [OUTBOX] flusher %s every %v (batch %d)", f.direction, f.tick, f.batchSize)

	ticker := time.NewTicker(f.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if f.store.Get(f.tenantID) != fence.ModeOnline {
			continue
		}

		n, err := f.FlushOnce(ctx)
		if err != nil {
			log.Printf("⚠️ [OUTBOX] flush error: %v", err)
		}
		if n > 0 && f.Notify != nil {
			f.Notify(n)
		}
	}
}

// FlushOnce sends the oldest unacknowledged batch in creation order and
// returns how many items were acknowledged.
func (f *Flusher) FlushOnce(ctx context.Context) (int, error) {
	var batch []models.OutboxMessage
	err := f.db.WithContext(ctx).
		Where("tenant_id = ? AND direction = ? AND acked_at IS NULL", f.tenantID, f.direction).
		Order("created_at asc").
		Limit(f.batchSize).
		Find(&batch).Error
	if err != nil {
		return 0, err
	}

	flushed := 0
	for _, m := range batch {
		if !f.send(ctx, m) {
			// preserve order: retry the whole unflushed prefix next tick
			log.Printf("⚠️ [OUTBOX] send failed for %s, holding %d later item(s)", m.OpID, len(batch)-flushed-1)
			break
		}

		now := time.Now().UTC()
		updates := map[string]any{"acked_at": now}
		if m.SentAt == nil {
			updates["sent_at"] = now
		}
		if err := f.db.WithContext(ctx).Model(&models.OutboxMessage{}).
			Where("op_id = ?", m.OpID).
			Updates(updates).Error; err != nil {
			return flushed, err
		}

		log.Printf("📤 [OUTBOX] acked %s %s.%s %s", f.direction, m.Entity, m.Action, m.OpID)
		flushed++
	}
	return flushed, nil
}

func (f *Flusher) send(ctx context.Context, m models.OutboxMessage) bool {
	if f.direction == models.DirectionToLocal {
		// Cloud→Local resync rides the event stream. Publish waits for the
		// broker's confirm, and the consumer's ledger on OpID dedupes replays,
		// so a clean return here is safe to record as drained.
		err := f.publisher.Publish(ctx, m.TenantID, m.Entity, events.EventCreated, []byte(m.Payload), m.OpID.String())
		return err == nil
	}

	env := bus.CommandEnvelope{
		TenantID:       m.TenantID,
		Target:         string(fence.RoleCloud),
		Entity:         m.Entity,
		Action:         m.Action,
		Payload:        []byte(m.Payload),
		CorrelationID:  uuid.NewString(),
		AppliedLocally: true, // already durable here; tells Cloud not to resync back
	}
	ack := f.sender.SendWithAck(ctx, env, f.timeout)
	if !ack.OK {
		log.Printf("⚠️ [OUTBOX] nack %d %s for %s", ack.Status, ack.Message, m.OpID)
	}
	return ack.OK
}
