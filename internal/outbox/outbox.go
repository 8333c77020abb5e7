// Package outbox is the durable retry queue for cross-site writes accepted
// while the peer was unreachable (or pending resync propagation).
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sitelink/fenceline/internal/models"
	"gorm.io/gorm"
)

// Writer appends pending-forward records. Enqueue returns only after the row
// is durable: a crash right after Enqueue still gets flushed later.
type Writer struct {
	db *gorm.DB
}

// NewWriter creates an outbox writer.
func NewWriter(db *gorm.DB) *Writer {
	return &Writer{db: db}
}

// Enqueue durably appends one pending forward.
func (w *Writer) Enqueue(ctx context.Context, tenantID, direction, entity, action string, payload []byte) error {
	msg := models.OutboxMessage{
		OpID:      uuid.New(),
		TenantID:  tenantID,
		Direction: direction,
		Entity:    entity,
		Action:    action,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	if err := w.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return fmt.Errorf("enqueue outbox %s %s.%s: %w", direction, entity, action, err)
	}
	return nil
}

// PendingCount reports unacknowledged rows, for the status endpoint.
func (w *Writer) PendingCount(ctx context.Context, tenantID string) (int64, error) {
	var n int64
	err := w.db.WithContext(ctx).Model(&models.OutboxMessage{}).
		Where("tenant_id = ? AND acked_at IS NULL", tenantID).
		Count(&n).Error
	return n, err
}
