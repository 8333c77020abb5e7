package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Outbox directions. toCloud rows are drained through the command bus,
// toLocal rows through the event stream.
const (
	DirectionToCloud = "toCloud"
	DirectionToLocal = "toLocal"
)

// OutboxMessage is one pending cross-site write. Rows are never deleted:
// AckedAt marks completion and excludes the row from future flush batches.
type OutboxMessage struct {
	OpID      uuid.UUID      `gorm:"type:uuid;primaryKey" json:"opId"`
	TenantID  string         `gorm:"type:varchar(64);not null;index:idx_outbox_pending" json:"tenantId"`
	Direction string         `gorm:"type:varchar(16);not null;index:idx_outbox_pending" json:"direction"`
	Entity    string         `gorm:"type:varchar(64);not null" json:"entity"`
	Action    string         `gorm:"type:varchar(32);not null" json:"action"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `gorm:"not null;index" json:"createdAt"`
	SentAt    *time.Time     `json:"sentAt,omitempty"`
	AckedAt   *time.Time     `gorm:"index:idx_outbox_pending" json:"ackedAt,omitempty"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}

// AppliedEvent is the applied-op ledger: once an event id is present here, any
// redelivery bearing it is a no-op. Append-only.
type AppliedEvent struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SeenAt time.Time `gorm:"not null" json:"seenAt"`
}

func (AppliedEvent) TableName() string {
	return "applied_events"
}
