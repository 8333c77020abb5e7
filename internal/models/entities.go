package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SalesOrder is a backoffice entity, canonical at Cloud. The ID is assigned by
// whichever site originates the write, which is what makes replays upserts.
type SalesOrder struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Customer  string          `gorm:"index" json:"customer"`
	Total     decimal.Decimal `gorm:"type:numeric(12,2)" json:"total"`
	CreatedAt time.Time       `gorm:"index" json:"createdAtUtc"`
}

func (SalesOrder) TableName() string {
	return "sales_orders"
}

// CustomerNote is a backoffice entity, canonical at Cloud.
type CustomerNote struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Customer  string    `gorm:"index" json:"customer"`
	Note      string    `gorm:"type:text" json:"note"`
	CreatedAt time.Time `gorm:"index" json:"createdAtUtc"`
}

func (CustomerNote) TableName() string {
	return "customer_notes"
}

// StockMovement is a floorops entity, canonical at Local.
type StockMovement struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Product   string          `gorm:"index" json:"product"`
	Qty       decimal.Decimal `gorm:"type:numeric(12,3)" json:"qty"`
	Location  string          `json:"location"`
	CreatedAt time.Time       `gorm:"index" json:"createdAtUtc"`
}

func (StockMovement) TableName() string {
	return "stock_movements"
}
