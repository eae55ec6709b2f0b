package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Stock movement types.
const (
	MovementSale        = "sale"
	MovementRefund      = "refund"
	MovementVoidRestore = "void_restore"
	MovementAdjustment  = "adjustment"
	MovementSync        = "sync"
)

// StockMovement records every stock change on a product.
// Created automatically on sale, refund, void, manual adjustment, and when
// applying remote deltas during sync. Movements are never modified or
// deleted; corrections create inverse entries. Because they are deltas,
// concurrent movements from two devices commute during reconciliation.
type StockMovement struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index"`
	Type      string    `gorm:"not null"` // "sale" | "refund" | "void_restore" | "adjustment" | "sync"
	Quantity  int       `gorm:"not null"` // positive = in, negative = out
	StockBefore int     `gorm:"not null"`
	StockAfter  int     `gorm:"not null"`
	Reason      string
	// ReferenceID links to the originating invoice or sync batch
	ReferenceID *uuid.UUID `gorm:"type:uuid"`
	CreatedAt   time.Time

	Product *Product `gorm:"foreignKey:ProductID"`
}

// PriceHistory captures each price change on a product for reporting.
type PriceHistory struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProductID uuid.UUID       `gorm:"type:uuid;index;not null"`
	OldPrice  decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	NewPrice  decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	OldCost   decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	NewCost   decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	ChangedBy *uuid.UUID      `gorm:"type:uuid"`
	CreatedAt time.Time
}

// TableName overrides the default (price_histories is fine, keep explicit).
func (PriceHistory) TableName() string { return "price_history" }
