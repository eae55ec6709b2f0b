package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice statuses.
const (
	InvoiceCompleted = "completed"
	InvoiceVoided    = "voided"
	InvoiceDraft     = "draft"
)

// Payment methods.
const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentTransfer = "transfer"
)

// Invoice is a finalized sale or refund. Rows are immutable except through
// the explicit edit-and-resave flow, which bumps Revision.
type Invoice struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Number int       `gorm:"uniqueIndex;not null"`
	// ClientID is generated by the renderer when the sale is created offline;
	// the unique index makes replayed sync pushes idempotent.
	ClientID      *string    `gorm:"index:idx_invoices_client_id,unique"`
	CustomerID    *uuid.UUID `gorm:"type:uuid;index"`
	CustomerName  string     `gorm:"not null;default:'Guest'"`
	UserID        uuid.UUID  `gorm:"type:uuid;not null"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DiscountTotal decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Tax           decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Total         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	IsRefund      bool            `gorm:"not null;default:false"`
	// StockConflict flags sales accepted during sync with auto-compensated
	// stock deficits; supervisors review these.
	StockConflict bool   `gorm:"not null;default:false"`
	Status        string `gorm:"type:varchar(20);not null;default:'completed'"`
	Revision      int64  `gorm:"not null;default:1"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Items    []InvoiceItem    `gorm:"foreignKey:InvoiceID"`
	Payments []InvoicePayment `gorm:"foreignKey:InvoiceID"`

	Customer *Customer `gorm:"foreignKey:CustomerID"`
}

// InvoiceItem is one line of an invoice. Price and Cost are captured at sale
// time so later catalog edits never rewrite historical reports.
type InvoiceItem struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	InvoiceID uuid.UUID  `gorm:"type:uuid;index;not null"`
	ProductID *uuid.UUID `gorm:"type:uuid;index"`
	Name      string     `gorm:"not null"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Cost      decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	Quantity  int             `gorm:"not null"`
	Discount  decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	LineTotal decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	IsRefund  bool            `gorm:"not null;default:false"`
	// IsMiscellaneous marks ad-hoc lines typed at the register with no
	// catalog product behind them (ProductID is nil).
	IsMiscellaneous bool `gorm:"not null;default:false"`
}

// InvoicePayment records one tender against an invoice.
// Method: "cash" | "card" | "transfer"
type InvoicePayment struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	InvoiceID uuid.UUID       `gorm:"type:uuid;index;not null"`
	Method    string          `gorm:"type:varchar(20);not null"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CreatedAt time.Time
}
