package model

import (
	"time"

	"github.com/google/uuid"
)

// Receipt statuses.
const (
	ReceiptPending  = "pending"
	ReceiptRendered = "rendered"
	ReceiptError    = "error"
)

// Receipt tracks the rendered PDF for an invoice.
type Receipt struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	InvoiceID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	Status    string    `gorm:"type:varchar(20);not null;default:'pending'"`
	// PDFPath is relative to PDF_STORAGE_PATH env var
	PDFPath *string `gorm:"column:pdf_path"`
	// EmailTo, when set, makes the worker mail the PDF after rendering.
	EmailTo *string
	// Retry bookkeeping for failed renders.
	RetryCount  int        `gorm:"not null;default:0"`
	NextRetryAt *time.Time `gorm:"column:next_retry_at"`
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ActivityLog is an immutable audit entry. Entries are NEVER modified or
// deleted; the admin listing is append-only history.
type ActivityLog struct {
	ID     uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID *uuid.UUID `gorm:"type:uuid;index"`
	Action string     `gorm:"type:varchar(40);index;not null"` // "login" | "logout" | "sale" | "void" | "product_update" | ...
	Detail string     `gorm:"not null"`
	// ReferenceID links to the affected record when applicable
	ReferenceID *uuid.UUID `gorm:"type:uuid"`
	CreatedAt   time.Time
}

// TableName overrides GORM's default pluralization.
func (ActivityLog) TableName() string { return "activity_log" }

// Setting is one company configuration key (currency, language, receipt
// footer…). Replaces the renderer's scattered localStorage keys.
type Setting struct {
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}
