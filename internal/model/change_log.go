package model

import (
	"time"

	"github.com/google/uuid"
)

// Sync collections. Only these three are reconciled with the remote store;
// movements, receipts and activity rows are device-local derivations.
const (
	CollectionProducts  = "products"
	CollectionInvoices  = "invoices"
	CollectionCustomers = "customers"
)

// Outbox operations.
const (
	ChangeOpUpsert = "upsert"
	ChangeOpDelete = "delete"
)

// Outbox row lifecycle.
const (
	ChangePending  = "pending"
	ChangeInflight = "inflight"
	ChangeSynced   = "synced"
	ChangeConflict = "conflict"
	ChangeFailed   = "failed"
)

// ChangeLog is the outbox: one row per local mutation awaiting upload.
// Written in the same transaction as the mutation it describes, so a record
// can never exist locally without its pending change (and vice versa).
type ChangeLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Collection string         `gorm:"type:varchar(20);index:idx_changes_pending;not null"`
	RecordID   uuid.UUID      `gorm:"type:uuid;index;not null"`
	Op         string         `gorm:"type:varchar(10);not null"` // "upsert" | "delete"
	Payload    string         `gorm:"type:jsonb;not null"`
	// Revision of the record when the change was captured. The remote copy
	// advancing past this marks a conflict.
	Revision int64  `gorm:"not null"`
	Status   string `gorm:"type:varchar(10);index:idx_changes_pending;not null;default:'pending'"`
	// Retry bookkeeping for transient push failures.
	Attempts      int        `gorm:"not null;default:0"`
	NextAttemptAt *time.Time `gorm:"column:next_attempt_at"`
	LastError     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName overrides GORM's default pluralization.
func (ChangeLog) TableName() string { return "change_log" }

// SyncState is a single-row table holding per-device sync cursors.
type SyncState struct {
	ID uint `gorm:"primaryKey"`
	// DeviceID identifies this installation in remote documents.
	DeviceID     string `gorm:"not null"`
	LastSyncTime *time.Time
	// LastPulledAt is the remote updated_at high-water mark per pull.
	LastPulledAt *time.Time
	UpdatedAt    time.Time
}

// TableName keeps the singular name; the table only ever has one row.
func (SyncState) TableName() string { return "sync_state" }
