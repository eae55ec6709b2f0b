package service

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mzlad1/BenchPOS-sub001/internal/model"
	"github.com/mzlad1/BenchPOS-sub001/internal/repository"
)

// runTx executes fn inside a GORM transaction when db is available,
// or calls fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

// writeOutboxTx appends a change row inside the same transaction as the
// mutation it captures. The record and its pending change commit or roll
// back together, so neither can exist without the other.
func writeOutboxTx(tx *gorm.DB, changes repository.ChangeLogRepository, collection string, recordID uuid.UUID, op, payload string, revision int64) error {
	return changes.CreateTx(tx, &model.ChangeLog{
		Collection: collection,
		RecordID:   recordID,
		Op:         op,
		Payload:    payload,
		Revision:   revision,
		Status:     model.ChangePending,
	})
}
