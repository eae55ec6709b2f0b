package repository

import (
	"context"
	"time"

	"github.com/mzlad1/BenchPOS-sub001/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChangeLogRepository is the outbox store. Rows are written inside the same
// transaction as the mutation they capture (callers pass the tx).
type ChangeLogRepository interface {
	CreateTx(tx *gorm.DB, c *model.ChangeLog) error
	// ListPending returns pending rows for one collection in capture order.
	ListPending(ctx context.Context, collection string, limit int) ([]model.ChangeLog, error)
	// ListDueRetries returns pending rows whose next_attempt_at has passed.
	ListDueRetries(ctx context.Context, now time.Time, limit int) ([]model.ChangeLog, error)
	// CountByStatus returns per-collection counts for one status.
	CountByStatus(ctx context.Context, status string) (map[string]int, error)
	FindPendingByRecord(ctx context.Context, collection string, recordID uuid.UUID) (*model.ChangeLog, error)
	Update(ctx context.Context, c *model.ChangeLog) error
	MarkStatus(ctx context.Context, id uuid.UUID, status string) error
	// RequeueInflight flips rows stranded in-flight back to pending. A crash
	// between marking a row in-flight and recording its outcome would
	// otherwise leave it invisible to both the push and the retry paths.
	RequeueInflight(ctx context.Context) (int64, error)
	DB() *gorm.DB
}

type changeLogRepo struct{ db *gorm.DB }

func NewChangeLogRepository(db *gorm.DB) ChangeLogRepository { return &changeLogRepo{db: db} }

func (r *changeLogRepo) DB() *gorm.DB { return r.db }

func (r *changeLogRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *changeLogRepo) CreateTx(tx *gorm.DB, c *model.ChangeLog) error {
	return r.conn(tx).Create(c).Error
}

func (r *changeLogRepo) ListPending(ctx context.Context, collection string, limit int) ([]model.ChangeLog, error) {
	var changes []model.ChangeLog
	err := r.db.WithContext(ctx).
		Where("collection = ? AND status = ?", collection, model.ChangePending).
		Order("created_at ASC").
		Limit(limit).
		Find(&changes).Error
	return changes, err
}

func (r *changeLogRepo) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]model.ChangeLog, error) {
	var changes []model.ChangeLog
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at IS NOT NULL AND next_attempt_at <= ?", model.ChangePending, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&changes).Error
	return changes, err
}

func (r *changeLogRepo) CountByStatus(ctx context.Context, status string) (map[string]int, error) {
	type row struct {
		Collection string
		N          int
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&model.ChangeLog{}).
		Select("collection, COUNT(*) AS n").
		Where("status = ?", status).
		Group("collection").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Collection] = r.N
	}
	return counts, nil
}

func (r *changeLogRepo) FindPendingByRecord(ctx context.Context, collection string, recordID uuid.UUID) (*model.ChangeLog, error) {
	var c model.ChangeLog
	err := r.db.WithContext(ctx).
		Where("collection = ? AND record_id = ? AND status = ?", collection, recordID, model.ChangePending).
		Order("created_at DESC").
		First(&c).Error
	return &c, err
}

func (r *changeLogRepo) Update(ctx context.Context, c *model.ChangeLog) error {
	return r.db.WithContext(ctx).Save(c).Error
}

func (r *changeLogRepo) MarkStatus(ctx context.Context, id uuid.UUID, status string) error {
	return r.db.WithContext(ctx).Model(&model.ChangeLog{}).Where("id = ?", id).Update("status", status).Error
}

func (r *changeLogRepo) RequeueInflight(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.ChangeLog{}).
		Where("status = ?", model.ChangeInflight).
		Update("status", model.ChangePending)
	return res.RowsAffected, res.Error
}

// ─── SyncState ────────────────────────────────────────────────────────────────

// SyncStateRepository persists the single-row sync cursor table.
type SyncStateRepository interface {
	Get(ctx context.Context) (*model.SyncState, error)
	Save(ctx context.Context, s *model.SyncState) error
}

type syncStateRepo struct{ db *gorm.DB }

func NewSyncStateRepository(db *gorm.DB) SyncStateRepository { return &syncStateRepo{db: db} }

func (r *syncStateRepo) Get(ctx context.Context) (*model.SyncState, error) {
	var s model.SyncState
	err := r.db.WithContext(ctx).First(&s).Error
	if err == gorm.ErrRecordNotFound {
		return &model.SyncState{ID: 1}, nil
	}
	return &s, err
}

func (r *syncStateRepo) Save(ctx context.Context, s *model.SyncState) error {
	s.ID = 1
	return r.db.WithContext(ctx).Save(s).Error
}
