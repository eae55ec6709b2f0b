package repository

import (
	"context"

	"github.com/mzlad1/BenchPOS-sub001/internal/dto"
	"github.com/mzlad1/BenchPOS-sub001/internal/model"

	"gorm.io/gorm"
)

// ActivityRepository is append-only: entries are never updated or deleted.
type ActivityRepository interface {
	Create(ctx context.Context, e *model.ActivityLog) error
	List(ctx context.Context, filter dto.ActivityFilter) ([]model.ActivityLog, int64, error)
}

type activityRepo struct{ db *gorm.DB }

func NewActivityRepository(db *gorm.DB) ActivityRepository { return &activityRepo{db: db} }

func (r *activityRepo) Create(ctx context.Context, e *model.ActivityLog) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *activityRepo) List(ctx context.Context, filter dto.ActivityFilter) ([]model.ActivityLog, int64, error) {
	var entries []model.ActivityLog
	var total int64

	q := r.db.WithContext(ctx).Model(&model.ActivityLog{})
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	err := q.Order("created_at DESC").Offset(offset).Limit(filter.Limit).Find(&entries).Error
	return entries, total, err
}

// ─── Settings ─────────────────────────────────────────────────────────────────

type SettingRepository interface {
	GetAll(ctx context.Context) (map[string]string, error)
	Upsert(ctx context.Context, key, value string) error
}

type settingRepo struct{ db *gorm.DB }

func NewSettingRepository(db *gorm.DB) SettingRepository { return &settingRepo{db: db} }

func (r *settingRepo) GetAll(ctx context.Context) (map[string]string, error) {
	var settings []model.Setting
	if err := r.db.WithContext(ctx).Find(&settings).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(settings))
	for _, s := range settings {
		out[s.Key] = s.Value
	}
	return out, nil
}

func (r *settingRepo) Upsert(ctx context.Context, key, value string) error {
	s := model.Setting{Key: key, Value: value}
	return r.db.WithContext(ctx).Save(&s).Error
}
