package service

import (
	"context"

	"github.com/mzlad1/BenchPOS-sub001/internal/repository"
)

// Known setting keys. Unknown keys are accepted and stored as-is so the
// renderer can add company preferences without a schema change.
const (
	SettingStoreName     = "store_name"
	SettingCurrency      = "currency"
	SettingReceiptFooter = "receipt_footer"
	SettingTaxRatePct    = "tax_rate_pct"
)

type SettingsService interface {
	GetAll(ctx context.Context) (map[string]string, error)
	Update(ctx context.Context, settings map[string]string) (map[string]string, error)
}

type settingsService struct {
	repo     repository.SettingRepository
	activity ActivityService
}

func NewSettingsService(repo repository.SettingRepository, activity ActivityService) SettingsService {
	return &settingsService{repo: repo, activity: activity}
}

func (s *settingsService) GetAll(ctx context.Context) (map[string]string, error) {
	return s.repo.GetAll(ctx)
}

func (s *settingsService) Update(ctx context.Context, settings map[string]string) (map[string]string, error) {
	for key, value := range settings {
		if err := s.repo.Upsert(ctx, key, value); err != nil {
			return nil, err
		}
		s.activity.Record(ctx, nil, "setting_changed", key+"="+value, nil)
	}
	return s.repo.GetAll(ctx)
}
