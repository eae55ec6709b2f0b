package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mzlad1/BenchPOS-sub001/internal/dto"
	"github.com/mzlad1/BenchPOS-sub001/internal/model"
	"github.com/mzlad1/BenchPOS-sub001/internal/repository"
)

// ActivityService records and lists the audit trail. Entries are immutable;
// there is no update or delete path anywhere in the system.
type ActivityService interface {
	// Record is best-effort: audit failures are logged, never propagated,
	// so they cannot roll back the operation they describe.
	Record(ctx context.Context, userID *uuid.UUID, action, detail string, refID *uuid.UUID)
	List(ctx context.Context, filter dto.ActivityFilter) (*dto.ActivityListResponse, error)
}

type activityService struct {
	repo repository.ActivityRepository
}

func NewActivityService(repo repository.ActivityRepository) ActivityService {
	return &activityService{repo: repo}
}

func (s *activityService) Record(ctx context.Context, userID *uuid.UUID, action, detail string, refID *uuid.UUID) {
	entry := &model.ActivityLog{
		UserID:      userID,
		Action:      action,
		Detail:      detail,
		ReferenceID: refID,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		log.Error().Err(err).Str("action", action).Msg("activity: failed to record entry")
	}
}

func (s *activityService) List(ctx context.Context, filter dto.ActivityFilter) (*dto.ActivityListResponse, error) {
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	resp := &dto.ActivityListResponse{
		Data:  make([]dto.ActivityEntry, len(entries)),
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}
	for i, e := range entries {
		var userID *string
		if e.UserID != nil {
			s := e.UserID.String()
			userID = &s
		}
		resp.Data[i] = dto.ActivityEntry{
			ID:        e.ID.String(),
			UserID:    userID,
			Action:    e.Action,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		}
	}
	return resp, nil
}
