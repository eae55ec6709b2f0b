package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mzlad1/BenchPOS-sub001/internal/dto"
	"github.com/mzlad1/BenchPOS-sub001/internal/model"
	"github.com/mzlad1/BenchPOS-sub001/internal/repository"
	syncpkg "github.com/mzlad1/BenchPOS-sub001/internal/sync"
)

type CustomerService interface {
	Create(ctx context.Context, userID uuid.UUID, req dto.CreateCustomerRequest) (*dto.CustomerResponse, error)
	GetByID(ctx context.Context, id uuid.UUID) (*dto.CustomerResponse, error)
	List(ctx context.Context, includeInactive bool) ([]dto.CustomerResponse, error)
	Update(ctx context.Context, userID uuid.UUID, id uuid.UUID, req dto.UpdateCustomerRequest) (*dto.CustomerResponse, error)
	Deactivate(ctx context.Context, userID uuid.UUID, id uuid.UUID) error
}

type customerService struct {
	repo     repository.CustomerRepository
	changes  repository.ChangeLogRepository
	activity ActivityService
}

func NewCustomerService(repo repository.CustomerRepository, changes repository.ChangeLogRepository, activity ActivityService) CustomerService {
	return &customerService{repo: repo, changes: changes, activity: activity}
}

func (s *customerService) Create(ctx context.Context, userID uuid.UUID, req dto.CreateCustomerRequest) (*dto.CustomerResponse, error) {
	c := &model.Customer{
		ID:       uuid.New(),
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Address:  req.Address,
		Active:   true,
		Revision: 1,
	}

	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if err := s.repo.Create(ctx, tx, c); err != nil {
			return err
		}
		payload, err := syncpkg.EncodeCustomer(c)
		if err != nil {
			return err
		}
		return writeOutboxTx(tx, s.changes, model.CollectionCustomers, c.ID, model.ChangeOpUpsert, payload, c.Revision)
	})
	if txErr != nil {
		return nil, txErr
	}

	s.activity.Record(ctx, &userID, "customer_created", c.Name, &c.ID)
	resp := customerToResponse(c)
	return &resp, nil
}

func (s *customerService) GetByID(ctx context.Context, id uuid.UUID) (*dto.CustomerResponse, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := customerToResponse(c)
	return &resp, nil
}

func (s *customerService) List(ctx context.Context, includeInactive bool) ([]dto.CustomerResponse, error) {
	customers, err := s.repo.List(ctx, includeInactive)
	if err != nil {
		return nil, err
	}
	resp := make([]dto.CustomerResponse, len(customers))
	for i := range customers {
		resp[i] = customerToResponse(&customers[i])
	}
	return resp, nil
}

func (s *customerService) Update(ctx context.Context, userID uuid.UUID, id uuid.UUID, req dto.UpdateCustomerRequest) (*dto.CustomerResponse, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("customer not found: %w", err)
	}
	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Email != nil {
		c.Email = req.Email
	}
	if req.Phone != nil {
		c.Phone = req.Phone
	}
	if req.Address != nil {
		c.Address = req.Address
	}
	c.Revision++

	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if err := s.repo.Update(ctx, tx, c); err != nil {
			return err
		}
		payload, err := syncpkg.EncodeCustomer(c)
		if err != nil {
			return err
		}
		return writeOutboxTx(tx, s.changes, model.CollectionCustomers, c.ID, model.ChangeOpUpsert, payload, c.Revision)
	})
	if txErr != nil {
		return nil, txErr
	}

	s.activity.Record(ctx, &userID, "customer_updated", c.Name, &c.ID)
	resp := customerToResponse(c)
	return &resp, nil
}

// Deactivate soft-deletes so historical invoices keep their linkage; the
// deletion replicates as a tombstone.
func (s *customerService) Deactivate(ctx context.Context, userID uuid.UUID, id uuid.UUID) error {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("customer not found: %w", err)
	}
	c.Active = false
	c.Revision++

	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if err := s.repo.SoftDelete(ctx, id); err != nil {
			return err
		}
		payload, err := syncpkg.EncodeCustomer(c)
		if err != nil {
			return err
		}
		return writeOutboxTx(tx, s.changes, model.CollectionCustomers, c.ID, model.ChangeOpDelete, payload, c.Revision)
	})
	if txErr != nil {
		return txErr
	}

	s.activity.Record(ctx, &userID, "customer_deactivated", c.Name, &c.ID)
	return nil
}

func customerToResponse(c *model.Customer) dto.CustomerResponse {
	return dto.CustomerResponse{
		ID:      c.ID.String(),
		Name:    c.Name,
		Email:   c.Email,
		Phone:   c.Phone,
		Address: c.Address,
		Active:  c.Active,
	}
}
