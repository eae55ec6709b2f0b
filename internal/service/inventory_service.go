package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mzlad1/BenchPOS-sub001/internal/dto"
	"github.com/mzlad1/BenchPOS-sub001/internal/model"
	"github.com/mzlad1/BenchPOS-sub001/internal/repository"
	syncpkg "github.com/mzlad1/BenchPOS-sub001/internal/sync"
)

var ErrInsufficientStock = errors.New("insufficient stock")

type InventoryService interface {
	// AdjustStock applies a manual delta with an audit reason. Negative
	// deltas may not take stock below zero.
	AdjustStock(ctx context.Context, userID uuid.UUID, productID uuid.UUID, req dto.AdjustStockRequest) (*dto.ProductResponse, error)
	// DeductStockTx and RecordMovementTx run inside the caller's sale
	// transaction.
	DeductStockTx(tx *gorm.DB, productID uuid.UUID, qty int) error
	RecordMovementTx(tx *gorm.DB, mv *model.StockMovement) error
	Movements(ctx context.Context, productID uuid.UUID, limit int) ([]dto.StockMovementResponse, error)
	LowStockAlerts(ctx context.Context) ([]dto.LowStockAlert, error)
}

type inventoryService struct {
	products  repository.ProductRepository
	movements repository.StockMovementRepository
	changes   repository.ChangeLogRepository
	activity  ActivityService
}

func NewInventoryService(
	products repository.ProductRepository,
	movements repository.StockMovementRepository,
	changes repository.ChangeLogRepository,
	activity ActivityService,
) InventoryService {
	return &inventoryService{
		products:  products,
		movements: movements,
		changes:   changes,
		activity:  activity,
	}
}

func (s *inventoryService) AdjustStock(ctx context.Context, userID uuid.UUID, productID uuid.UUID, req dto.AdjustStockRequest) (*dto.ProductResponse, error) {
	p, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("product not found: %w", err)
	}
	if p.Stock+req.Delta < 0 {
		return nil, ErrInsufficientStock
	}

	txErr := runTx(ctx, s.products.DB(), func(tx *gorm.DB) error {
		if err := s.products.UpdateStockTx(tx, productID, req.Delta); err != nil {
			return err
		}
		mv := &model.StockMovement{
			ProductID:   productID,
			Type:        model.MovementAdjustment,
			Quantity:    req.Delta,
			StockBefore: p.Stock,
			StockAfter:  p.Stock + req.Delta,
			Reason:      req.Reason,
		}
		if err := s.movements.CreateTx(tx, mv); err != nil {
			return err
		}

		// Replicate the catalog row so other devices see the new level as a
		// baseline; deltas still reconcile concurrent movements.
		p.Stock += req.Delta
		p.Revision++
		payload, err := syncpkg.EncodeProduct(p)
		if err != nil {
			return err
		}
		return writeOutboxTx(tx, s.changes, model.CollectionProducts, p.ID, model.ChangeOpUpsert, payload, p.Revision)
	})
	if txErr != nil {
		return nil, txErr
	}

	s.activity.Record(ctx, &userID, "stock_adjusted",
		fmt.Sprintf("%s %+d (%s)", p.SKU, req.Delta, req.Reason), &p.ID)
	resp := productToResponse(p)
	return &resp, nil
}

// DeductStockTx decrements stock inside a sale transaction. The conditional
// update in the repository guards against concurrent oversell.
func (s *inventoryService) DeductStockTx(tx *gorm.DB, productID uuid.UUID, qty int) error {
	return s.products.UpdateStockTx(tx, productID, -qty)
}

func (s *inventoryService) RecordMovementTx(tx *gorm.DB, mv *model.StockMovement) error {
	return s.movements.CreateTx(tx, mv)
}

func (s *inventoryService) Movements(ctx context.Context, productID uuid.UUID, limit int) ([]dto.StockMovementResponse, error) {
	var rows []model.StockMovement
	var err error
	if productID == uuid.Nil {
		rows, err = s.movements.List(ctx, limit)
	} else {
		rows, err = s.movements.ListByProduct(ctx, productID, limit)
	}
	if err != nil {
		return nil, err
	}
	resp := make([]dto.StockMovementResponse, len(rows))
	for i, m := range rows {
		resp[i] = dto.StockMovementResponse{
			ProductID:   m.ProductID.String(),
			Type:        m.Type,
			Quantity:    m.Quantity,
			StockBefore: m.StockBefore,
			StockAfter:  m.StockAfter,
			Reason:      m.Reason,
			CreatedAt:   m.CreatedAt.Format(time.RFC3339),
		}
	}
	return resp, nil
}

func (s *inventoryService) LowStockAlerts(ctx context.Context) ([]dto.LowStockAlert, error) {
	products, err := s.products.ListLowStock(ctx)
	if err != nil {
		return nil, err
	}
	alerts := make([]dto.LowStockAlert, len(products))
	for i, p := range products {
		alerts[i] = dto.LowStockAlert{
			ProductID: p.ID.String(),
			SKU:       p.SKU,
			Name:      p.Name,
			Stock:     p.Stock,
			MinStock:  p.MinStock,
		}
	}
	return alerts, nil
}
