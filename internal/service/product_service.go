package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/mzlad1/BenchPOS-sub001/internal/dto"
	"github.com/mzlad1/BenchPOS-sub001/internal/model"
	"github.com/mzlad1/BenchPOS-sub001/internal/repository"
	syncpkg "github.com/mzlad1/BenchPOS-sub001/internal/sync"
)

const priceCacheTTL = 5 * time.Minute

var ErrSKUTaken = errors.New("a product with this SKU already exists")

type ProductService interface {
	Create(ctx context.Context, userID uuid.UUID, req dto.CreateProductRequest) (*dto.ProductResponse, error)
	GetByID(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, error)
	GetBySKU(ctx context.Context, sku string) (*dto.ProductResponse, error)
	List(ctx context.Context, filter dto.ProductFilter) (*dto.ProductListResponse, error)
	Update(ctx context.Context, userID uuid.UUID, id uuid.UUID, req dto.UpdateProductRequest) (*dto.ProductResponse, error)
	Deactivate(ctx context.Context, userID uuid.UUID, id uuid.UUID) error
	Reactivate(ctx context.Context, userID uuid.UUID, id uuid.UUID) error
	PriceCheck(ctx context.Context, sku string) (*dto.PriceCheckResponse, error)
	PriceHistory(ctx context.Context, id uuid.UUID) ([]dto.PriceHistoryResponse, error)

	Categories(ctx context.Context) ([]dto.CategoryResponse, error)
	CreateCategory(ctx context.Context, userID uuid.UUID, req dto.CreateCategoryRequest) (*dto.CategoryResponse, error)
	UpdateCategory(ctx context.Context, userID uuid.UUID, id uuid.UUID, req dto.UpdateCategoryRequest) (*dto.CategoryResponse, error)
	DeactivateCategory(ctx context.Context, userID uuid.UUID, id uuid.UUID) error
}

type productService struct {
	repo       repository.ProductRepository
	history    repository.PriceHistoryRepository
	movements  repository.StockMovementRepository
	changes    repository.ChangeLogRepository
	categories repository.CategoryRepository
	activity   ActivityService
	rdb        *redis.Client
}

func NewProductService(
	repo repository.ProductRepository,
	history repository.PriceHistoryRepository,
	movements repository.StockMovementRepository,
	changes repository.ChangeLogRepository,
	categories repository.CategoryRepository,
	activity ActivityService,
	rdb *redis.Client,
) ProductService {
	return &productService{
		repo:       repo,
		history:    history,
		movements:  movements,
		changes:    changes,
		categories: categories,
		activity:   activity,
		rdb:        rdb,
	}
}

func (s *productService) Create(ctx context.Context, userID uuid.UUID, req dto.CreateProductRequest) (*dto.ProductResponse, error) {
	if _, err := s.repo.FindBySKU(ctx, req.SKU); err == nil {
		return nil, ErrSKUTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	p := &model.Product{
		ID:          uuid.New(),
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Cost:        req.Cost,
		Stock:       req.Stock,
		MinStock:    req.MinStock,
		Active:      true,
		Revision:    1,
	}

	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if err := s.repo.Create(ctx, tx, p); err != nil {
			return err
		}
		if p.Stock != 0 {
			mv := &model.StockMovement{
				ProductID:   p.ID,
				Type:        model.MovementAdjustment,
				Quantity:    p.Stock,
				StockBefore: 0,
				StockAfter:  p.Stock,
				Reason:      "initial stock",
			}
			if err := s.movements.CreateTx(tx, mv); err != nil {
				return err
			}
		}
		payload, err := syncpkg.EncodeProduct(p)
		if err != nil {
			return err
		}
		return writeOutboxTx(tx, s.changes, model.CollectionProducts, p.ID, model.ChangeOpUpsert, payload, p.Revision)
	})
	if txErr != nil {
		return nil, txErr
	}

	s.activity.Record(ctx, &userID, "product_created", p.SKU, &p.ID)
	resp := productToResponse(p)
	return &resp, nil
}

func (s *productService) GetByID(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := productToResponse(p)
	return &resp, nil
}

func (s *productService) GetBySKU(ctx context.Context, sku string) (*dto.ProductResponse, error) {
	p, err := s.repo.FindBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	resp := productToResponse(p)
	return &resp, nil
}

func (s *productService) List(ctx context.Context, filter dto.ProductFilter) (*dto.ProductListResponse, error) {
	products, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	resp := &dto.ProductListResponse{
		Data:  make([]dto.ProductResponse, len(products)),
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}
	for i := range products {
		resp.Data[i] = productToResponse(&products[i])
	}
	if filter.Limit > 0 {
		resp.TotalPages = int((total + int64(filter.Limit) - 1) / int64(filter.Limit))
	}
	return resp, nil
}

func (s *productService) Update(ctx context.Context, userID uuid.UUID, id uuid.UUID, req dto.UpdateProductRequest) (*dto.ProductResponse, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("product not found: %w", err)
	}

	oldPrice, oldCost := p.Price, p.Cost
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = req.Description
	}
	if req.Category != nil {
		p.Category = *req.Category
	}
	if req.Price != nil {
		p.Price = *req.Price
	}
	if req.Cost != nil {
		p.Cost = *req.Cost
	}
	if req.MinStock != nil {
		p.MinStock = *req.MinStock
	}
	p.Revision++

	priceChanged := !p.Price.Equal(oldPrice) || !p.Cost.Equal(oldCost)

	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if err := s.repo.Update(ctx, tx, p); err != nil {
			return err
		}
		if priceChanged {
			h := &model.PriceHistory{
				ProductID: p.ID,
				OldPrice:  oldPrice,
				NewPrice:  p.Price,
				OldCost:   oldCost,
				NewCost:   p.Cost,
				ChangedBy: &userID,
			}
			if err := s.history.CreateTx(tx, h); err != nil {
				return err
			}
		}
		payload, err := syncpkg.EncodeProduct(p)
		if err != nil {
			return err
		}
		return writeOutboxTx(tx, s.changes, model.CollectionProducts, p.ID, model.ChangeOpUpsert, payload, p.Revision)
	})
	if txErr != nil {
		return nil, txErr
	}

	s.invalidatePriceCache(ctx, p.SKU)
	s.activity.Record(ctx, &userID, "product_updated", p.SKU, &p.ID)
	resp := productToResponse(p)
	return &resp, nil
}

// Deactivate soft-deletes: invoices keep their product linkage and the sync
// pipeline replicates the deletion as a tombstone.
func (s *productService) Deactivate(ctx context.Context, userID uuid.UUID, id uuid.UUID) error {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("product not found: %w", err)
	}
	p.Active = false
	p.Revision++

	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if err := s.repo.SoftDelete(ctx, id); err != nil {
			return err
		}
		payload, err := syncpkg.EncodeProduct(p)
		if err != nil {
			return err
		}
		return writeOutboxTx(tx, s.changes, model.CollectionProducts, p.ID, model.ChangeOpDelete, payload, p.Revision)
	})
	if txErr != nil {
		return txErr
	}

	s.invalidatePriceCache(ctx, p.SKU)
	s.activity.Record(ctx, &userID, "product_deactivated", p.SKU, &p.ID)
	return nil
}

func (s *productService) Reactivate(ctx context.Context, userID uuid.UUID, id uuid.UUID) error {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("product not found: %w", err)
	}
	p.Active = true
	p.Revision++

	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if err := s.repo.Reactivate(ctx, id); err != nil {
			return err
		}
		payload, err := syncpkg.EncodeProduct(p)
		if err != nil {
			return err
		}
		return writeOutboxTx(tx, s.changes, model.CollectionProducts, p.ID, model.ChangeOpUpsert, payload, p.Revision)
	})
	if txErr != nil {
		return txErr
	}

	s.activity.Record(ctx, &userID, "product_reactivated", p.SKU, &p.ID)
	return nil
}

// PriceCheck backs the public kiosk endpoint. Answers are cached in Redis
// for priceCacheTTL; mutations invalidate the key.
func (s *productService) PriceCheck(ctx context.Context, sku string) (*dto.PriceCheckResponse, error) {
	key := "price:" + sku
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, key).Result(); err == nil {
			var resp dto.PriceCheckResponse
			if json.Unmarshal([]byte(cached), &resp) == nil {
				return &resp, nil
			}
		}
	}

	p, err := s.repo.FindBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, gorm.ErrRecordNotFound
	}

	resp := &dto.PriceCheckResponse{SKU: p.SKU, Name: p.Name, Price: p.Price}
	if s.rdb != nil {
		if data, err := json.Marshal(resp); err == nil {
			s.rdb.Set(ctx, key, data, priceCacheTTL)
		}
	}
	return resp, nil
}

func (s *productService) PriceHistory(ctx context.Context, id uuid.UUID) ([]dto.PriceHistoryResponse, error) {
	rows, err := s.history.ListByProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := make([]dto.PriceHistoryResponse, len(rows))
	for i, h := range rows {
		resp[i] = dto.PriceHistoryResponse{
			OldPrice:  h.OldPrice,
			NewPrice:  h.NewPrice,
			OldCost:   h.OldCost,
			NewCost:   h.NewCost,
			ChangedAt: h.CreatedAt.Format(time.RFC3339),
		}
	}
	return resp, nil
}

func (s *productService) Categories(ctx context.Context) ([]dto.CategoryResponse, error) {
	rows, err := s.categories.List(ctx)
	if err != nil {
		return nil, err
	}
	resp := make([]dto.CategoryResponse, len(rows))
	for i, c := range rows {
		resp[i] = dto.CategoryResponse{ID: c.ID.String(), Name: c.Name, Active: c.Active}
	}
	return resp, nil
}

func (s *productService) CreateCategory(ctx context.Context, userID uuid.UUID, req dto.CreateCategoryRequest) (*dto.CategoryResponse, error) {
	c := &model.Category{ID: uuid.New(), Name: req.Name, Active: true}
	if err := s.categories.Create(ctx, c); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, &userID, "category_created", c.Name, &c.ID)
	return &dto.CategoryResponse{ID: c.ID.String(), Name: c.Name, Active: c.Active}, nil
}

func (s *productService) UpdateCategory(ctx context.Context, userID uuid.UUID, id uuid.UUID, req dto.UpdateCategoryRequest) (*dto.CategoryResponse, error) {
	c, err := s.categories.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("category not found: %w", err)
	}
	if req.Name != nil {
		c.Name = *req.Name
	}
	if err := s.categories.Update(ctx, c); err != nil {
		return nil, err
	}
	s.activity.Record(ctx, &userID, "category_updated", c.Name, &c.ID)
	return &dto.CategoryResponse{ID: c.ID.String(), Name: c.Name, Active: c.Active}, nil
}

// DeactivateCategory hides the category from pickers. Products keep their
// category string; nothing cascades.
func (s *productService) DeactivateCategory(ctx context.Context, userID uuid.UUID, id uuid.UUID) error {
	if err := s.categories.Deactivate(ctx, id); err != nil {
		return err
	}
	s.activity.Record(ctx, &userID, "category_deactivated", id.String(), &id)
	return nil
}

func (s *productService) invalidatePriceCache(ctx context.Context, sku string) {
	if s.rdb != nil {
		s.rdb.Del(ctx, "price:"+sku)
	}
}

func productToResponse(p *model.Product) dto.ProductResponse {
	return dto.ProductResponse{
		ID:          p.ID.String(),
		SKU:         p.SKU,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Price:       p.Price,
		Cost:        p.Cost,
		Stock:       p.Stock,
		MinStock:    p.MinStock,
		Active:      p.Active,
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}
