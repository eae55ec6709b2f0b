package repository

import (
	"context"

	"github.com/mzlad1/BenchPOS-sub001/internal/dto"
	"github.com/mzlad1/BenchPOS-sub001/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InvoiceRepository interface {
	Create(ctx context.Context, tx *gorm.DB, inv *model.Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	FindByClientID(ctx context.Context, clientID string) (*model.Invoice, error)
	UpdateStatusTx(tx *gorm.DB, id uuid.UUID, status string) error
	Update(ctx context.Context, tx *gorm.DB, inv *model.Invoice) error
	ReplaceItemsTx(tx *gorm.DB, invoiceID uuid.UUID, items []model.InvoiceItem) error
	NextNumber(ctx context.Context, tx *gorm.DB) (int, error)
	List(ctx context.Context, filter dto.InvoiceFilter) ([]model.Invoice, int64, error)
	// ListBetween loads completed and voided invoices with items over a
	// closed date range; the report service aggregates in memory.
	ListBetween(ctx context.Context, from, to string) ([]model.Invoice, error)
	DB() *gorm.DB // exposes the DB for transaction creation in service layer
}

type invoiceRepo struct{ db *gorm.DB }

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository { return &invoiceRepo{db: db} }

func (r *invoiceRepo) DB() *gorm.DB { return r.db }

func (r *invoiceRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *invoiceRepo) Create(ctx context.Context, tx *gorm.DB, inv *model.Invoice) error {
	return r.conn(tx).WithContext(ctx).Create(inv).Error
}

func (r *invoiceRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var inv model.Invoice
	err := r.db.WithContext(ctx).Preload("Items").Preload("Payments").First(&inv, id).Error
	return &inv, err
}

func (r *invoiceRepo) FindByClientID(ctx context.Context, clientID string) (*model.Invoice, error) {
	var inv model.Invoice
	err := r.db.WithContext(ctx).Preload("Items").Preload("Payments").
		Where("client_id = ?", clientID).First(&inv).Error
	return &inv, err
}

func (r *invoiceRepo) UpdateStatusTx(tx *gorm.DB, id uuid.UUID, status string) error {
	return r.conn(tx).Model(&model.Invoice{}).Where("id = ?", id).Update("status", status).Error
}

func (r *invoiceRepo) Update(ctx context.Context, tx *gorm.DB, inv *model.Invoice) error {
	return r.conn(tx).WithContext(ctx).Save(inv).Error
}

func (r *invoiceRepo) ReplaceItemsTx(tx *gorm.DB, invoiceID uuid.UUID, items []model.InvoiceItem) error {
	if err := r.conn(tx).Where("invoice_id = ?", invoiceID).Delete(&model.InvoiceItem{}).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].InvoiceID = invoiceID
	}
	return r.conn(tx).Create(&items).Error
}

func (r *invoiceRepo) NextNumber(ctx context.Context, tx *gorm.DB) (int, error) {
	// Uses a PostgreSQL sequence for atomic invoice number generation
	var num int
	err := r.conn(tx).WithContext(ctx).Raw("SELECT nextval('invoices_number_seq')").Scan(&num).Error
	return num, err
}

func (r *invoiceRepo) List(ctx context.Context, filter dto.InvoiceFilter) ([]model.Invoice, int64, error) {
	var invoices []model.Invoice
	var total int64
	offset := (filter.Page - 1) * filter.Limit

	q := r.db.WithContext(ctx).Model(&model.Invoice{})

	if filter.Status != "" && filter.Status != "all" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Date != "" {
		q = q.Where("DATE(created_at) = ?", filter.Date)
	} else {
		// Default: today
		q = q.Where("DATE(created_at) = CURRENT_DATE")
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Preload("Items").Preload("Payments").
		Order("created_at DESC").
		Offset(offset).Limit(filter.Limit).
		Find(&invoices).Error

	return invoices, total, err
}

func (r *invoiceRepo) ListBetween(ctx context.Context, from, to string) ([]model.Invoice, error) {
	var invoices []model.Invoice
	err := r.db.WithContext(ctx).Preload("Items").
		Where("DATE(created_at) BETWEEN ? AND ?", from, to).
		Order("created_at ASC").
		Find(&invoices).Error
	return invoices, err
}
