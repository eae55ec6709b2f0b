package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mzlad1/BenchPOS-sub001/internal/dto"
	"github.com/mzlad1/BenchPOS-sub001/internal/model"
	"github.com/mzlad1/BenchPOS-sub001/internal/repository"
)

// ── Stubs ─────────────────────────────────────────────────────────────────────

type stubProductRepo struct {
	products map[uuid.UUID]*model.Product
}

func newStubProductRepo() *stubProductRepo {
	return &stubProductRepo{products: make(map[uuid.UUID]*model.Product)}
}

func (r *stubProductRepo) Create(_ context.Context, _ *gorm.DB, p *model.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.products[p.ID] = p
	return nil
}

func (r *stubProductRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	// Return a detached copy, matching the real repository: callers must
	// not mutate stored rows through the returned pointer.
	cp := *p
	return &cp, nil
}

func (r *stubProductRepo) FindByIDTx(_ *gorm.DB, id uuid.UUID) (*model.Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (r *stubProductRepo) FindBySKU(_ context.Context, sku string) (*model.Product, error) {
	for _, p := range r.products {
		if p.SKU == sku && p.Active {
			return p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubProductRepo) List(_ context.Context, _ dto.ProductFilter) ([]model.Product, int64, error) {
	return nil, 0, nil
}

func (r *stubProductRepo) Update(_ context.Context, _ *gorm.DB, p *model.Product) error {
	r.products[p.ID] = p
	return nil
}

func (r *stubProductRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	if p, ok := r.products[id]; ok {
		p.Active = false
	}
	return nil
}

func (r *stubProductRepo) Reactivate(_ context.Context, id uuid.UUID) error {
	if p, ok := r.products[id]; ok {
		p.Active = true
	}
	return nil
}

func (r *stubProductRepo) ListLowStock(_ context.Context) ([]model.Product, error) {
	var out []model.Product
	for _, p := range r.products {
		if p.Active && p.Stock <= p.MinStock {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *stubProductRepo) UpdateStockTx(_ *gorm.DB, id uuid.UUID, delta int) error {
	p, ok := r.products[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.Stock += delta
	return nil
}

func (r *stubProductRepo) DB() *gorm.DB { return nil }

var _ repository.ProductRepository = (*stubProductRepo)(nil)

type stubInvoiceRepo struct {
	invoices  map[uuid.UUID]*model.Invoice
	clientIdx map[string]*model.Invoice
	numberSeq int
}

func newStubInvoiceRepo() *stubInvoiceRepo {
	return &stubInvoiceRepo{
		invoices:  make(map[uuid.UUID]*model.Invoice),
		clientIdx: make(map[string]*model.Invoice),
	}
}

func (r *stubInvoiceRepo) Create(_ context.Context, _ *gorm.DB, inv *model.Invoice) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	r.invoices[inv.ID] = inv
	if inv.ClientID != nil {
		r.clientIdx[*inv.ClientID] = inv
	}
	return nil
}

func (r *stubInvoiceRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return inv, nil
}

func (r *stubInvoiceRepo) FindByClientID(_ context.Context, clientID string) (*model.Invoice, error) {
	inv, ok := r.clientIdx[clientID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return inv, nil
}

func (r *stubInvoiceRepo) UpdateStatusTx(_ *gorm.DB, id uuid.UUID, status string) error {
	inv, ok := r.invoices[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	inv.Status = status
	return nil
}

func (r *stubInvoiceRepo) Update(_ context.Context, _ *gorm.DB, inv *model.Invoice) error {
	r.invoices[inv.ID] = inv
	return nil
}

func (r *stubInvoiceRepo) ReplaceItemsTx(_ *gorm.DB, invoiceID uuid.UUID, items []model.InvoiceItem) error {
	inv, ok := r.invoices[invoiceID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for i := range items {
		items[i].InvoiceID = invoiceID
	}
	inv.Items = items
	return nil
}

func (r *stubInvoiceRepo) NextNumber(_ context.Context, _ *gorm.DB) (int, error) {
	r.numberSeq++
	return r.numberSeq, nil
}

func (r *stubInvoiceRepo) List(_ context.Context, _ dto.InvoiceFilter) ([]model.Invoice, int64, error) {
	return nil, 0, nil
}

func (r *stubInvoiceRepo) ListBetween(_ context.Context, _, _ string) ([]model.Invoice, error) {
	var out []model.Invoice
	for _, inv := range r.invoices {
		out = append(out, *inv)
	}
	return out, nil
}

func (r *stubInvoiceRepo) DB() *gorm.DB { return nil }

var _ repository.InvoiceRepository = (*stubInvoiceRepo)(nil)

type stubCustomerRepo struct {
	customers map[uuid.UUID]*model.Customer
}

func newStubCustomerRepo() *stubCustomerRepo {
	return &stubCustomerRepo{customers: make(map[uuid.UUID]*model.Customer)}
}

func (r *stubCustomerRepo) Create(_ context.Context, _ *gorm.DB, c *model.Customer) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.customers[c.ID] = c
	return nil
}

func (r *stubCustomerRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Customer, error) {
	c, ok := r.customers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}

func (r *stubCustomerRepo) List(_ context.Context, _ bool) ([]model.Customer, error) { return nil, nil }

func (r *stubCustomerRepo) Update(_ context.Context, _ *gorm.DB, c *model.Customer) error {
	r.customers[c.ID] = c
	return nil
}

func (r *stubCustomerRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	if c, ok := r.customers[id]; ok {
		c.Active = false
	}
	return nil
}

func (r *stubCustomerRepo) DB() *gorm.DB { return nil }

var _ repository.CustomerRepository = (*stubCustomerRepo)(nil)

type stubChangeRepo struct {
	rows []*model.ChangeLog
}

func (r *stubChangeRepo) CreateTx(_ *gorm.DB, c *model.ChangeLog) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.rows = append(r.rows, c)
	return nil
}

func (r *stubChangeRepo) ListPending(_ context.Context, collection string, limit int) ([]model.ChangeLog, error) {
	var out []model.ChangeLog
	for _, c := range r.rows {
		if c.Collection == collection && c.Status == model.ChangePending && len(out) < limit {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *stubChangeRepo) ListDueRetries(_ context.Context, _ time.Time, _ int) ([]model.ChangeLog, error) {
	return nil, nil
}

func (r *stubChangeRepo) CountByStatus(_ context.Context, status string) (map[string]int, error) {
	counts := make(map[string]int)
	for _, c := range r.rows {
		if c.Status == status {
			counts[c.Collection]++
		}
	}
	return counts, nil
}

func (r *stubChangeRepo) FindPendingByRecord(_ context.Context, collection string, recordID uuid.UUID) (*model.ChangeLog, error) {
	for _, c := range r.rows {
		if c.Collection == collection && c.RecordID == recordID && c.Status == model.ChangePending {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubChangeRepo) Update(_ context.Context, _ *model.ChangeLog) error { return nil }

func (r *stubChangeRepo) MarkStatus(_ context.Context, id uuid.UUID, status string) error {
	for _, c := range r.rows {
		if c.ID == id {
			c.Status = status
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *stubChangeRepo) RequeueInflight(_ context.Context) (int64, error) {
	var n int64
	for _, c := range r.rows {
		if c.Status == model.ChangeInflight {
			c.Status = model.ChangePending
			n++
		}
	}
	return n, nil
}

func (r *stubChangeRepo) DB() *gorm.DB { return nil }

// forCollection returns the outbox rows captured for one collection.
func (r *stubChangeRepo) forCollection(collection string) []*model.ChangeLog {
	var out []*model.ChangeLog
	for _, c := range r.rows {
		if c.Collection == collection {
			out = append(out, c)
		}
	}
	return out
}

var _ repository.ChangeLogRepository = (*stubChangeRepo)(nil)

type stubMovementRepo struct {
	movements []model.StockMovement
}

func (r *stubMovementRepo) CreateTx(_ *gorm.DB, m *model.StockMovement) error {
	r.movements = append(r.movements, *m)
	return nil
}

func (r *stubMovementRepo) ListByProduct(_ context.Context, productID uuid.UUID, _ int) ([]model.StockMovement, error) {
	var out []model.StockMovement
	for _, m := range r.movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *stubMovementRepo) List(_ context.Context, _ int) ([]model.StockMovement, error) {
	return r.movements, nil
}

var _ repository.StockMovementRepository = (*stubMovementRepo)(nil)

// stubActivity captures audit entries for assertion.
type stubActivity struct {
	actions []string
}

func (s *stubActivity) Record(_ context.Context, _ *uuid.UUID, action, _ string, _ *uuid.UUID) {
	s.actions = append(s.actions, action)
}

func (s *stubActivity) List(_ context.Context, _ dto.ActivityFilter) (*dto.ActivityListResponse, error) {
	return &dto.ActivityListResponse{}, nil
}

var _ ActivityService = (*stubActivity)(nil)

// stubSettings serves a fixed settings map.
type stubSettings struct {
	values map[string]string
}

func (s *stubSettings) GetAll(_ context.Context) (map[string]string, error) {
	return s.values, nil
}

func (s *stubSettings) Update(_ context.Context, settings map[string]string) (map[string]string, error) {
	for k, v := range settings {
		s.values[k] = v
	}
	return s.values, nil
}

var _ SettingsService = (*stubSettings)(nil)

// ── Fixture ───────────────────────────────────────────────────────────────────

type invoiceFixture struct {
	svc       InvoiceService
	invoices  *stubInvoiceRepo
	products  *stubProductRepo
	customers *stubCustomerRepo
	changes   *stubChangeRepo
	movements *stubMovementRepo
	activity  *stubActivity
}

func buildInvoiceSvc(taxRatePct string) *invoiceFixture {
	f := &invoiceFixture{
		invoices:  newStubInvoiceRepo(),
		products:  newStubProductRepo(),
		customers: newStubCustomerRepo(),
		changes:   &stubChangeRepo{},
		movements: &stubMovementRepo{},
		activity:  &stubActivity{},
	}
	inventory := NewInventoryService(f.products, f.movements, f.changes, f.activity)
	settings := &stubSettings{values: map[string]string{SettingTaxRatePct: taxRatePct}}
	f.svc = NewInvoiceService(f.invoices, f.products, f.customers, f.changes, inventory, f.activity, settings, nil, "0")
	return f
}

func seedProduct(f *invoiceFixture, name string, price float64, stock int) *model.Product {
	p := &model.Product{
		ID:       uuid.New(),
		SKU:      uuid.NewString()[:13],
		Name:     name,
		Price:    decimal.NewFromFloat(price),
		Cost:     decimal.NewFromFloat(price / 2),
		Stock:    stock,
		MinStock: 2,
		Active:   true,
		Revision: 1,
	}
	f.products.products[p.ID] = p
	return p
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestCreateInvoice_DecimalTotals(t *testing.T) {
	f := buildInvoiceSvc("10")
	p := seedProduct(f, "Espresso Blend 250g", 12.50, 20)

	resp, err := f.svc.Create(context.Background(), uuid.New(), dto.CreateInvoiceRequest{
		Items: []dto.InvoiceItemRequest{
			{ProductID: p.ID.String(), Quantity: 3, Discount: decimal.NewFromFloat(2.50)},
		},
		Payments: []dto.PaymentRequest{
			{Method: model.PaymentCash, Amount: decimal.NewFromInt(40)},
		},
	})
	require.NoError(t, err)

	// subtotal 37.50, discount 2.50, net 35.00, tax 10% = 3.50, total 38.50
	assert.Equal(t, "37.50", resp.Subtotal.StringFixed(2))
	assert.Equal(t, "3.50", resp.Tax.StringFixed(2))
	assert.Equal(t, "38.50", resp.Total.StringFixed(2))
	assert.Equal(t, "1.50", resp.Change.StringFixed(2))
	assert.Equal(t, 1, resp.Number)
	assert.Equal(t, model.InvoiceCompleted, resp.Status)

	// Stock moved and the movement was recorded at sale price/time.
	assert.Equal(t, 17, f.products.products[p.ID].Stock)
	require.Len(t, f.movements.movements, 1)
	assert.Equal(t, model.MovementSale, f.movements.movements[0].Type)
	assert.Equal(t, -3, f.movements.movements[0].Quantity)

	// One outbox row captured inside the sale transaction.
	rows := f.changes.forCollection(model.CollectionInvoices)
	require.Len(t, rows, 1)
	assert.Equal(t, model.ChangePending, rows[0].Status)
	assert.Equal(t, model.ChangeOpUpsert, rows[0].Op)
	assert.Equal(t, int64(1), rows[0].Revision)

	assert.Contains(t, f.activity.actions, "sale")
}

func TestCreateInvoice_InsufficientPayment(t *testing.T) {
	f := buildInvoiceSvc("0")
	p := seedProduct(f, "Olive Oil 1L", 30, 5)

	_, err := f.svc.Create(context.Background(), uuid.New(), dto.CreateInvoiceRequest{
		Items:    []dto.InvoiceItemRequest{{ProductID: p.ID.String(), Quantity: 2}},
		Payments: []dto.PaymentRequest{{Method: model.PaymentCash, Amount: decimal.NewFromInt(50)}},
	})
	assert.ErrorIs(t, err, ErrInsufficientPayment)

	// Nothing persisted, nothing moved.
	assert.Empty(t, f.invoices.invoices)
	assert.Equal(t, 5, f.products.products[p.ID].Stock)
	assert.Empty(t, f.changes.rows)
}

func TestCreateInvoice_ClientIDIdempotent(t *testing.T) {
	f := buildInvoiceSvc("0")
	p := seedProduct(f, "Sparkling Water", 2, 50)
	clientID := uuid.NewString()

	req := dto.CreateInvoiceRequest{
		Items:    []dto.InvoiceItemRequest{{ProductID: p.ID.String(), Quantity: 1}},
		Payments: []dto.PaymentRequest{{Method: model.PaymentCash, Amount: decimal.NewFromInt(2)}},
		ClientID: &clientID,
	}

	first, err := f.svc.Create(context.Background(), uuid.New(), req)
	require.NoError(t, err)

	// The replay returns the stored invoice without a second sale.
	second, err := f.svc.Create(context.Background(), uuid.New(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.invoices.invoices, 1)
	assert.Equal(t, 49, f.products.products[p.ID].Stock)
}

func TestCreateInvoice_MiscLineRequiresName(t *testing.T) {
	f := buildInvoiceSvc("0")

	_, err := f.svc.Create(context.Background(), uuid.New(), dto.CreateInvoiceRequest{
		Items:    []dto.InvoiceItemRequest{{Quantity: 1, Price: decimal.NewFromInt(5)}},
		Payments: []dto.PaymentRequest{{Method: model.PaymentCash, Amount: decimal.NewFromInt(5)}},
	})
	assert.ErrorContains(t, err, "name")
}

func TestCreateInvoice_MiscLineSells(t *testing.T) {
	f := buildInvoiceSvc("0")

	resp, err := f.svc.Create(context.Background(), uuid.New(), dto.CreateInvoiceRequest{
		Items: []dto.InvoiceItemRequest{
			{Name: "Gift wrap", Price: decimal.NewFromFloat(1.25), Quantity: 2},
		},
		Payments: []dto.PaymentRequest{{Method: model.PaymentCard, Amount: decimal.NewFromFloat(2.50)}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.True(t, resp.Items[0].IsMiscellaneous)
	assert.Nil(t, resp.Items[0].ProductID)
	// No catalog product, no stock movement.
	assert.Empty(t, f.movements.movements)
}

func TestCreateInvoice_LowStockFlagsNotBlocks(t *testing.T) {
	f := buildInvoiceSvc("0")
	p := seedProduct(f, "Vintage Red 750ml", 18, 2)

	resp, err := f.svc.Create(context.Background(), uuid.New(), dto.CreateInvoiceRequest{
		Items:    []dto.InvoiceItemRequest{{ProductID: p.ID.String(), Quantity: 5}},
		Payments: []dto.PaymentRequest{{Method: model.PaymentCash, Amount: decimal.NewFromInt(90)}},
	})
	require.NoError(t, err)
	assert.True(t, resp.StockConflict)
	// The sale still decrements; review happens after the fact.
	assert.Equal(t, -3, f.products.products[p.ID].Stock)
}

func TestCreateInvoice_RefundRestoresStock(t *testing.T) {
	f := buildInvoiceSvc("0")
	p := seedProduct(f, "Ceramic Mug", 9, 10)

	resp, err := f.svc.Create(context.Background(), uuid.New(), dto.CreateInvoiceRequest{
		Items:    []dto.InvoiceItemRequest{{ProductID: p.ID.String(), Quantity: 1}},
		Payments: []dto.PaymentRequest{{Method: model.PaymentCash, Amount: decimal.NewFromInt(9)}},
		IsRefund: true,
	})
	require.NoError(t, err)
	assert.True(t, resp.IsRefund)
	assert.Equal(t, 11, f.products.products[p.ID].Stock)
	require.Len(t, f.movements.movements, 1)
	assert.Equal(t, model.MovementRefund, f.movements.movements[0].Type)
}

func TestVoidInvoice_RestoresStock(t *testing.T) {
	f := buildInvoiceSvc("0")
	p := seedProduct(f, "Cast Iron Pan", 45, 10)
	userID := uuid.New()

	resp, err := f.svc.Create(context.Background(), userID, dto.CreateInvoiceRequest{
		Items:    []dto.InvoiceItemRequest{{ProductID: p.ID.String(), Quantity: 3}},
		Payments: []dto.PaymentRequest{{Method: model.PaymentCard, Amount: decimal.NewFromInt(135)}},
	})
	require.NoError(t, err)
	require.Equal(t, 7, f.products.products[p.ID].Stock)

	invoiceID := uuid.MustParse(resp.ID)
	require.NoError(t, f.svc.Void(context.Background(), userID, invoiceID, "wrong item rung up"))

	assert.Equal(t, 10, f.products.products[p.ID].Stock)
	stored, _ := f.invoices.FindByID(context.Background(), invoiceID)
	assert.Equal(t, model.InvoiceVoided, stored.Status)
	assert.Equal(t, int64(2), stored.Revision)

	// Void propagates to other devices through a second outbox row.
	rows := f.changes.forCollection(model.CollectionInvoices)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[1].Revision)

	// Voiding twice is rejected.
	assert.ErrorIs(t, f.svc.Void(context.Background(), userID, invoiceID, "again"), ErrAlreadyVoided)
}

func TestUpdateInvoice_EditAndResave(t *testing.T) {
	f := buildInvoiceSvc("0")
	p := seedProduct(f, "Notebook A5", 4, 10)
	userID := uuid.New()

	resp, err := f.svc.Create(context.Background(), userID, dto.CreateInvoiceRequest{
		Items:    []dto.InvoiceItemRequest{{ProductID: p.ID.String(), Quantity: 2}},
		Payments: []dto.PaymentRequest{{Method: model.PaymentCash, Amount: decimal.NewFromInt(8)}},
	})
	require.NoError(t, err)
	require.Equal(t, 8, f.products.products[p.ID].Stock)

	updated, err := f.svc.Update(context.Background(), userID, uuid.MustParse(resp.ID), dto.UpdateInvoiceRequest{
		Items: []dto.InvoiceItemRequest{{ProductID: p.ID.String(), Quantity: 1}},
	})
	require.NoError(t, err)

	// Old effect reversed (+2), new applied (-1).
	assert.Equal(t, 9, f.products.products[p.ID].Stock)
	assert.Equal(t, "4.00", updated.Total.StringFixed(2))

	stored, _ := f.invoices.FindByID(context.Background(), uuid.MustParse(resp.ID))
	assert.Equal(t, int64(2), stored.Revision)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, 1, stored.Items[0].Quantity)
}

func TestAdjustStock_ForbidsNegativeResult(t *testing.T) {
	f := buildInvoiceSvc("0")
	p := seedProduct(f, "Beeswax Candle", 7, 2)
	inventory := NewInventoryService(f.products, f.movements, f.changes, f.activity)

	_, err := inventory.AdjustStock(context.Background(), uuid.New(), p.ID, dto.AdjustStockRequest{
		Delta:  -5,
		Reason: "breakage",
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 2, f.products.products[p.ID].Stock)
}

func TestAdjustStock_WritesMovementAndOutbox(t *testing.T) {
	f := buildInvoiceSvc("0")
	p := seedProduct(f, "Flour 1kg", 3, 4)
	inventory := NewInventoryService(f.products, f.movements, f.changes, f.activity)

	resp, err := inventory.AdjustStock(context.Background(), uuid.New(), p.ID, dto.AdjustStockRequest{
		Delta:  6,
		Reason: "delivery received",
	})
	require.NoError(t, err)
	assert.Equal(t, 10, resp.Stock)
	assert.Equal(t, int64(2), f.products.products[p.ID].Revision)

	require.Len(t, f.movements.movements, 1)
	assert.Equal(t, model.MovementAdjustment, f.movements.movements[0].Type)
	assert.Equal(t, 4, f.movements.movements[0].StockBefore)
	assert.Equal(t, 10, f.movements.movements[0].StockAfter)

	rows := f.changes.forCollection(model.CollectionProducts)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].Revision)
}
