package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mzlad1/BenchPOS-sub001/internal/dto"
	"github.com/mzlad1/BenchPOS-sub001/internal/infra"
	"github.com/mzlad1/BenchPOS-sub001/internal/model"
	"github.com/mzlad1/BenchPOS-sub001/internal/remote"
	"github.com/mzlad1/BenchPOS-sub001/internal/repository"
)

// ── Stubs ─────────────────────────────────────────────────────────────────────

type stubChangeRepo struct {
	changes map[uuid.UUID]*model.ChangeLog
}

func newStubChangeRepo() *stubChangeRepo {
	return &stubChangeRepo{changes: make(map[uuid.UUID]*model.ChangeLog)}
}

func (r *stubChangeRepo) add(c *model.ChangeLog) *model.ChangeLog {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = model.ChangePending
	}
	r.changes[c.ID] = c
	return c
}

func (r *stubChangeRepo) CreateTx(_ *gorm.DB, c *model.ChangeLog) error {
	r.add(c)
	return nil
}

func (r *stubChangeRepo) ListPending(_ context.Context, collection string, limit int) ([]model.ChangeLog, error) {
	var out []model.ChangeLog
	for _, c := range r.changes {
		if c.Collection == collection && c.Status == model.ChangePending && len(out) < limit {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *stubChangeRepo) ListDueRetries(_ context.Context, now time.Time, limit int) ([]model.ChangeLog, error) {
	var out []model.ChangeLog
	for _, c := range r.changes {
		if c.Status == model.ChangePending && c.NextAttemptAt != nil && !c.NextAttemptAt.After(now) && len(out) < limit {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *stubChangeRepo) CountByStatus(_ context.Context, status string) (map[string]int, error) {
	counts := make(map[string]int)
	for _, c := range r.changes {
		if c.Status == status {
			counts[c.Collection]++
		}
	}
	return counts, nil
}

func (r *stubChangeRepo) FindPendingByRecord(_ context.Context, collection string, recordID uuid.UUID) (*model.ChangeLog, error) {
	for _, c := range r.changes {
		if c.Collection == collection && c.RecordID == recordID && c.Status == model.ChangePending {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubChangeRepo) Update(_ context.Context, c *model.ChangeLog) error {
	r.changes[c.ID] = c
	return nil
}

func (r *stubChangeRepo) MarkStatus(_ context.Context, id uuid.UUID, status string) error {
	c, ok := r.changes[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.Status = status
	return nil
}

func (r *stubChangeRepo) RequeueInflight(_ context.Context) (int64, error) {
	var n int64
	for _, c := range r.changes {
		if c.Status == model.ChangeInflight {
			c.Status = model.ChangePending
			n++
		}
	}
	return n, nil
}

func (r *stubChangeRepo) DB() *gorm.DB { return nil }

var _ repository.ChangeLogRepository = (*stubChangeRepo)(nil)

type stubStateRepo struct {
	state model.SyncState
}

func (r *stubStateRepo) Get(_ context.Context) (*model.SyncState, error) {
	s := r.state
	s.ID = 1
	return &s, nil
}

func (r *stubStateRepo) Save(_ context.Context, s *model.SyncState) error {
	r.state = *s
	return nil
}

var _ repository.SyncStateRepository = (*stubStateRepo)(nil)

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
	return p, nil
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

func (r *stubProductRepo) ListLowStock(_ context.Context) ([]model.Product, error) { return nil, nil }

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
	return nil, nil
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

func (r *stubCustomerRepo) List(_ context.Context, _ bool) ([]model.Customer, error) {
	return nil, nil
}

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

type stubMovementRepo struct {
	movements []model.StockMovement
}

func (r *stubMovementRepo) CreateTx(_ *gorm.DB, m *model.StockMovement) error {
	r.movements = append(r.movements, *m)
	return nil
}

func (r *stubMovementRepo) ListByProduct(_ context.Context, _ uuid.UUID, _ int) ([]model.StockMovement, error) {
	return r.movements, nil
}

func (r *stubMovementRepo) List(_ context.Context, _ int) ([]model.StockMovement, error) {
	return r.movements, nil
}

var _ repository.StockMovementRepository = (*stubMovementRepo)(nil)

// ── Fixture ───────────────────────────────────────────────────────────────────

type engineFixture struct {
	engine    *Engine
	changes   *stubChangeRepo
	state     *stubStateRepo
	products  *stubProductRepo
	invoices  *stubInvoiceRepo
	customers *stubCustomerRepo
	movements *stubMovementRepo
	store     *remote.MemoryStore
	hub       *Hub
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		changes:   newStubChangeRepo(),
		state:     &stubStateRepo{},
		products:  newStubProductRepo(),
		invoices:  newStubInvoiceRepo(),
		customers: newStubCustomerRepo(),
		movements: &stubMovementRepo{},
		store:     remote.NewMemoryStore(),
		hub:       NewHub(),
	}
	f.engine = NewEngine(EngineConfig{
		Changes:   f.changes,
		State:     f.state,
		Products:  f.products,
		Invoices:  f.invoices,
		Customers: f.customers,
		Movements: f.movements,
		Remote:    f.store,
		Breaker:   infra.NewCircuitBreaker(infra.DefaultCBConfig()),
		Hub:       f.hub,
		Reauth:    NewReauthRegistry(f.hub, 50*time.Millisecond),
		DeviceID:  "register-1",
		Logger:    zerolog.Nop(),
	})
	return f
}

func seedLocalProduct(f *engineFixture, name string, stock int) *model.Product {
	p := &model.Product{
		ID:        uuid.New(),
		SKU:       uuid.NewString()[:13],
		Name:      name,
		Price:     decimal.NewFromInt(10),
		Cost:      decimal.NewFromInt(6),
		Stock:     stock,
		Active:    true,
		Revision:  1,
		UpdatedAt: time.Now().Add(-time.Hour),
	}
	f.products.products[p.ID] = p
	return p
}

func pendingProductChange(f *engineFixture, p *model.Product) *model.ChangeLog {
	payload, _ := EncodeProduct(p)
	return f.changes.add(&model.ChangeLog{
		Collection: model.CollectionProducts,
		RecordID:   p.ID,
		Op:         model.ChangeOpUpsert,
		Payload:    payload,
		Revision:   p.Revision,
	})
}

func remoteProductDoc(p *model.Product, rev int64, updated time.Time) remote.Document {
	snapshot := *p
	snapshot.Revision = rev
	payload, _ := EncodeProduct(&snapshot)
	return remote.Document{
		ID:        p.ID.String(),
		Revision:  rev,
		UpdatedAt: updated,
		DeviceID:  "register-2",
		Data:      payload,
	}
}

// ── Status ────────────────────────────────────────────────────────────────────

func TestCheckUnsynced_CountsBothDirections(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	p := seedLocalProduct(f, "Coffee Beans 1kg", 12)
	pendingProductChange(f, p)

	other := &model.Product{ID: uuid.New(), SKU: "4000000000001", Name: "Filters", Active: true, Revision: 1}
	require.NoError(t, f.store.Upsert(ctx, model.CollectionProducts, remoteProductDoc(other, 1, time.Now())))

	status, err := f.engine.CheckUnsynced(ctx)
	require.NoError(t, err)
	assert.True(t, status.Success)
	assert.True(t, status.HasUnsyncedData)
	assert.Equal(t, 2, status.TotalUnsyncedItems)
	assert.Equal(t, 1, status.UnsyncedCounts[model.CollectionProducts].ToUpload)
	assert.Equal(t, 1, status.UnsyncedCounts[model.CollectionProducts].ToDownload)

	// The status check is read-only: asking again gives the same answer and
	// the outbox row is untouched.
	again, err := f.engine.CheckUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, status.TotalUnsyncedItems, again.TotalUnsyncedItems)
	for _, c := range f.changes.changes {
		assert.Equal(t, model.ChangePending, c.Status)
	}
}

func TestCheckUnsynced_OfflineDegradesToLocalCounts(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	p := seedLocalProduct(f, "Sugar 500g", 4)
	pendingProductChange(f, p)
	f.store.SetFailure(errors.New("connection refused"))

	status, err := f.engine.CheckUnsynced(ctx)
	require.NoError(t, err)
	assert.True(t, status.Success)
	assert.Equal(t, 1, status.TotalUnsyncedItems)
	assert.Equal(t, 0, status.UnsyncedCounts[model.CollectionProducts].ToDownload)
}

// ── Full sync ─────────────────────────────────────────────────────────────────

func TestPerformSync_NothingPending(t *testing.T) {
	f := newEngineFixture(t)
	events, cancel := f.hub.Subscribe()
	defer cancel()

	resp, err := f.engine.PerformSync(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "nothing to sync", resp.Message)
	// An empty run emits no events at all.
	assert.Equal(t, 0, len(events))
}

func TestPerformSync_SecondCallRejected(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.inFlight.Store(true)

	_, err := f.engine.PerformSync(context.Background())
	assert.ErrorIs(t, err, ErrSyncInFlight)
}

func TestPerformSync_PushesOutbox(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	p := seedLocalProduct(f, "Olive Oil 1L", 8)
	change := pendingProductChange(f, p)

	resp, err := f.engine.PerformSync(ctx)
	require.NoError(t, err)
	assert.True(t, resp.Success)

	assert.Equal(t, model.ChangeSynced, f.changes.changes[change.ID].Status)

	doc, err := f.store.Get(ctx, model.CollectionProducts, p.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "register-1", doc.DeviceID)
	assert.Equal(t, p.Revision, doc.Revision)
	assert.True(t, f.engine.Online())
}

func TestPerformSync_PullsRemoteProduct(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	incoming := &model.Product{
		ID:       uuid.New(),
		SKU:      "5000000000002",
		Name:     "Green Tea 20ct",
		Price:    decimal.NewFromInt(4),
		Stock:    50,
		Active:   true,
		Revision: 1,
	}
	require.NoError(t, f.store.Upsert(ctx, model.CollectionProducts, remoteProductDoc(incoming, 1, time.Now())))

	resp, err := f.engine.PerformSync(ctx)
	require.NoError(t, err)
	require.True(t, resp.Success)

	got, err := f.products.FindByID(ctx, incoming.ID)
	require.NoError(t, err)
	assert.Equal(t, "Green Tea 20ct", got.Name)

	// The pull cursor advanced so the next check reports nothing to download.
	status, err := f.engine.CheckUnsynced(ctx)
	require.NoError(t, err)
	assert.False(t, status.HasUnsyncedData)
}

func TestPerformSync_ProductConflictRemoteWins(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	p := seedLocalProduct(f, "Honey 250g", 9)
	p.Price = decimal.NewFromInt(20)
	change := pendingProductChange(f, p)

	// The other register edited the same product more recently.
	snapshot := *p
	snapshot.Price = decimal.NewFromInt(25)
	snapshot.Stock = 99
	doc := remoteProductDoc(&snapshot, 2, time.Now())
	require.NoError(t, f.store.Upsert(ctx, model.CollectionProducts, doc))

	resp, err := f.engine.PerformSync(ctx)
	require.NoError(t, err)
	require.True(t, resp.Success)

	// The losing local edit is parked for review, not silently dropped.
	assert.Equal(t, model.ChangeConflict, f.changes.changes[change.ID].Status)

	got, _ := f.products.FindByID(ctx, p.ID)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(25)))
	// Stock never comes from remote snapshots; only movement deltas touch it.
	assert.Equal(t, 9, got.Stock)
}

func TestPerformSync_ProductConflictLocalWins(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	p := seedLocalProduct(f, "Ground Pepper", 3)
	p.UpdatedAt = time.Now()
	p.Price = decimal.NewFromInt(7)
	p.Revision = 2 // the local edit bumped it
	change := pendingProductChange(f, p)

	snapshot := *p
	snapshot.Price = decimal.NewFromInt(5)
	doc := remoteProductDoc(&snapshot, 2, time.Now().Add(-time.Minute))
	require.NoError(t, f.store.Upsert(ctx, model.CollectionProducts, doc))

	resp, err := f.engine.PerformSync(ctx)
	require.NoError(t, err)
	require.True(t, resp.Success)

	// The local edit stands and was pushed over the remote copy.
	assert.Equal(t, model.ChangeSynced, f.changes.changes[change.ID].Status)
	got, _ := f.products.FindByID(ctx, p.ID)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(7)))
}

func TestPerformSync_PulledInvoiceGetsLocalNumber(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	p := seedLocalProduct(f, "Espresso Cups", 10)
	clientID := uuid.NewString()
	inv := &model.Invoice{
		ID:           uuid.New(),
		Number:       412, // the other register's display number
		ClientID:     &clientID,
		CustomerName: "Guest",
		UserID:       uuid.New(),
		Subtotal:     decimal.NewFromInt(20),
		Total:        decimal.NewFromInt(20),
		Status:       model.InvoiceCompleted,
		Revision:     1,
		Items: []model.InvoiceItem{{
			ID:        uuid.New(),
			ProductID: &p.ID,
			Name:      p.Name,
			Price:     decimal.NewFromInt(10),
			Quantity:  2,
			LineTotal: decimal.NewFromInt(20),
		}},
	}
	payload, err := EncodeInvoice(inv)
	require.NoError(t, err)
	require.NoError(t, f.store.Upsert(ctx, model.CollectionInvoices, remote.Document{
		ID:        inv.ID.String(),
		Revision:  1,
		UpdatedAt: time.Now(),
		DeviceID:  "register-2",
		Data:      payload,
	}))

	resp, err := f.engine.PerformSync(ctx)
	require.NoError(t, err)
	require.True(t, resp.Success)

	stored, err := f.invoices.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	// Display numbers are per-device; the pulled sale gets the next local one.
	assert.Equal(t, 1, stored.Number)

	// Stock replayed as a movement delta: 10 - 2 = 8.
	got, _ := f.products.FindByID(ctx, p.ID)
	assert.Equal(t, 8, got.Stock)
	require.Len(t, f.movements.movements, 1)
	assert.Equal(t, model.MovementSync, f.movements.movements[0].Type)
	assert.Equal(t, -2, f.movements.movements[0].Quantity)
}

func TestPerformSync_SmallDeficitClampsAndFlags(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	p := seedLocalProduct(f, "Croissant", 1) // remote sale wants 3
	inv := &model.Invoice{
		ID:           uuid.New(),
		Number:       7,
		CustomerName: "Guest",
		UserID:       uuid.New(),
		Subtotal:     decimal.NewFromInt(30),
		Total:        decimal.NewFromInt(30),
		Status:       model.InvoiceCompleted,
		Revision:     1,
		Items: []model.InvoiceItem{{
			ID:        uuid.New(),
			ProductID: &p.ID,
			Name:      p.Name,
			Price:     decimal.NewFromInt(10),
			Quantity:  3,
			LineTotal: decimal.NewFromInt(30),
		}},
	}
	payload, _ := EncodeInvoice(inv)
	require.NoError(t, f.store.Upsert(ctx, model.CollectionInvoices, remote.Document{
		ID: inv.ID.String(), Revision: 1, UpdatedAt: time.Now(), DeviceID: "register-2", Data: payload,
	}))

	resp, err := f.engine.PerformSync(ctx)
	require.NoError(t, err)
	require.True(t, resp.Success)

	// Deficit of 2 is under the threshold: stock clamps at zero and the
	// invoice carries the conflict flag.
	got, _ := f.products.FindByID(ctx, p.ID)
	assert.Equal(t, 0, got.Stock)
	stored, _ := f.invoices.FindByID(ctx, inv.ID)
	assert.True(t, stored.StockConflict)
}

func TestPerformSync_LargeDeficitSkipsDecrement(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	p := seedLocalProduct(f, "Baguette", 1) // remote sale wants 10
	inv := &model.Invoice{
		ID:           uuid.New(),
		Number:       8,
		CustomerName: "Guest",
		UserID:       uuid.New(),
		Subtotal:     decimal.NewFromInt(100),
		Total:        decimal.NewFromInt(100),
		Status:       model.InvoiceCompleted,
		Revision:     1,
		Items: []model.InvoiceItem{{
			ID:        uuid.New(),
			ProductID: &p.ID,
			Name:      p.Name,
			Price:     decimal.NewFromInt(10),
			Quantity:  10,
			LineTotal: decimal.NewFromInt(100),
		}},
	}
	payload, _ := EncodeInvoice(inv)
	require.NoError(t, f.store.Upsert(ctx, model.CollectionInvoices, remote.Document{
		ID: inv.ID.String(), Revision: 1, UpdatedAt: time.Now(), DeviceID: "register-2", Data: payload,
	}))

	resp, err := f.engine.PerformSync(ctx)
	require.NoError(t, err)
	require.True(t, resp.Success)

	// Deficit of 9 exceeds the threshold: stock untouched, sale still
	// accepted and flagged.
	got, _ := f.products.FindByID(ctx, p.ID)
	assert.Equal(t, 1, got.Stock)
	stored, _ := f.invoices.FindByID(ctx, inv.ID)
	assert.True(t, stored.StockConflict)
	assert.Empty(t, f.movements.movements)
}

// upsertFailStore lets pulls succeed while every push fails.
type upsertFailStore struct {
	*remote.MemoryStore
	err error
}

func (s *upsertFailStore) Upsert(context.Context, string, remote.Document) error { return s.err }

func TestPerformSync_TransientFailureSchedulesRetry(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	p := seedLocalProduct(f, "Dish Soap", 5)
	change := pendingProductChange(f, p)
	f.engine.remote = &upsertFailStore{
		MemoryStore: f.store,
		err:         remote.NewError(remote.KindTransient, errors.New("i/o timeout")),
	}

	resp, err := f.engine.PerformSync(ctx)
	require.NoError(t, err)
	assert.False(t, resp.Success)

	// Pull had nothing; the push failed: the row stays pending with a
	// backoff schedule and the engine reports offline.
	stored := f.changes.changes[change.ID]
	assert.Equal(t, model.ChangePending, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	require.NotNil(t, stored.NextAttemptAt)
	assert.True(t, stored.NextAttemptAt.After(time.Now()))
	assert.False(t, f.engine.Online())
}

func TestPerformSync_RemoteRevisionAheadParksConflict(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	p := seedLocalProduct(f, "Paper Towels", 6)
	change := pendingProductChange(f, p) // captured at revision 1

	// The remote copy advanced past the captured revision after our edit.
	snapshot := *p
	doc := remoteProductDoc(&snapshot, 5, time.Now().Add(time.Hour))
	doc.DeviceID = "register-1" // own device: never pulled, only push-guarded
	require.NoError(t, f.store.Upsert(ctx, model.CollectionProducts, doc))

	resp, err := f.engine.PerformSync(ctx)
	require.NoError(t, err)
	require.True(t, resp.Success)

	assert.Equal(t, model.ChangeConflict, f.changes.changes[change.ID].Status)
}

func TestRetryLoop_ExhaustedChangeParksAsFailed(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	p := seedLocalProduct(f, "Trash Bags", 2)
	change := pendingProductChange(f, p)
	change.Attempts = 7 // one push away from the default cap of 8
	due := time.Now().Add(-time.Minute)
	change.NextAttemptAt = &due

	f.store.SetFailure(remote.NewError(remote.KindTransient, errors.New("connection reset")))
	f.engine.processRetries(ctx, nil)

	stored := f.changes.changes[change.ID]
	assert.Equal(t, model.ChangeFailed, stored.Status)
	assert.Nil(t, stored.NextAttemptAt)
	assert.Equal(t, 8, stored.Attempts)
}

func TestRetryLoop_SuccessfulRetryGoesBackOnline(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	p := seedLocalProduct(f, "Matches", 30)
	change := pendingProductChange(f, p)
	change.Attempts = 2
	due := time.Now().Add(-time.Second)
	change.NextAttemptAt = &due

	f.engine.processRetries(ctx, nil)

	assert.Equal(t, model.ChangeSynced, f.changes.changes[change.ID].Status)
	assert.True(t, f.engine.Online())

	doc, err := f.store.Get(ctx, model.CollectionProducts, p.ID.String())
	require.NoError(t, err)
	assert.Equal(t, p.Revision, doc.Revision)
}

func TestCheckOnline_PublishesTransition(t *testing.T) {
	f := newEngineFixture(t)
	events, cancel := f.hub.Subscribe()
	defer cancel()

	assert.True(t, f.engine.CheckOnline(context.Background()))
	evt := <-events
	assert.Equal(t, EventOnlineStatusChanged, evt.Type)
	assert.Equal(t, true, evt.Payload["online"])

	f.store.SetFailure(errors.New("unreachable"))
	assert.False(t, f.engine.CheckOnline(context.Background()))
	evt = <-events
	assert.Equal(t, false, evt.Payload["online"])
}

func TestRetryLoop_DueChangesPublishUnsyncedEvent(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	p := seedLocalProduct(f, "Receipt Rolls", 40)
	change := pendingProductChange(f, p)
	change.Attempts = 1
	due := time.Now().Add(-time.Second)
	change.NextAttemptAt = &due

	events, cancel := f.hub.Subscribe()
	defer cancel()

	// Keep the push failing so the only event is the unsynced notification.
	f.store.SetFailure(remote.NewError(remote.KindTransient, errors.New("connection reset")))
	f.engine.processRetries(ctx, nil)

	select {
	case evt := <-events:
		assert.Equal(t, EventUnsyncedData, evt.Type)
		assert.Equal(t, 1, evt.Payload["count"])
	default:
		t.Fatal("expected an unsynced-data event for due outbox rows")
	}
}

func TestStartRetryLoop_RequeuesStrandedInflight(t *testing.T) {
	f := newEngineFixture(t)

	p := seedLocalProduct(f, "Paper Towels", 6)
	change := pendingProductChange(f, p)
	change.Status = model.ChangeInflight

	// A cancelled context stops the loop immediately; the sweep still runs
	// before the goroutine starts.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.engine.StartRetryLoop(ctx, nil)

	assert.Equal(t, model.ChangePending, f.changes.changes[change.ID].Status)
}

func TestNewEngine_RetryIntervalConfigurable(t *testing.T) {
	def := NewEngine(EngineConfig{Logger: zerolog.Nop()})
	assert.Equal(t, 30*time.Second, def.retryTick)

	custom := NewEngine(EngineConfig{RetryInterval: 5 * time.Second, Logger: zerolog.Nop()})
	assert.Equal(t, 5*time.Second, custom.retryTick)
}
