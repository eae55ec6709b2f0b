package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mzlad1/BenchPOS-sub001/internal/dto"
	"github.com/mzlad1/BenchPOS-sub001/internal/model"
	"github.com/mzlad1/BenchPOS-sub001/internal/repository"
	syncpkg "github.com/mzlad1/BenchPOS-sub001/internal/sync"
	"github.com/mzlad1/BenchPOS-sub001/internal/worker"
)

var (
	ErrInsufficientPayment = errors.New("total payments do not cover the invoice")
	ErrAlreadyVoided       = errors.New("invoice is already voided")
)

type InvoiceService interface {
	Create(ctx context.Context, userID uuid.UUID, req dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error)
	GetByID(ctx context.Context, id uuid.UUID) (*dto.InvoiceResponse, error)
	List(ctx context.Context, filter dto.InvoiceFilter) (*dto.InvoiceListResponse, error)
	Update(ctx context.Context, userID uuid.UUID, id uuid.UUID, req dto.UpdateInvoiceRequest) (*dto.InvoiceResponse, error)
	Void(ctx context.Context, userID uuid.UUID, id uuid.UUID, reason string) error
}

type invoiceService struct {
	repo       repository.InvoiceRepository
	products   repository.ProductRepository
	customers  repository.CustomerRepository
	changes    repository.ChangeLogRepository
	inventory  InventoryService
	activity   ActivityService
	settings   SettingsService
	dispatcher *worker.Dispatcher
	taxRate    decimal.Decimal
}

func NewInvoiceService(
	repo repository.InvoiceRepository,
	products repository.ProductRepository,
	customers repository.CustomerRepository,
	changes repository.ChangeLogRepository,
	inventory InventoryService,
	activity ActivityService,
	settings SettingsService,
	dispatcher *worker.Dispatcher,
	taxRatePct string,
) InvoiceService {
	rate, err := decimal.NewFromString(taxRatePct)
	if err != nil {
		rate = decimal.Zero
	}
	return &invoiceService{
		repo:       repo,
		products:   products,
		customers:  customers,
		changes:    changes,
		inventory:  inventory,
		activity:   activity,
		settings:   settings,
		dispatcher: dispatcher,
		taxRate:    rate,
	}
}

type resolvedLine struct {
	productID *uuid.UUID
	name      string
	price     decimal.Decimal
	cost      decimal.Decimal
	quantity  int
	discount  decimal.Decimal
	lineTotal decimal.Decimal
	isRefund  bool
	misc      bool
	stockOK   bool
}

// Create finalizes a sale in one ACID transaction:
//  1. Dedupe on client_id (offline replays return the stored invoice)
//  2. Resolve products, compute line totals with decimals (pre-flight)
//  3. Validate payment sufficiency
//  4. BEGIN TX: nextval number, insert invoice+items+payments, move stock,
//     append the outbox row
//  5. COMMIT, then dispatch the receipt render job (best-effort)
func (s *invoiceService) Create(ctx context.Context, userID uuid.UUID, req dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error) {
	if req.ClientID != nil {
		if existing, err := s.repo.FindByClientID(ctx, *req.ClientID); err == nil {
			resp := invoiceToResponse(existing)
			return &resp, nil
		}
	}

	resolved, subtotal, discountTotal, stockConflict, err := s.resolveLines(ctx, req.Items, req.IsRefund)
	if err != nil {
		return nil, err
	}

	net := subtotal.Sub(discountTotal)
	tax := net.Mul(s.effectiveTaxRate(ctx)).Div(decimal.NewFromInt(100)).Round(2)
	total := net.Add(tax)

	paid := decimal.Zero
	for _, p := range req.Payments {
		paid = paid.Add(p.Amount)
	}
	if paid.LessThan(total) {
		return nil, ErrInsufficientPayment
	}
	change := paid.Sub(total)

	customerName := "Guest"
	var customerID *uuid.UUID
	if req.CustomerID != nil {
		cid, err := uuid.Parse(*req.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("invalid customer_id: %w", err)
		}
		c, err := s.customers.FindByID(ctx, cid)
		if err != nil {
			return nil, fmt.Errorf("customer not found: %w", err)
		}
		customerID = &c.ID
		customerName = c.Name
	} else if req.Customer != "" {
		customerName = req.Customer
	}

	inv := model.Invoice{
		ID:            uuid.New(),
		ClientID:      req.ClientID,
		CustomerID:    customerID,
		CustomerName:  customerName,
		UserID:        userID,
		Subtotal:      subtotal,
		DiscountTotal: discountTotal,
		Tax:           tax,
		Total:         total,
		IsRefund:      req.IsRefund,
		StockConflict: stockConflict,
		Status:        model.InvoiceCompleted,
		Revision:      1,
	}
	for _, r := range resolved {
		inv.Items = append(inv.Items, model.InvoiceItem{
			ProductID:       r.productID,
			Name:            r.name,
			Price:           r.price,
			Cost:            r.cost,
			Quantity:        r.quantity,
			Discount:        r.discount,
			LineTotal:       r.lineTotal,
			IsRefund:        r.isRefund,
			IsMiscellaneous: r.misc,
		})
	}
	for _, p := range req.Payments {
		inv.Payments = append(inv.Payments, model.InvoicePayment{Method: p.Method, Amount: p.Amount})
	}

	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		num, err := s.repo.NextNumber(ctx, tx)
		if err != nil {
			return err
		}
		inv.Number = num

		if err := s.repo.Create(ctx, tx, &inv); err != nil {
			return err
		}

		if err := s.moveStockTx(tx, &inv, resolved, fmt.Sprintf("invoice #%d", num)); err != nil {
			return err
		}

		payload, err := syncpkg.EncodeInvoice(&inv)
		if err != nil {
			return err
		}
		return writeOutboxTx(tx, s.changes, model.CollectionInvoices, inv.ID, model.ChangeOpUpsert, payload, inv.Revision)
	})
	if txErr != nil {
		return nil, txErr
	}

	if s.dispatcher != nil {
		_ = s.dispatcher.EnqueueReceipt(ctx, worker.ReceiptJobPayload{
			InvoiceID:     inv.ID.String(),
			CustomerEmail: req.ReceiptEmail,
		})
	}
	action := "sale"
	if inv.IsRefund {
		action = "refund"
	}
	s.activity.Record(ctx, &userID, action, fmt.Sprintf("invoice #%d total %s", inv.Number, total.StringFixed(2)), &inv.ID)

	resp := invoiceToResponse(&inv)
	resp.Change = change
	return &resp, nil
}

// resolveLines fetches products and computes totals outside the transaction.
// A sale is never blocked by low stock; it is flagged instead.
func (s *invoiceService) resolveLines(ctx context.Context, items []dto.InvoiceItemRequest, invoiceRefund bool) ([]resolvedLine, decimal.Decimal, decimal.Decimal, bool, error) {
	var resolved []resolvedLine
	subtotal := decimal.Zero
	discountTotal := decimal.Zero
	stockConflict := false

	for _, item := range items {
		line := resolvedLine{
			quantity: item.Quantity,
			discount: item.Discount,
			isRefund: item.IsRefund || invoiceRefund,
			stockOK:  true,
		}

		if item.ProductID == "" {
			// Ad-hoc line typed at the register.
			if item.Name == "" {
				return nil, decimal.Zero, decimal.Zero, false, errors.New("miscellaneous items require a name")
			}
			line.name = item.Name
			line.price = item.Price
			line.misc = true
		} else {
			pid, err := uuid.Parse(item.ProductID)
			if err != nil {
				return nil, decimal.Zero, decimal.Zero, false, fmt.Errorf("invalid product_id: %w", err)
			}
			p, err := s.products.FindByID(ctx, pid)
			if err != nil {
				return nil, decimal.Zero, decimal.Zero, false, fmt.Errorf("product %s not found", item.ProductID)
			}
			if !p.Active {
				return nil, decimal.Zero, decimal.Zero, false, fmt.Errorf("product %s is inactive", p.Name)
			}
			line.productID = &p.ID
			line.name = p.Name
			line.cost = p.Cost
			line.price = p.Price
			if !item.Price.IsZero() {
				line.price = item.Price
			}
			if !line.isRefund && p.Stock < item.Quantity {
				line.stockOK = false
				stockConflict = true
			}
		}

		gross := line.price.Mul(decimal.NewFromInt(int64(line.quantity)))
		line.lineTotal = gross.Sub(line.discount)
		subtotal = subtotal.Add(gross)
		discountTotal = discountTotal.Add(line.discount)
		resolved = append(resolved, line)
	}
	return resolved, subtotal, discountTotal, stockConflict, nil
}

// moveStockTx applies each catalog line's stock delta and records the
// movement. Sales decrement, refunds restore. Stock may go negative; the
// invoice carries the conflict flag for review.
func (s *invoiceService) moveStockTx(tx *gorm.DB, inv *model.Invoice, resolved []resolvedLine, reason string) error {
	for _, r := range resolved {
		if r.productID == nil || r.quantity == 0 {
			continue
		}
		delta := -r.quantity
		mvType := model.MovementSale
		if r.isRefund {
			delta = r.quantity
			mvType = model.MovementRefund
		}

		before, err := s.products.FindByIDTx(tx, *r.productID)
		stockBefore := 0
		if err == nil && before != nil {
			stockBefore = before.Stock
		}

		if err := s.products.UpdateStockTx(tx, *r.productID, delta); err != nil {
			return fmt.Errorf("moving stock for %s: %w", r.name, err)
		}
		mv := &model.StockMovement{
			ProductID:   *r.productID,
			Type:        mvType,
			Quantity:    delta,
			StockBefore: stockBefore,
			StockAfter:  stockBefore + delta,
			Reason:      reason,
			ReferenceID: &inv.ID,
		}
		if err := s.inventory.RecordMovementTx(tx, mv); err != nil {
			return err
		}
	}
	return nil
}

func (s *invoiceService) GetByID(ctx context.Context, id uuid.UUID) (*dto.InvoiceResponse, error) {
	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := invoiceToResponse(inv)
	return &resp, nil
}

func (s *invoiceService) List(ctx context.Context, filter dto.InvoiceFilter) (*dto.InvoiceListResponse, error) {
	invoices, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	resp := &dto.InvoiceListResponse{
		Data:  make([]dto.InvoiceResponse, len(invoices)),
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}
	for i := range invoices {
		resp.Data[i] = invoiceToResponse(&invoices[i])
	}
	return resp, nil
}

// Update is the explicit edit-and-resave flow: the item set is replaced,
// totals recomputed and the revision bumped so sync propagates the edit.
// Old stock effects are reversed and the new ones applied in the same
// transaction.
func (s *invoiceService) Update(ctx context.Context, userID uuid.UUID, id uuid.UUID, req dto.UpdateInvoiceRequest) (*dto.InvoiceResponse, error) {
	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == model.InvoiceVoided {
		return nil, ErrAlreadyVoided
	}

	resolved, subtotal, discountTotal, stockConflict, err := s.resolveLines(ctx, req.Items, inv.IsRefund)
	if err != nil {
		return nil, err
	}
	net := subtotal.Sub(discountTotal)
	tax := net.Mul(s.effectiveTaxRate(ctx)).Div(decimal.NewFromInt(100)).Round(2)

	oldItems := inv.Items

	inv.Subtotal = subtotal
	inv.DiscountTotal = discountTotal
	inv.Tax = tax
	inv.Total = net.Add(tax)
	inv.StockConflict = inv.StockConflict || stockConflict
	if req.Customer != nil {
		inv.CustomerName = *req.Customer
	}
	inv.Revision++

	newItems := make([]model.InvoiceItem, 0, len(resolved))
	for _, r := range resolved {
		newItems = append(newItems, model.InvoiceItem{
			InvoiceID:       inv.ID,
			ProductID:       r.productID,
			Name:            r.name,
			Price:           r.price,
			Cost:            r.cost,
			Quantity:        r.quantity,
			Discount:        r.discount,
			LineTotal:       r.lineTotal,
			IsRefund:        r.isRefund,
			IsMiscellaneous: r.misc,
		})
	}

	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		// Reverse the old lines' stock effect.
		if err := s.reverseStockTx(tx, inv, oldItems, fmt.Sprintf("invoice #%d edit", inv.Number)); err != nil {
			return err
		}
		if err := s.moveStockTx(tx, inv, resolved, fmt.Sprintf("invoice #%d edit", inv.Number)); err != nil {
			return err
		}
		inv.Items = nil
		if err := s.repo.Update(ctx, tx, inv); err != nil {
			return err
		}
		if err := s.repo.ReplaceItemsTx(tx, inv.ID, newItems); err != nil {
			return err
		}
		inv.Items = newItems
		payload, err := syncpkg.EncodeInvoice(inv)
		if err != nil {
			return err
		}
		return writeOutboxTx(tx, s.changes, model.CollectionInvoices, inv.ID, model.ChangeOpUpsert, payload, inv.Revision)
	})
	if txErr != nil {
		return nil, txErr
	}

	s.activity.Record(ctx, &userID, "invoice_edited", fmt.Sprintf("invoice #%d", inv.Number), &inv.ID)
	resp := invoiceToResponse(inv)
	return &resp, nil
}

// Void cancels a completed invoice and restores its stock with inverse
// movements. Voided invoices stay listed; nothing is hard-deleted.
func (s *invoiceService) Void(ctx context.Context, userID uuid.UUID, id uuid.UUID, reason string) error {
	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if inv.Status == model.InvoiceVoided {
		return ErrAlreadyVoided
	}

	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if err := s.reverseStockTx(tx, inv, inv.Items, fmt.Sprintf("void invoice #%d: %s", inv.Number, reason)); err != nil {
			return err
		}
		if err := s.repo.UpdateStatusTx(tx, id, model.InvoiceVoided); err != nil {
			return err
		}
		inv.Status = model.InvoiceVoided
		inv.Revision++
		payload, err := syncpkg.EncodeInvoice(inv)
		if err != nil {
			return err
		}
		return writeOutboxTx(tx, s.changes, model.CollectionInvoices, inv.ID, model.ChangeOpUpsert, payload, inv.Revision)
	})
	if txErr != nil {
		return txErr
	}

	s.activity.Record(ctx, &userID, "void", fmt.Sprintf("invoice #%d: %s", inv.Number, reason), &inv.ID)
	return nil
}

// reverseStockTx applies the inverse of each catalog line's stock delta.
func (s *invoiceService) reverseStockTx(tx *gorm.DB, inv *model.Invoice, items []model.InvoiceItem, reason string) error {
	for _, item := range items {
		if item.ProductID == nil || item.Quantity == 0 {
			continue
		}
		delta := item.Quantity
		if item.IsRefund || inv.IsRefund {
			delta = -item.Quantity
		}

		before, err := s.products.FindByIDTx(tx, *item.ProductID)
		stockBefore := 0
		if err == nil && before != nil {
			stockBefore = before.Stock
		}

		if err := s.products.UpdateStockTx(tx, *item.ProductID, delta); err != nil {
			return err
		}
		mv := &model.StockMovement{
			ProductID:   *item.ProductID,
			Type:        model.MovementVoidRestore,
			Quantity:    delta,
			StockBefore: stockBefore,
			StockAfter:  stockBefore + delta,
			Reason:      reason,
			ReferenceID: &inv.ID,
		}
		if err := s.inventory.RecordMovementTx(tx, mv); err != nil {
			return err
		}
	}
	return nil
}

// effectiveTaxRate prefers the company setting over the env default.
func (s *invoiceService) effectiveTaxRate(ctx context.Context) decimal.Decimal {
	if s.settings != nil {
		if all, err := s.settings.GetAll(ctx); err == nil {
			if v, ok := all[SettingTaxRatePct]; ok {
				if rate, err := decimal.NewFromString(v); err == nil {
					return rate
				}
			}
		}
	}
	return s.taxRate
}

func invoiceToResponse(inv *model.Invoice) dto.InvoiceResponse {
	resp := dto.InvoiceResponse{
		ID:            inv.ID.String(),
		Number:        inv.Number,
		Customer:      inv.CustomerName,
		Subtotal:      inv.Subtotal,
		DiscountTotal: inv.DiscountTotal,
		Tax:           inv.Tax,
		Total:         inv.Total,
		IsRefund:      inv.IsRefund,
		Status:        inv.Status,
		StockConflict: inv.StockConflict,
		Change:        decimal.Zero,
		CreatedAt:     inv.CreatedAt.Format(time.RFC3339),
	}
	for _, item := range inv.Items {
		var pid *string
		if item.ProductID != nil {
			s := item.ProductID.String()
			pid = &s
		}
		resp.Items = append(resp.Items, dto.InvoiceItemResponse{
			ProductID:       pid,
			Name:            item.Name,
			Price:           item.Price,
			Quantity:        item.Quantity,
			Discount:        item.Discount,
			LineTotal:       item.LineTotal,
			IsRefund:        item.IsRefund,
			IsMiscellaneous: item.IsMiscellaneous,
		})
	}
	paid := decimal.Zero
	for _, p := range inv.Payments {
		resp.Payments = append(resp.Payments, dto.PaymentRequest{Method: p.Method, Amount: p.Amount})
		paid = paid.Add(p.Amount)
	}
	if paid.GreaterThan(inv.Total) {
		resp.Change = paid.Sub(inv.Total)
	}
	return resp
}
