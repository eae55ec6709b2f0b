package dto

import "github.com/shopspring/decimal"

// ─── Filter / List ──────────────────────────────────────────────────────────

// InvoiceFilter is bound from the query string of GET /v1/invoices.
type InvoiceFilter struct {
	Date   string `form:"date"`                      // YYYY-MM-DD; empty = today
	Status string `form:"status,default=completed"`  // completed | voided | all
	Page   int    `form:"page,default=1"   validate:"min=1"`
	Limit  int    `form:"limit,default=50" validate:"min=1,max=200"`
}

// ─── Request DTOs ────────────────────────────────────────────────────────────

type InvoiceItemRequest struct {
	// ProductID is empty for miscellaneous lines typed at the register.
	ProductID string          `json:"product_id" validate:"omitempty,uuid"`
	Name      string          `json:"name"       validate:"omitempty,max=120"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"   validate:"required,min=1"`
	Discount  decimal.Decimal `json:"discount"   validate:"min=0"`
	IsRefund  bool            `json:"is_refund"`
}

type PaymentRequest struct {
	Method string          `json:"method" validate:"required,oneof=cash card transfer"`
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

type CreateInvoiceRequest struct {
	Items    []InvoiceItemRequest `json:"items"    validate:"required,min=1,dive"`
	Payments []PaymentRequest     `json:"payments" validate:"required,min=1,dive"`
	// ClientID is set by the renderer when the sale was created offline
	ClientID   *string `json:"client_id"   validate:"omitempty,uuid"`
	CustomerID *string `json:"customer_id" validate:"omitempty,uuid"`
	Customer   string  `json:"customer"`
	IsRefund   bool    `json:"is_refund"`
	// ReceiptEmail is optional; when present, the receipt worker mails the PDF.
	ReceiptEmail *string `json:"receipt_email" validate:"omitempty,email"`
}

// UpdateInvoiceRequest is the explicit edit-and-resave flow: the full item
// set is replaced and totals recomputed; revision bumps.
type UpdateInvoiceRequest struct {
	Items    []InvoiceItemRequest `json:"items"    validate:"required,min=1,dive"`
	Customer *string              `json:"customer"`
}

type VoidInvoiceRequest struct {
	Reason string `json:"reason" validate:"required,min=5"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type InvoiceItemResponse struct {
	ProductID       *string         `json:"product_id"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	Quantity        int             `json:"quantity"`
	Discount        decimal.Decimal `json:"discount"`
	LineTotal       decimal.Decimal `json:"line_total"`
	IsRefund        bool            `json:"is_refund"`
	IsMiscellaneous bool            `json:"is_miscellaneous"`
}

type InvoiceResponse struct {
	ID            string                `json:"id"`
	Number        int                   `json:"number"`
	Customer      string                `json:"customer"`
	Items         []InvoiceItemResponse `json:"items"`
	Subtotal      decimal.Decimal       `json:"subtotal"`
	DiscountTotal decimal.Decimal       `json:"discount_total"`
	Tax           decimal.Decimal       `json:"tax"`
	Total         decimal.Decimal       `json:"total"`
	Payments      []PaymentRequest      `json:"payments"`
	Change        decimal.Decimal       `json:"change"`
	IsRefund      bool                  `json:"is_refund"`
	Status        string                `json:"status"`
	StockConflict bool                  `json:"stock_conflict"`
	CreatedAt     string                `json:"created_at"`
}

type InvoiceListResponse struct {
	Data  []InvoiceResponse `json:"data"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

type ReceiptResponse struct {
	ID        string  `json:"id"`
	InvoiceID string  `json:"invoice_id"`
	Status    string  `json:"status"`
	PDFPath   *string `json:"pdf_path"`
}
