package dto

import "github.com/shopspring/decimal"

// ReportRange is bound from the query string of the report endpoints.
type ReportRange struct {
	From string `form:"from"` // YYYY-MM-DD; empty = 30 days ago
	To   string `form:"to"`   // YYYY-MM-DD; empty = today
}

// DailySales is one day's aggregate.
type DailySales struct {
	Date         string          `json:"date"`
	InvoiceCount int             `json:"invoice_count"`
	Revenue      decimal.Decimal `json:"revenue"`
	Refunds      decimal.Decimal `json:"refunds"`
	Profit       decimal.Decimal `json:"profit"`
}

type DailySalesResponse struct {
	Data []DailySales `json:"data"`
}

// TopProduct ranks a product by quantity sold over the range.
type TopProduct struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

type TopProductsResponse struct {
	Data []TopProduct `json:"data"`
}

// SummaryResponse is the dashboard headline block.
type SummaryResponse struct {
	InvoiceCount int             `json:"invoice_count"`
	Revenue      decimal.Decimal `json:"revenue"`
	Refunds      decimal.Decimal `json:"refunds"`
	Profit       decimal.Decimal `json:"profit"`
	AvgTicket    decimal.Decimal `json:"avg_ticket"`
}

// ─── Activity / settings ────────────────────────────────────────────────────

type ActivityFilter struct {
	Action string `form:"action"`
	Page   int    `form:"page,default=1"   validate:"min=1"`
	Limit  int    `form:"limit,default=50" validate:"min=1,max=200"`
}

type ActivityEntry struct {
	ID        string  `json:"id"`
	UserID    *string `json:"user_id"`
	Action    string  `json:"action"`
	Detail    string  `json:"detail"`
	CreatedAt string  `json:"created_at"`
}

type ActivityListResponse struct {
	Data  []ActivityEntry `json:"data"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

type UpdateSettingsRequest struct {
	Settings map[string]string `json:"settings" validate:"required,min=1"`
}
