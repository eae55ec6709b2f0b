package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mzlad1/BenchPOS-sub001/internal/dto"
	"github.com/mzlad1/BenchPOS-sub001/internal/model"
	"github.com/mzlad1/BenchPOS-sub001/internal/repository"
)

const dateLayout = "2006-01-02"

// ReportService aggregates finalized invoices over a date range. Voided
// invoices are excluded; refunds subtract from revenue. All arithmetic is
// decimal so report figures match the register to the cent.
type ReportService interface {
	DailySales(ctx context.Context, rng dto.ReportRange) (*dto.DailySalesResponse, error)
	TopProducts(ctx context.Context, rng dto.ReportRange, limit int) (*dto.TopProductsResponse, error)
	Summary(ctx context.Context, rng dto.ReportRange) (*dto.SummaryResponse, error)
}

type reportService struct {
	invoices repository.InvoiceRepository
}

func NewReportService(invoices repository.InvoiceRepository) ReportService {
	return &reportService{invoices: invoices}
}

// normalizeRange fills empty bounds: last 30 days through today.
func normalizeRange(rng dto.ReportRange) (string, string) {
	to := rng.To
	if to == "" {
		to = time.Now().Format(dateLayout)
	}
	from := rng.From
	if from == "" {
		from = time.Now().AddDate(0, 0, -30).Format(dateLayout)
	}
	return from, to
}

func (s *reportService) DailySales(ctx context.Context, rng dto.ReportRange) (*dto.DailySalesResponse, error) {
	from, to := normalizeRange(rng)
	invoices, err := s.invoices.ListBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}

	type dayAgg struct {
		count   int
		revenue decimal.Decimal
		refunds decimal.Decimal
		profit  decimal.Decimal
	}
	days := make(map[string]*dayAgg)

	for i := range invoices {
		inv := &invoices[i]
		if inv.Status == model.InvoiceVoided {
			continue
		}
		day := inv.CreatedAt.Format(dateLayout)
		agg, ok := days[day]
		if !ok {
			agg = &dayAgg{revenue: decimal.Zero, refunds: decimal.Zero, profit: decimal.Zero}
			days[day] = agg
		}
		agg.count++
		if inv.IsRefund {
			agg.refunds = agg.refunds.Add(inv.Total)
			agg.revenue = agg.revenue.Sub(inv.Total)
			agg.profit = agg.profit.Sub(invoiceProfit(inv))
		} else {
			agg.revenue = agg.revenue.Add(inv.Total)
			agg.profit = agg.profit.Add(invoiceProfit(inv))
		}
	}

	resp := &dto.DailySalesResponse{Data: make([]dto.DailySales, 0, len(days))}
	for day, agg := range days {
		resp.Data = append(resp.Data, dto.DailySales{
			Date:         day,
			InvoiceCount: agg.count,
			Revenue:      agg.revenue,
			Refunds:      agg.refunds,
			Profit:       agg.profit,
		})
	}
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Date < resp.Data[j].Date })
	return resp, nil
}

func (s *reportService) TopProducts(ctx context.Context, rng dto.ReportRange, limit int) (*dto.TopProductsResponse, error) {
	if limit <= 0 {
		limit = 10
	}
	from, to := normalizeRange(rng)
	invoices, err := s.invoices.ListBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}

	type prodAgg struct {
		name     string
		quantity int
		revenue  decimal.Decimal
	}
	products := make(map[string]*prodAgg)

	for i := range invoices {
		inv := &invoices[i]
		if inv.Status == model.InvoiceVoided || inv.IsRefund {
			continue
		}
		for _, item := range inv.Items {
			if item.ProductID == nil || item.IsRefund {
				continue
			}
			key := item.ProductID.String()
			agg, ok := products[key]
			if !ok {
				agg = &prodAgg{name: item.Name, revenue: decimal.Zero}
				products[key] = agg
			}
			agg.quantity += item.Quantity
			agg.revenue = agg.revenue.Add(item.LineTotal)
		}
	}

	resp := &dto.TopProductsResponse{Data: make([]dto.TopProduct, 0, len(products))}
	for id, agg := range products {
		resp.Data = append(resp.Data, dto.TopProduct{
			ProductID: id,
			Name:      agg.name,
			Quantity:  agg.quantity,
			Revenue:   agg.revenue,
		})
	}
	sort.Slice(resp.Data, func(i, j int) bool {
		if resp.Data[i].Quantity != resp.Data[j].Quantity {
			return resp.Data[i].Quantity > resp.Data[j].Quantity
		}
		return resp.Data[i].Revenue.GreaterThan(resp.Data[j].Revenue)
	})
	if len(resp.Data) > limit {
		resp.Data = resp.Data[:limit]
	}
	return resp, nil
}

func (s *reportService) Summary(ctx context.Context, rng dto.ReportRange) (*dto.SummaryResponse, error) {
	from, to := normalizeRange(rng)
	invoices, err := s.invoices.ListBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}

	resp := &dto.SummaryResponse{
		Revenue:   decimal.Zero,
		Refunds:   decimal.Zero,
		Profit:    decimal.Zero,
		AvgTicket: decimal.Zero,
	}
	sales := 0
	for i := range invoices {
		inv := &invoices[i]
		if inv.Status == model.InvoiceVoided {
			continue
		}
		resp.InvoiceCount++
		if inv.IsRefund {
			resp.Refunds = resp.Refunds.Add(inv.Total)
			resp.Revenue = resp.Revenue.Sub(inv.Total)
			resp.Profit = resp.Profit.Sub(invoiceProfit(inv))
		} else {
			sales++
			resp.Revenue = resp.Revenue.Add(inv.Total)
			resp.Profit = resp.Profit.Add(invoiceProfit(inv))
		}
	}
	if sales > 0 {
		resp.AvgTicket = resp.Revenue.Div(decimal.NewFromInt(int64(sales))).Round(2)
	}
	return resp, nil
}

// invoiceProfit is revenue minus captured cost over the invoice lines. Cost
// is snapshotted on the line at sale time, so later catalog edits never
// change a historical figure.
func invoiceProfit(inv *model.Invoice) decimal.Decimal {
	profit := decimal.Zero
	for _, item := range inv.Items {
		cost := item.Cost.Mul(decimal.NewFromInt(int64(item.Quantity)))
		profit = profit.Add(item.LineTotal.Sub(cost))
	}
	return profit
}
