package worker

// receipt_worker.go
// Processes receipt render jobs from QueueReceipt: generates the PDF for a
// finalized invoice and optionally enqueues an email job with the attachment.
// Failed renders are re-attempted by the retry loop below with exponential
// backoff; exhausted receipts go to the DLQ.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/mzlad1/BenchPOS-sub001/internal/infra"
	"github.com/mzlad1/BenchPOS-sub001/internal/model"
	"github.com/mzlad1/BenchPOS-sub001/internal/repository"
)

const MaxReceiptRetries = 3

// ReceiptJobPayload is the job envelope sent to QueueReceipt.
type ReceiptJobPayload struct {
	InvoiceID     string  `json:"invoice_id"`
	CustomerEmail *string `json:"customer_email,omitempty"`
}

// ReceiptWorker renders invoice PDFs and tracks their state in the receipts
// table.
type ReceiptWorker struct {
	receiptRepo    repository.ReceiptRepository
	invoiceRepo    repository.InvoiceRepository
	settingRepo    repository.SettingRepository
	dispatcher     *Dispatcher
	pdfStoragePath string
}

func NewReceiptWorker(
	receiptRepo repository.ReceiptRepository,
	invoiceRepo repository.InvoiceRepository,
	settingRepo repository.SettingRepository,
	dispatcher *Dispatcher,
	pdfStoragePath string,
) *ReceiptWorker {
	return &ReceiptWorker{
		receiptRepo:    receiptRepo,
		invoiceRepo:    invoiceRepo,
		settingRepo:    settingRepo,
		dispatcher:     dispatcher,
		pdfStoragePath: pdfStoragePath,
	}
}

// Process handles a single receipt job:
//  1. Parse ReceiptJobPayload from the job envelope
//  2. Fetch the invoice (with items and payments)
//  3. Create or reuse the receipt row with status="pending"
//  4. Render the PDF with up to 3 attempts
//  5. Update the receipt (path / status / error)
//  6. Optionally enqueue an email job with the attachment
func (w *ReceiptWorker) Process(ctx context.Context, raw json.RawMessage) {
	var payload ReceiptJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("receipt_worker: invalid payload")
		return
	}

	invoiceID, err := uuid.Parse(payload.InvoiceID)
	if err != nil {
		log.Error().Str("invoice_id", payload.InvoiceID).Msg("receipt_worker: invalid invoice_id")
		return
	}

	inv, err := w.invoiceRepo.FindByID(ctx, invoiceID)
	if err != nil {
		log.Error().Err(err).Str("invoice_id", payload.InvoiceID).Msg("receipt_worker: invoice not found")
		return
	}

	rec, err := w.receiptRepo.FindByInvoiceID(ctx, invoiceID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error().Err(err).Str("invoice_id", payload.InvoiceID).Msg("receipt_worker: receipt lookup failed")
			return
		}
		rec = &model.Receipt{InvoiceID: invoiceID, Status: model.ReceiptPending, EmailTo: payload.CustomerEmail}
		if err := w.receiptRepo.Create(ctx, rec); err != nil {
			log.Error().Err(err).Str("invoice_id", payload.InvoiceID).Msg("receipt_worker: failed to create receipt")
			return
		}
	}

	w.render(ctx, rec, inv)
}

// render attempts the PDF and updates the receipt row either way.
func (w *ReceiptWorker) render(ctx context.Context, rec *model.Receipt, inv *model.Invoice) {
	storeName := w.storeName(ctx)

	var pdfPath string
	renderErr := withRetry(ctx, 3, func(attempt int) error {
		path, err := infra.GenerateReceiptPDF(inv, storeName, w.pdfStoragePath)
		if err != nil {
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("invoice_id", inv.ID.String()).
				Msg("receipt_worker: render attempt failed, retrying")
			return err
		}
		pdfPath = path
		return nil
	})

	if renderErr != nil {
		rec.RetryCount++
		msg := renderErr.Error()
		rec.LastError = &msg
		if rec.RetryCount >= MaxReceiptRetries {
			rec.Status = model.ReceiptError
			rec.NextRetryAt = nil
			log.Error().
				Str("invoice_id", inv.ID.String()).
				Int("retries", rec.RetryCount).
				Msg("receipt_worker: max retries exceeded")
		} else {
			next := time.Now().Add(time.Duration(1<<uint(rec.RetryCount)) * time.Minute)
			rec.NextRetryAt = &next
		}
		_ = w.receiptRepo.Update(ctx, rec)
		return
	}

	rec.Status = model.ReceiptRendered
	rec.PDFPath = &pdfPath
	rec.NextRetryAt = nil
	rec.LastError = nil
	_ = w.receiptRepo.Update(ctx, rec)
	log.Info().Str("pdf", pdfPath).Str("invoice_id", inv.ID.String()).Msg("receipt_worker: PDF generated")

	if rec.EmailTo != nil && *rec.EmailTo != "" {
		emailJob := EmailJobPayload{
			ToEmail: *rec.EmailTo,
			Subject: fmt.Sprintf("Receipt #%d", inv.Number),
			Body:    fmt.Sprintf("Your receipt is attached.\nTotal: $%s", inv.Total.StringFixed(2)),
			PDFPath: pdfPath,
		}
		if err := w.dispatcher.EnqueueEmail(ctx, emailJob); err != nil {
			log.Warn().Err(err).Str("email", *rec.EmailTo).Msg("receipt_worker: failed to enqueue email")
		}
	}
}

func (w *ReceiptWorker) storeName(ctx context.Context) string {
	settings, err := w.settingRepo.GetAll(ctx)
	if err == nil {
		if name, ok := settings["store_name"]; ok && name != "" {
			return name
		}
	}
	return "BenchPOS"
}

// StartRetryLoop re-attempts failed renders whose next_retry_at has passed.
func (w *ReceiptWorker) StartRetryLoop(ctx context.Context, rdb *redis.Client) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.processRetries(ctx, rdb)
			}
		}
	}()
}

func (w *ReceiptWorker) processRetries(ctx context.Context, rdb *redis.Client) {
	due, err := w.receiptRepo.ListPendingRetries(ctx, time.Now(), 10)
	if err != nil {
		log.Error().Err(err).Msg("receipt_worker: failed to query pending retries")
		return
	}
	for i := range due {
		rec := &due[i]
		inv, err := w.invoiceRepo.FindByID(ctx, rec.InvoiceID)
		if err != nil {
			log.Error().Err(err).Str("invoice_id", rec.InvoiceID.String()).Msg("receipt_worker: invoice missing on retry")
			continue
		}
		w.render(ctx, rec, inv)
		if rec.Status == model.ReceiptError && rdb != nil {
			payload, _ := json.Marshal(map[string]string{"invoice_id": rec.InvoiceID.String(), "receipt_id": rec.ID.String()})
			SendToDLQ(ctx, rdb, QueueReceipt, "receipt", payload,
				fmt.Sprintf("max retries (%d) exceeded", MaxReceiptRetries), rec.RetryCount)
		}
	}
}

// withRetry calls fn up to maxAttempts times with exponential backoff.
// Backoff schedule: attempt 1 = immediate, 2 = 1s, 3 = 2s.
// Returns nil if any attempt succeeds; last error otherwise.
func withRetry(ctx context.Context, maxAttempts int, fn func(attempt int) error) error {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			wait := time.Duration(1<<uint(i-1)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := fn(i); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
