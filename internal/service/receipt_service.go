package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mzlad1/BenchPOS-sub001/internal/dto"
	"github.com/mzlad1/BenchPOS-sub001/internal/model"
	"github.com/mzlad1/BenchPOS-sub001/internal/repository"
	"github.com/mzlad1/BenchPOS-sub001/internal/worker"
)

var ErrReceiptNotReady = errors.New("receipt has not been rendered yet")

type ReceiptService interface {
	GetByInvoice(ctx context.Context, invoiceID uuid.UUID) (*dto.ReceiptResponse, error)
	// PDFPath returns the rendered file path for download.
	PDFPath(ctx context.Context, id uuid.UUID) (string, error)
	// Rerender queues a fresh render, e.g. after a receipt template change
	// or a stuck error state.
	Rerender(ctx context.Context, invoiceID uuid.UUID) error
}

type receiptService struct {
	repo       repository.ReceiptRepository
	dispatcher *worker.Dispatcher
}

func NewReceiptService(repo repository.ReceiptRepository, dispatcher *worker.Dispatcher) ReceiptService {
	return &receiptService{repo: repo, dispatcher: dispatcher}
}

func (s *receiptService) GetByInvoice(ctx context.Context, invoiceID uuid.UUID) (*dto.ReceiptResponse, error) {
	rec, err := s.repo.FindByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return &dto.ReceiptResponse{
		ID:        rec.ID.String(),
		InvoiceID: rec.InvoiceID.String(),
		Status:    rec.Status,
		PDFPath:   rec.PDFPath,
	}, nil
}

func (s *receiptService) PDFPath(ctx context.Context, id uuid.UUID) (string, error) {
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.Status != model.ReceiptRendered || rec.PDFPath == nil {
		return "", ErrReceiptNotReady
	}
	return *rec.PDFPath, nil
}

func (s *receiptService) Rerender(ctx context.Context, invoiceID uuid.UUID) error {
	return s.dispatcher.EnqueueReceipt(ctx, worker.ReceiptJobPayload{InvoiceID: invoiceID.String()})
}
