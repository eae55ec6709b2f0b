package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mzlad1/BenchPOS-sub001/internal/apierror"
	"github.com/mzlad1/BenchPOS-sub001/internal/dto"
	"github.com/mzlad1/BenchPOS-sub001/internal/service"
)

type InvoicesHandler struct {
	svc      service.InvoiceService
	receipts service.ReceiptService
}

func NewInvoicesHandler(svc service.InvoiceService, receipts service.ReceiptService) *InvoicesHandler {
	return &InvoicesHandler{svc: svc, receipts: receipts}
}

func (h *InvoicesHandler) Create(c *gin.Context) {
	var req dto.CreateInvoiceRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Create(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, service.ErrInsufficientPayment) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, apierror.New(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *InvoicesHandler) List(c *gin.Context) {
	var filter dto.InvoiceFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	resp, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New("Failed to list invoices"))
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *InvoicesHandler) GetByID(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	resp, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, apierror.New("Invoice not found"))
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *InvoicesHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.UpdateInvoiceRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Update(c.Request.Context(), currentUserID(c), id, req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, service.ErrAlreadyVoided) {
			status = http.StatusConflict
		}
		c.JSON(status, apierror.New(err.Error()))
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *InvoicesHandler) Void(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.VoidInvoiceRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := h.svc.Void(c.Request.Context(), currentUserID(c), id, req.Reason); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, service.ErrAlreadyVoided) {
			status = http.StatusConflict
		}
		c.JSON(status, apierror.New(err.Error()))
		return
	}
	c.Status(http.StatusNoContent)
}

// Receipt returns the render state of an invoice's PDF receipt.
func (h *InvoicesHandler) Receipt(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	resp, err := h.receipts.GetByInvoice(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, apierror.New("Receipt not found"))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DownloadReceipt streams the rendered PDF file.
func (h *InvoicesHandler) DownloadReceipt(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	path, err := h.receipts.PDFPath(c.Request.Context(), id)
	if err != nil {
		status := http.StatusNotFound
		if err == service.ErrReceiptNotReady {
			status = http.StatusConflict
		}
		c.JSON(status, apierror.New(err.Error()))
		return
	}
	c.File(path)
}

// RerenderReceipt queues a fresh PDF render for the invoice.
func (h *InvoicesHandler) RerenderReceipt(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.receipts.Rerender(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New("Failed to queue render"))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}
