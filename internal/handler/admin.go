package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mzlad1/BenchPOS-sub001/internal/apierror"
	"github.com/mzlad1/BenchPOS-sub001/internal/dto"
	"github.com/mzlad1/BenchPOS-sub001/internal/service"
)

// AdminHandler serves the audit trail and company settings.
type AdminHandler struct {
	activity service.ActivityService
	settings service.SettingsService
}

func NewAdminHandler(activity service.ActivityService, settings service.SettingsService) *AdminHandler {
	return &AdminHandler{activity: activity, settings: settings}
}

// Activity lists the append-only audit trail, newest first.
func (h *AdminHandler) Activity(c *gin.Context) {
	var filter dto.ActivityFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	resp, err := h.activity.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New("Failed to list activity"))
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AdminHandler) GetSettings(c *gin.Context) {
	settings, err := h.settings.GetAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New("Failed to load settings"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var req dto.UpdateSettingsRequest
	if !bindAndValidate(c, &req) {
		return
	}
	settings, err := h.settings.Update(c.Request.Context(), req.Settings)
	if err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New("Failed to save settings"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}
