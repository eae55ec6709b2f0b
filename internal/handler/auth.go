package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mzlad1/BenchPOS-sub001/internal/apierror"
	"github.com/mzlad1/BenchPOS-sub001/internal/dto"
	"github.com/mzlad1/BenchPOS-sub001/internal/service"
)

type AuthHandler struct{ svc service.AuthService }

func NewAuthHandler(svc service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, apierror.New("Invalid credentials"))
			return
		}
		c.JSON(http.StatusInternalServerError, apierror.New("Login failed"))
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, apierror.New(err.Error()))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	resp, err := h.svc.GetUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.JSON(http.StatusNotFound, apierror.New("User not found"))
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	h.svc.Logout(c.Request.Context(), currentUserID(c))
	c.Status(http.StatusNoContent)
}

// CheckPermission answers the renderer's role gate probe for the
// authenticated user: GET /v1/auth/permission?role=manager
func (h *AuthHandler) CheckPermission(c *gin.Context) {
	required := c.DefaultQuery("role", "cashier")
	resp, err := h.svc.CheckPermission(c.Request.Context(), currentUserID(c), required)
	if err != nil {
		c.JSON(http.StatusNotFound, apierror.New("User not found"))
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req dto.PasswordResetRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := h.svc.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New("Could not process reset request"))
		return
	}
	// Same answer whether or not the address exists.
	c.JSON(http.StatusOK, gin.H{"message": "If the address is registered, a reset email was sent"})
}
