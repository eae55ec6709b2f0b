package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mzlad1/BenchPOS-sub001/internal/apierror"
	"github.com/mzlad1/BenchPOS-sub001/internal/dto"
	syncpkg "github.com/mzlad1/BenchPOS-sub001/internal/sync"
)

type SyncHandler struct {
	engine *syncpkg.Engine
	hub    *syncpkg.Hub
	reauth *syncpkg.ReauthRegistry
}

func NewSyncHandler(engine *syncpkg.Engine, hub *syncpkg.Hub, reauth *syncpkg.ReauthRegistry) *SyncHandler {
	return &SyncHandler{engine: engine, hub: hub, reauth: reauth}
}

// Status is the read-only probe behind the renderer's unsynced-data check.
// Safe to poll; it never mutates sync state.
func (h *SyncHandler) Status(c *gin.Context) {
	resp, err := h.engine.CheckUnsynced(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New("Failed to compute sync status"))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Perform runs a full sync pass. Concurrent calls get 409: one run at a
// time, and the renderer treats 409 as "already syncing".
func (h *SyncHandler) Perform(c *gin.Context) {
	resp, err := h.engine.PerformSync(c.Request.Context())
	if err != nil {
		if errors.Is(err, syncpkg.ErrSyncInFlight) {
			c.JSON(http.StatusConflict, apierror.New(err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, apierror.New("Sync failed to start"))
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SyncHandler) LastSync(c *gin.Context) {
	last, err := h.engine.LastSync(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New("Failed to read sync state"))
		return
	}
	resp := dto.LastSyncResponse{}
	if last != nil {
		s := last.Format(time.RFC3339)
		resp.LastSyncTime = &s
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SyncHandler) Online(c *gin.Context) {
	c.JSON(http.StatusOK, dto.OnlineStatusResponse{Online: h.engine.CheckOnline(c.Request.Context())})
}

// Events streams sync lifecycle notifications to the renderer as
// server-sent events: sync-started, sync-progress, sync-completed,
// online-status-changed, unsynced-data-available, show-reauth-dialog.
func (h *SyncHandler) Events(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	events, cancel := h.hub.Subscribe()
	defer cancel()

	// Heartbeat keeps intermediaries from closing an idle stream.
	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case evt, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(evt.Type, evt.Payload)
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", nil)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// ResolveReauth delivers the operator's credentials to a waiting re-auth
// channel. Each channel fires at most once; a second resolution, or one
// arriving after the timeout, gets 404.
func (h *SyncHandler) ResolveReauth(c *gin.Context) {
	channelID := c.Param("id")
	var req dto.ReauthResolveRequest
	if !bindAndValidate(c, &req) {
		return
	}
	err := h.reauth.Resolve(channelID, syncpkg.Credentials{Email: req.Email, Password: req.Password}, true)
	if err != nil {
		c.JSON(http.StatusNotFound, apierror.New("Re-auth channel not found or already resolved"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolved": true})
}

// CancelReauth dismisses the dialog without credentials.
func (h *SyncHandler) CancelReauth(c *gin.Context) {
	channelID := c.Param("id")
	if err := h.reauth.Resolve(channelID, syncpkg.Credentials{}, false); err != nil {
		c.JSON(http.StatusNotFound, apierror.New("Re-auth channel not found or already resolved"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolved": true})
}
