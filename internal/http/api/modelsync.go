package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"modelcore/internal/registry"
	"modelcore/internal/syncer"
)

// ModelHandler exposes the capability catalog and its sync controls.
type ModelHandler struct {
	registry *registry.Registry
	syncer   *syncer.Syncer
}

// NewModelHandler constructs a model handler.
func NewModelHandler(reg *registry.Registry, sync *syncer.Syncer) *ModelHandler {
	return &ModelHandler{registry: reg, syncer: sync}
}

// List returns all enabled models known to the registry.
func (h *ModelHandler) List(c *gin.Context) {
	infos, err := h.registry.ListModels(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list models failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": infos})
}

// TriggerSync enqueues a catalog refresh and acknowledges immediately; it
// never waits for the sync to run.
func (h *ModelHandler) TriggerSync(c *gin.Context) {
	job, err := h.syncer.Submit(c.Param("workspace_id"))
	if err != nil {
		if errors.Is(err, syncer.ErrQueueFull) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "sync queue full"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync trigger failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "sync started", "state": string(job.State())})
}

// disableRequest toggles a model's availability.
type disableRequest struct {
	Disabled *bool `json:"disabled" binding:"required"`
}

// SetDisabled removes a model from rotation, or restores it. The capability
// row stays in place so a later sync cannot resurrect a removed model.
func (h *ModelHandler) SetDisabled(c *gin.Context) {
	var body disableRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || body.Disabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	err := h.registry.SetDisabled(c.Request.Context(), c.Param("provider"), c.Param("model_id"), *body.Disabled)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "model not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update model failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": c.Param("model_id"), "disabled": *body.Disabled})
}

// SyncStatus returns the per-provider sync records for the workspace.
func (h *ModelHandler) SyncStatus(c *gin.Context) {
	rows, err := h.syncer.Statuses(c.Request.Context(), c.Param("workspace_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync status lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"statuses": rows, "stale": h.syncer.NeedsSync(c.Request.Context(), c.Param("workspace_id"))})
}
