package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"modelcore/internal/modelconfig"
)

// ModelSettingHandler manages per-workspace model overrides.
type ModelSettingHandler struct {
	resolver *modelconfig.Resolver
}

// NewModelSettingHandler constructs a model setting handler.
func NewModelSettingHandler(resolver *modelconfig.Resolver) *ModelSettingHandler {
	return &ModelSettingHandler{resolver: resolver}
}

// List returns all stored overrides for the workspace.
func (h *ModelSettingHandler) List(c *gin.Context) {
	rows, err := h.resolver.ListSettings(c.Request.Context(), c.Param("workspace_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list settings failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": rows})
}

// Update validates and upserts the override row for one model.
func (h *ModelSettingHandler) Update(c *gin.Context) {
	var body modelconfig.UpdateInput
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	row, err := h.resolver.UpdateModelConfig(c.Request.Context(), c.Param("workspace_id"), c.Param("model_id"), body)
	if err != nil {
		var invalid *modelconfig.ValidationError
		if errors.As(err, &invalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update setting failed"})
		return
	}
	c.JSON(http.StatusOK, row)
}

// SetDefault makes the model the workspace default.
func (h *ModelSettingHandler) SetDefault(c *gin.Context) {
	err := h.resolver.SetDefaultModel(c.Request.Context(), c.Param("workspace_id"), c.Param("model_id"))
	if err != nil {
		var invalid *modelconfig.ValidationError
		if errors.As(err, &invalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "set default failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"default_model": c.Param("model_id")})
}

// GetDefault reports the workspace's default model, empty when unset.
func (h *ModelSettingHandler) GetDefault(c *gin.Context) {
	modelID, err := h.resolver.DefaultModel(c.Request.Context(), c.Param("workspace_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "default lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"default_model": modelID})
}

// Effective returns the merged configuration the chat pipeline would use
// for one model right now.
func (h *ModelSettingHandler) Effective(c *gin.Context) {
	effective := h.resolver.ComputeEffectiveConfig(c.Request.Context(), c.Param("workspace_id"), c.Param("model_id"))
	c.JSON(http.StatusOK, gin.H{
		"provider":      effective.Provider,
		"model":         effective.ModelID,
		"temperature":   effective.Temperature,
		"max_tokens":    effective.MaxTokens,
		"system_prompt": effective.SystemPrompt,
		"tool_choice":   effective.ToolChoice,
	})
}
