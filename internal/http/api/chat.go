package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"modelcore/internal/chat"
	"modelcore/internal/modelconfig"
	"modelcore/internal/thread"
)

// ChatHandler runs the chat pipeline and exposes thread history.
type ChatHandler struct {
	service *chat.Service
	threads *thread.Store
}

// NewChatHandler constructs a chat handler.
func NewChatHandler(service *chat.Service, threads *thread.Store) *ChatHandler {
	return &ChatHandler{service: service, threads: threads}
}

// Chat places a provider call and persists the exchange. Provider failures
// come back as HTTP 200 with success=false; only configuration problems
// map to 4xx.
func (h *ChatHandler) Chat(c *gin.Context) {
	var body chat.Request
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}
	body.WorkspaceID = c.Param("workspace_id")

	resp, err := h.service.Handle(c.Request.Context(), body)
	if err != nil {
		h.renderPipelineError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Validate runs the full pipeline without persisting anything.
func (h *ChatHandler) Validate(c *gin.Context) {
	var body chat.Request
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}
	body.WorkspaceID = c.Param("workspace_id")

	resp, err := h.service.Validate(c.Request.Context(), body)
	if err != nil {
		h.renderPipelineError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) renderPipelineError(c *gin.Context, err error) {
	var invalid *modelconfig.ValidationError
	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
	case errors.Is(err, chat.ErrNoModel):
		c.JSON(http.StatusBadRequest, gin.H{"error": "no model requested and no workspace default set"})
	case errors.Is(err, chat.ErrUnknownModel):
		c.JSON(http.StatusBadRequest, gin.H{"error": "model is not known"})
	case errors.Is(err, chat.ErrNoCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"error": "no credentials configured"})
	case errors.Is(err, thread.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "chat failed"})
	}
}

// ListThreads returns the workspace's threads, newest first.
func (h *ChatHandler) ListThreads(c *gin.Context) {
	rows, err := h.threads.List(c.Request.Context(), c.Param("workspace_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list threads failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": rows})
}

// ThreadMessages returns one thread's turns in order.
func (h *ChatHandler) ThreadMessages(c *gin.Context) {
	threadID, errParse := strconv.ParseUint(c.Param("thread_id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid thread id"})
		return
	}

	rows, err := h.threads.Messages(c.Request.Context(), c.Param("workspace_id"), threadID)
	if err != nil {
		if errors.Is(err, thread.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list messages failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": rows})
}
