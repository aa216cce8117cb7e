package chat

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/classpulse/backend/pkg/response"
)

// ToggleRequest is the body for POST /chat/enabled.
type ToggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// PostRequest is the body for POST /chat/messages, the browser path into
// the same chat the TCP sessions use.
type PostRequest struct {
	Username string `json:"username" binding:"required"`
	Message  string `json:"message" binding:"required"`
}

// Handler handles the chat HTTP endpoints.
type Handler struct {
	manager *Manager
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// Post handles POST /chat/messages. The manager broadcasts the message
// itself.
func (h *Handler) Post(c *gin.Context) {
	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	msg, err := h.manager.Post(req.Username, req.Message)
	if err != nil {
		if errors.Is(err, ErrDisabled) {
			response.Conflict(c, err.Error())
			return
		}
		response.BadRequest(c, err.Error())
		return
	}
	response.Created(c, msg)
}

// History handles GET /chat/history?limit=N.
func (h *Handler) History(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = n
	}
	response.OK(c, h.manager.History(limit))
}

// Clear handles DELETE /chat/history.
func (h *Handler) Clear(c *gin.Context) {
	h.manager.Clear()
	response.NoContent(c)
}

// Toggle handles POST /chat/enabled.
func (h *Handler) Toggle(c *gin.Context) {
	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	h.manager.SetEnabled(*req.Enabled)
	response.OK(c, gin.H{"enabled": h.manager.Enabled()})
}
