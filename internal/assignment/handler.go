package assignment

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/classpulse/backend/pkg/response"
)

// CreateRequest is the body for POST /assignments.
type CreateRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
}

// Handler handles assignment HTTP endpoints.
type Handler struct {
	manager *Manager
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// Create handles POST /assignments.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	a, err := h.manager.Create(req.Title, req.Description, req.DueDate)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.Created(c, a)
}

// List handles GET /assignments.
func (h *Handler) List(c *gin.Context) {
	response.OK(c, h.manager.List())
}

// Get handles GET /assignments/:id.
func (h *Handler) Get(c *gin.Context) {
	a, err := h.manager.Get(c.Param("id"))
	if err != nil {
		response.NotFound(c, err.Error())
		return
	}
	response.OK(c, a)
}

// Uploads handles GET /assignments/:id/uploads.
func (h *Handler) Uploads(c *gin.Context) {
	ups, err := h.manager.Uploads(c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.Internal(c, err.Error())
		return
	}
	response.OK(c, ups)
}
