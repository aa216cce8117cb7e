package qa

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/classpulse/backend/pkg/response"
)

// SubmitRequest is the body for POST /qa/questions.
type SubmitRequest struct {
	StudentName string `json:"student_name" binding:"required"`
	Text        string `json:"text" binding:"required"`
}

// AnswerRequest is the body for POST /qa/questions/:id/answer.
type AnswerRequest struct {
	Answer string `json:"answer" binding:"required"`
}

// Handler handles Q&A HTTP endpoints.
type Handler struct {
	manager *Manager
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// Submit handles POST /qa/questions.
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	q, err := h.manager.Submit(req.StudentName, req.Text)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.Created(c, q)
}

// List handles GET /qa/questions?unanswered=true.
func (h *Handler) List(c *gin.Context) {
	unanswered := c.Query("unanswered") == "true"
	response.OK(c, h.manager.List(unanswered))
}

// Answer handles POST /qa/questions/:id/answer.
func (h *Handler) Answer(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return
	}
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	q, err := h.manager.Answer(id, req.Answer)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.BadRequest(c, err.Error())
		return
	}
	response.OK(c, q)
}

// Delete handles DELETE /qa/questions/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return
	}
	if err := h.manager.Delete(id); err != nil {
		response.NotFound(c, err.Error())
		return
	}
	response.NoContent(c)
}

// Clear handles DELETE /qa/questions.
func (h *Handler) Clear(c *gin.Context) {
	h.manager.Clear()
	response.NoContent(c)
}
