package questionbank

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/classpulse/backend/pkg/response"
)

// QuestionRequest is the body for POST /questions and PUT
// /questions/:id.
type QuestionRequest struct {
	Text             string   `json:"text" binding:"required"`
	Options          []string `json:"options" binding:"required,len=4"`
	CorrectIndex     int      `json:"correct_index"`
	Tags             []string `json:"tags"`
	Difficulty       string   `json:"difficulty"`
	TimeLimitSeconds int      `json:"time_limit_seconds"`
}

// BatchRequest is the body for POST /questions/batch.
type BatchRequest struct {
	Questions []QuestionRequest `json:"questions" binding:"required,min=1"`
}

func (r *QuestionRequest) toQuestion() *Question {
	q := &Question{
		Text:             r.Text,
		CorrectIndex:     r.CorrectIndex,
		Tags:             r.Tags,
		Difficulty:       r.Difficulty,
		TimeLimitSeconds: r.TimeLimitSeconds,
	}
	copy(q.Options[:], r.Options)
	return q
}

// Handler handles question bank HTTP endpoints.
type Handler struct {
	bank Bank
}

func NewHandler(bank Bank) *Handler {
	return &Handler{bank: bank}
}

// Create handles POST /questions.
func (h *Handler) Create(c *gin.Context) {
	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	q := req.toQuestion()
	if err := h.bank.Add(c.Request.Context(), q); err != nil {
		if errors.Is(err, ErrInvalidQuestion) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Internal(c, err.Error())
		return
	}
	response.Created(c, q)
}

// CreateBatch handles POST /questions/batch. One invalid question
// rejects the whole batch.
func (h *Handler) CreateBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	qs := make([]*Question, 0, len(req.Questions))
	for i := range req.Questions {
		qs = append(qs, req.Questions[i].toQuestion())
	}
	ids, err := h.bank.AddBatch(c.Request.Context(), qs)
	if err != nil {
		if errors.Is(err, ErrInvalidQuestion) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Internal(c, err.Error())
		return
	}
	response.Created(c, gin.H{"ids": ids})
}

// List handles GET /questions?q=...&tag=...&difficulty=....
func (h *Handler) List(c *gin.Context) {
	qs, err := h.bank.Search(c.Request.Context(),
		c.Query("q"), c.Query("tag"), c.Query("difficulty"))
	if err != nil {
		response.Internal(c, err.Error())
		return
	}
	response.OK(c, qs)
}

// Get handles GET /questions/:id.
func (h *Handler) Get(c *gin.Context) {
	q, err := h.bank.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.Internal(c, err.Error())
		return
	}
	response.OK(c, q)
}

// Update handles PUT /questions/:id.
func (h *Handler) Update(c *gin.Context) {
	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	q := req.toQuestion()
	q.ID = c.Param("id")
	if err := h.bank.Update(c.Request.Context(), q); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, ErrInvalidQuestion):
			response.BadRequest(c, err.Error())
		default:
			response.Internal(c, err.Error())
		}
		return
	}
	response.OK(c, q)
}

// Delete handles DELETE /questions/:id.
func (h *Handler) Delete(c *gin.Context) {
	if err := h.bank.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.Internal(c, err.Error())
		return
	}
	response.NoContent(c)
}
