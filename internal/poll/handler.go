package poll

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/classpulse/backend/internal/broadcast"
	"github.com/classpulse/backend/internal/protocol"
	"github.com/classpulse/backend/pkg/response"
)

// CreateRequest is the body for POST /polls.
type CreateRequest struct {
	Question       string   `json:"question" binding:"required"`
	Options        []string `json:"options" binding:"required"`
	CorrectIndex   int      `json:"correct_index"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

// AnswerRequest is the body for POST /polls/current/answer. Browser
// students have no TCP session, so they identify by name.
type AnswerRequest struct {
	StudentName string `json:"student_name" binding:"required"`
	Choice      *int   `json:"choice" binding:"required"`
}

// Handler handles the poll HTTP endpoints.
type Handler struct {
	engine *Engine
	hub    *broadcast.Hub
}

func NewHandler(engine *Engine, hub *broadcast.Hub) *Handler {
	return &Handler{engine: engine, hub: hub}
}

// Create handles POST /polls.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p, err := h.engine.Create(req.Question, req.Options, req.CorrectIndex, req.TimeoutSeconds)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.Created(c, p.Snapshot())
}

// Start handles POST /polls/current/start and pushes the question to
// every connected student.
func (h *Handler) Start(c *gin.Context) {
	p, err := h.engine.Start()
	if err != nil {
		if errors.Is(err, ErrNoPoll) {
			response.NotFound(c, err.Error())
			return
		}
		response.Conflict(c, err.Error())
		return
	}
	snap := p.Snapshot()
	h.hub.Publish(protocol.TypePoll, protocol.Fields(snap))
	response.OK(c, snap)
}

// End handles POST /polls/current/end and broadcasts the final tallies.
func (h *Handler) End(c *gin.Context) {
	p, err := h.engine.End()
	if err != nil {
		if errors.Is(err, ErrNoPoll) {
			response.NotFound(c, err.Error())
			return
		}
		response.Conflict(c, err.Error())
		return
	}
	snap := p.Snapshot()
	h.hub.Publish(protocol.TypeResult, protocol.Fields(snap))
	response.OK(c, snap)
}

// Reveal handles POST /polls/current/reveal and broadcasts the tallies
// with the correct answer included.
func (h *Handler) Reveal(c *gin.Context) {
	p, err := h.engine.Reveal()
	if err != nil {
		if errors.Is(err, ErrNoPoll) {
			response.NotFound(c, err.Error())
			return
		}
		response.Conflict(c, err.Error())
		return
	}
	snap := p.Snapshot()
	h.hub.Publish(protocol.TypeResult, protocol.Fields(snap))
	response.OK(c, snap)
}

// Answer handles POST /polls/current/answer for browser students and
// broadcasts the updated tallies.
func (h *Handler) Answer(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p := h.engine.Current()
	if p == nil {
		response.NotFound(c, ErrNoPoll.Error())
		return
	}
	if err := h.engine.TallyStudent(p.ID, req.StudentName, *req.Choice); err != nil {
		switch {
		case errors.Is(err, ErrInvalidChoice):
			response.BadRequest(c, err.Error())
		case errors.Is(err, ErrAlreadyAnswered), errors.Is(err, ErrNotActive):
			response.Conflict(c, err.Error())
		default:
			response.BadRequest(c, err.Error())
		}
		return
	}
	snap := p.Snapshot()
	h.hub.Publish(protocol.TypeResult, protocol.Fields(snap))
	response.OK(c, snap)
}

// Current handles GET /polls/current.
func (h *Handler) Current(c *gin.Context) {
	p := h.engine.Current()
	if p == nil {
		response.NotFound(c, ErrNoPoll.Error())
		return
	}
	response.OK(c, p.Snapshot())
}

// Get handles GET /polls/:id.
func (h *Handler) Get(c *gin.Context) {
	p, ok := h.engine.Get(c.Param("id"))
	if !ok {
		response.NotFound(c, "poll not found")
		return
	}
	response.OK(c, p.Snapshot())
}
