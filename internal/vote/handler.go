package vote

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/classpulse/backend/internal/broadcast"
	"github.com/classpulse/backend/internal/protocol"
	"github.com/classpulse/backend/pkg/response"
)

// CreateRequest is the body for POST /votes.
type CreateRequest struct {
	Question    string   `json:"question" binding:"required"`
	Options     []string `json:"options" binding:"required"`
	AllowRevote bool     `json:"allow_revote"`
	Deadline    string   `json:"deadline"`
}

// CastRequest is the body for POST /votes/:id/cast. Browser students
// have no TCP session, so they identify by name.
type CastRequest struct {
	StudentName string `json:"student_name" binding:"required"`
	Choice      *int   `json:"choice" binding:"required"`
}

// Handler handles the vote HTTP endpoints.
type Handler struct {
	engine *Engine
	hub    *broadcast.Hub
}

func NewHandler(engine *Engine, hub *broadcast.Hub) *Handler {
	return &Handler{engine: engine, hub: hub}
}

// Create handles POST /votes.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	v, err := h.engine.Create(req.Question, req.Options, req.AllowRevote, req.Deadline)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.Created(c, v.Snapshot())
}

// List handles GET /votes.
func (h *Handler) List(c *gin.Context) {
	votes := h.engine.All()
	out := make([]Snapshot, 0, len(votes))
	for _, v := range votes {
		out = append(out, v.Snapshot())
	}
	response.OK(c, out)
}

// Get handles GET /votes/:id.
func (h *Handler) Get(c *gin.Context) {
	v, err := h.engine.Get(c.Param("id"))
	if err != nil {
		response.NotFound(c, err.Error())
		return
	}
	response.OK(c, v.Snapshot())
}

// Open handles POST /votes/:id/open and pushes the ballot to students.
func (h *Handler) Open(c *gin.Context) {
	v, err := h.engine.Open(c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.Conflict(c, err.Error())
		return
	}
	snap := v.Snapshot()
	h.hub.Publish(protocol.TypeVote, protocol.Fields(snap))
	response.OK(c, snap)
}

// Cast handles POST /votes/:id/cast for browser students and broadcasts
// the updated tallies.
func (h *Handler) Cast(c *gin.Context) {
	var req CastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	id := c.Param("id")
	if err := h.engine.Cast(id, req.StudentName, *req.Choice); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, ErrInvalidChoice):
			response.BadRequest(c, err.Error())
		default:
			response.Conflict(c, err.Error())
		}
		return
	}
	v, err := h.engine.Get(id)
	if err != nil {
		response.NotFound(c, err.Error())
		return
	}
	snap := v.Snapshot()
	h.hub.Publish(protocol.TypeVote, protocol.Fields(snap))
	response.OK(c, snap)
}

// Close handles POST /votes/:id/close and broadcasts the outcome,
// winners included.
func (h *Handler) Close(c *gin.Context) {
	v, err := h.engine.Close(c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.Conflict(c, err.Error())
		return
	}
	snap := v.Snapshot()
	h.hub.Publish(protocol.TypeVoteClosed, protocol.Fields(snap))
	response.OK(c, snap)
}
