package quiz

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/classpulse/backend/internal/broadcast"
	"github.com/classpulse/backend/internal/protocol"
	"github.com/classpulse/backend/internal/questionbank"
	"github.com/classpulse/backend/pkg/response"
)

// QuizRequest is the body for POST /quizzes and PUT /quizzes/:id.
type QuizRequest struct {
	Title           string   `json:"title" binding:"required"`
	Description     string   `json:"description"`
	QuestionIDs     []string `json:"question_ids" binding:"required"`
	PerQuestionTime int      `json:"per_question_time"`
	TotalTime       int      `json:"total_time"`
	PerCorrectScore int      `json:"per_correct_score"`
}

// AnswerRequest is the body for POST /quizzes/active/answer. Browser
// students have no TCP session, so they identify by name.
type AnswerRequest struct {
	StudentName string `json:"student_name" binding:"required"`
	Choice      *int   `json:"choice" binding:"required"`
}

// Handler handles the quiz HTTP endpoints.
type Handler struct {
	manager *Manager
	bank    questionbank.Bank
	hub     *broadcast.Hub
}

func NewHandler(manager *Manager, bank questionbank.Bank, hub *broadcast.Hub) *Handler {
	return &Handler{manager: manager, bank: bank, hub: hub}
}

// Create handles POST /quizzes.
func (h *Handler) Create(c *gin.Context) {
	var req QuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	q, err := h.manager.Create(req.Title, req.Description, req.QuestionIDs,
		req.PerQuestionTime, req.TotalTime, req.PerCorrectScore)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.Created(c, q)
}

// List handles GET /quizzes.
func (h *Handler) List(c *gin.Context) {
	response.OK(c, h.manager.List())
}

// Get handles GET /quizzes/:id.
func (h *Handler) Get(c *gin.Context) {
	q, err := h.manager.Get(c.Param("id"))
	if err != nil {
		response.NotFound(c, err.Error())
		return
	}
	response.OK(c, q)
}

// Update handles PUT /quizzes/:id. Running and ended quizzes are
// immutable.
func (h *Handler) Update(c *gin.Context) {
	var req QuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	q, err := h.manager.Update(c.Param("id"), req.Title, req.Description,
		req.QuestionIDs, req.PerQuestionTime, req.TotalTime, req.PerCorrectScore)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, ErrImmutable):
			response.Conflict(c, err.Error())
		default:
			response.BadRequest(c, err.Error())
		}
		return
	}
	response.OK(c, q)
}

// Delete handles DELETE /quizzes/:id.
func (h *Handler) Delete(c *gin.Context) {
	if err := h.manager.Delete(c.Param("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.Conflict(c, err.Error())
		return
	}
	response.NoContent(c)
}

// MarkReady handles POST /quizzes/:id/ready.
func (h *Handler) MarkReady(c *gin.Context) {
	q, err := h.manager.MarkReady(c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.Conflict(c, err.Error())
		return
	}
	response.OK(c, q)
}

// Launch handles POST /quizzes/:id/launch: resolves the quiz against
// the bank, opens the first question and pushes it to students.
func (h *Handler) Launch(c *gin.Context) {
	rt, err := h.manager.Launch(c.Request.Context(), c.Param("id"), h.bank)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, questionbank.ErrNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, ErrQuizRunning):
			response.Conflict(c, err.Error())
		default:
			response.BadRequest(c, err.Error())
		}
		return
	}
	// Launch is idempotent for the running quiz; only open question 0
	// on the first call.
	if _, _, started := rt.CurrentQuestion(); !started {
		q, err := rt.StartFirstQuestion()
		if err != nil {
			response.Conflict(c, err.Error())
			return
		}
		h.broadcastQuestion(rt, q, 0)
	}
	response.OK(c, gin.H{
		"quiz_id":         rt.QuizID,
		"total_questions": rt.TotalQuestions(),
	})
}

// Next handles POST /quizzes/active/next. Running past the last
// question reports completion instead of advancing.
func (h *Handler) Next(c *gin.Context) {
	rt := h.manager.ActiveRuntime()
	if rt == nil {
		response.NotFound(c, ErrNoActiveQuiz.Error())
		return
	}
	q, ok := rt.NextQuestion()
	if !ok {
		response.OK(c, gin.H{"done": true})
		return
	}
	_, index, _ := rt.CurrentQuestion()
	h.broadcastQuestion(rt, q, index)
	response.OK(c, gin.H{"done": false, "index": index})
}

// Answer handles POST /quizzes/active/answer for browser students. The
// reply acknowledges the submission without leaking correctness; that
// waits for the reveal.
func (h *Handler) Answer(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	rt := h.manager.ActiveRuntime()
	if rt == nil {
		response.NotFound(c, ErrNoActiveQuiz.Error())
		return
	}
	if _, err := rt.SubmitAnswer(req.StudentName, *req.Choice); err != nil {
		switch {
		case errors.Is(err, ErrInvalidChoice):
			response.BadRequest(c, err.Error())
		default:
			response.Conflict(c, err.Error())
		}
		return
	}
	_, index, _ := rt.CurrentQuestion()
	response.OK(c, gin.H{"quiz_id": rt.QuizID, "index": index})
}

// Reveal handles POST /quizzes/active/reveal and broadcasts the answer
// with the per-option counts.
func (h *Handler) Reveal(c *gin.Context) {
	rt := h.manager.ActiveRuntime()
	if rt == nil {
		response.NotFound(c, ErrNoActiveQuiz.Error())
		return
	}
	q, index, ok := rt.CurrentQuestion()
	if !ok {
		response.Conflict(c, ErrNoActiveQuestion.Error())
		return
	}
	rt.RevealCurrentQuestion()
	counts := rt.CurrentCounts()
	h.hub.Publish(protocol.TypeQuizReveal, map[string]any{
		"quizId":       rt.QuizID,
		"index":        index,
		"correctIndex": q.CorrectIndex,
		"counts":       counts,
	})
	response.OK(c, gin.H{"index": index, "correct_index": q.CorrectIndex, "counts": counts})
}

// End handles POST /quizzes/active/end and broadcasts the final
// leaderboard.
func (h *Handler) End(c *gin.Context) {
	board, err := h.manager.End()
	if err != nil {
		response.NotFound(c, err.Error())
		return
	}
	h.hub.Publish("quizEnded", map[string]any{"leaderboard": board})
	response.OK(c, gin.H{"leaderboard": board})
}

// Status handles GET /quizzes/active/status.
func (h *Handler) Status(c *gin.Context) {
	rt := h.manager.ActiveRuntime()
	if rt == nil {
		response.NotFound(c, ErrNoActiveQuiz.Error())
		return
	}
	status := gin.H{
		"quiz_id":         rt.QuizID,
		"title":           rt.Title,
		"total_questions": rt.TotalQuestions(),
		"participants":    rt.ParticipantCount(),
		"leaderboard":     rt.Leaderboard(),
		"time_exceeded":   rt.IsQuizTimeExceeded(),
	}
	if _, index, ok := rt.CurrentQuestion(); ok {
		status["index"] = index
		status["counts"] = rt.CurrentCounts()
		status["revealed"] = rt.CurrentQuestionRevealed()
		status["remaining_seconds"] = rt.RemainingQuestionSeconds()
		status["question_time_exceeded"] = rt.IsQuestionTimeExceeded()
	}
	response.OK(c, status)
}

// Leaderboard handles GET /quizzes/active/leaderboard.
func (h *Handler) Leaderboard(c *gin.Context) {
	rt := h.manager.ActiveRuntime()
	if rt == nil {
		response.NotFound(c, ErrNoActiveQuiz.Error())
		return
	}
	response.OK(c, rt.Leaderboard())
}

// broadcastQuestion pushes a question to students without its correct
// index.
func (h *Handler) broadcastQuestion(rt *Runtime, q *questionbank.Question, index int) {
	h.hub.Publish("quizQuestion", map[string]any{
		"quizId":           rt.QuizID,
		"index":            index,
		"total":            rt.TotalQuestions(),
		"question":         q.Text,
		"options":          q.Options,
		"remainingSeconds": rt.RemainingQuestionSeconds(),
	})
}
