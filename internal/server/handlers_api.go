package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/finnlinderman-RL/fwsl-questions-api/internal/domain"
	apperrors "github.com/finnlinderman-RL/fwsl-questions-api/internal/errors"
)

// The REST surface manages question records directly, for tooling and round
// preparation. Everything routes through the pool so the pending counter
// stays in lock-step with the rows.

type questionRequest struct {
	Text     string `json:"text"`
	AuthorID string `json:"authorID"`
}

type questionResponse struct {
	RoundID    string `json:"roundID"`
	QuestionID string `json:"questionID"`
	Text       string `json:"text"`
	AuthorID   string `json:"authorID,omitempty"`
}

func toQuestionResponse(q *domain.Question) questionResponse {
	return questionResponse{
		RoundID:    q.RoundID,
		QuestionID: q.ID,
		Text:       q.Text,
		AuthorID:   q.AuthorID,
	}
}

func (s *Server) handleCreateQuestion(c echo.Context) error {
	var req questionRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("request body is not valid JSON")
	}
	if req.Text == "" {
		return apperrors.ValidationError("'text' missing from payload")
	}

	question := domain.Question{
		RoundID:  c.Param("roundID"),
		ID:       uuid.NewString(),
		Text:     req.Text,
		AuthorID: req.AuthorID,
	}
	pending, err := s.pool.Add(c.Request().Context(), question)
	if err != nil {
		return toActionError(err)
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"question":         toQuestionResponse(&question),
		"pendingQuestions": pending,
	})
}

func (s *Server) handleListQuestions(c echo.Context) error {
	questions, err := s.pool.List(c.Request().Context(), c.Param("roundID"))
	if err != nil {
		return toActionError(err)
	}

	out := make([]questionResponse, len(questions))
	for i := range questions {
		out[i] = toQuestionResponse(&questions[i])
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetQuestion(c echo.Context) error {
	question, err := s.pool.Get(c.Request().Context(), c.Param("roundID"), c.Param("questionID"))
	if err != nil {
		return toActionError(err)
	}
	return c.JSON(http.StatusOK, toQuestionResponse(question))
}

func (s *Server) handleUpdateQuestion(c echo.Context) error {
	var req questionRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("request body is not valid JSON")
	}
	if req.Text == "" {
		return apperrors.ValidationError("'text' missing from payload")
	}

	if err := s.pool.Update(c.Request().Context(), c.Param("roundID"), c.Param("questionID"), req.Text); err != nil {
		return toActionError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "updated"})
}

// handleDeleteQuestion consumes the question: the row goes away and the
// round's pending counter drops, same as an in-game reveal. Deleting twice
// yields 404.
func (s *Server) handleDeleteQuestion(c echo.Context) error {
	question, pending, err := s.pool.Consume(c.Request().Context(), c.Param("roundID"), c.Param("questionID"))
	if err != nil {
		return toActionError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"question":         toQuestionResponse(question),
		"pendingQuestions": pending,
	})
}
