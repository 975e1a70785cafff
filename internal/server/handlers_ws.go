package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/finnlinderman-RL/fwsl-questions-api/internal/domain"
	apperrors "github.com/finnlinderman-RL/fwsl-questions-api/internal/errors"
	"github.com/finnlinderman-RL/fwsl-questions-api/internal/logging"
	"github.com/finnlinderman-RL/fwsl-questions-api/internal/metrics"
)

var upgrader = gws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // clients connect from arbitrary origins
	},
}

// actionEnvelope is the inbound client message. Action selects the operation;
// the remaining fields are per-action payload, validated in runAction.
type actionEnvelope struct {
	Action     string `json:"action"`
	RoundID    string `json:"roundID"`
	Username   string `json:"username"`
	Question   string `json:"question"`
	Answerer   string `json:"answerer"`
	QuestionID string `json:"questionID"`
}

type ackReply struct {
	Type   string `json:"type"`
	Action string `json:"action"`
}

type errorReply struct {
	Type      string              `json:"type"`
	Action    string              `json:"action"`
	Error     string              `json:"error"`
	ErrorType apperrors.ErrorType `json:"errorType"`
	Context   map[string]any      `json:"context,omitempty"`
}

func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()
	ok, reason := s.limits.Acquire(ip)
	if !ok {
		metrics.ConnectionsRejectedTotal.WithLabelValues(string(reason)).Inc()
		return c.String(http.StatusTooManyRequests, "connection limit reached")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.limits.Release(ip)
		slog.Warn("websocket upgrade failed", "remote_ip", ip, "error", err)
		return nil
	}

	// The connection outlives the upgrade request, so its work runs on a
	// background context, not the request's.
	ctx := context.Background()
	connID := uuid.NewString()
	logger := logging.WithConnection(connID)

	s.hub.Register(connID, conn)
	if err := s.service.Register(ctx, connID); err != nil {
		logger.Error("registering connection failed", "error", err)
		s.hub.Unregister(connID)
		s.limits.Release(ip)
		return nil
	}
	logger.Info("client connected", "remote_ip", ip)

	// Read pump, blocks until the client goes away. Each action runs in its
	// own goroutine so a slow one does not stall the socket.
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		go s.dispatchAction(ctx, connID, data)
	}

	s.hub.Unregister(connID)
	if err := s.service.Disconnect(ctx, connID); err != nil {
		logger.Error("disconnect cleanup failed", "error", err)
	}
	s.limits.Release(ip)
	logger.Info("client disconnected")
	return nil
}

// dispatchAction decodes one envelope, runs the action and sends exactly one
// reply to the invoking connection: an ack on success, a structured error
// otherwise.
func (s *Server) dispatchAction(ctx context.Context, connID string, data []byte) {
	var env actionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		metrics.ActionsTotal.WithLabelValues("unknown", "error").Inc()
		s.replyError(ctx, connID, "", apperrors.ValidationError("message is not valid JSON"))
		return
	}

	action := env.Action
	if action == "" {
		action = "unknown"
	}
	timer := prometheus.NewTimer(metrics.ActionDuration.WithLabelValues(action))
	err := s.runAction(ctx, connID, env)
	timer.ObserveDuration()

	if err != nil {
		metrics.ActionsTotal.WithLabelValues(action, "error").Inc()
		s.replyError(ctx, connID, env.Action, toActionError(err))
		return
	}
	metrics.ActionsTotal.WithLabelValues(action, "ok").Inc()
	s.reply(ctx, connID, ackReply{Type: "ack", Action: env.Action})
}

func (s *Server) runAction(ctx context.Context, connID string, env actionEnvelope) error {
	switch env.Action {
	case "join":
		if env.RoundID == "" {
			return apperrors.ValidationError("'roundID' missing from payload")
		}
		if env.Username == "" {
			return apperrors.ValidationError("'username' missing from payload")
		}
		return s.service.Join(ctx, connID, env.RoundID, env.Username)
	case "submitQuestion":
		if env.Question == "" {
			return apperrors.ValidationError("'question' missing from payload")
		}
		_, err := s.service.SubmitQuestion(ctx, connID, env.Question)
		return err
	case "startRound":
		return s.service.RequestStart(ctx, connID)
	case "setAnswerer":
		if env.Answerer == "" {
			return apperrors.ValidationError("'answerer' missing from payload")
		}
		return s.service.AssignAnswerer(ctx, connID, env.Answerer)
	case "revealQuestion":
		if env.QuestionID == "" {
			return apperrors.ValidationError("'questionID' missing from payload")
		}
		return s.service.ResolveQuestion(ctx, connID, env.QuestionID)
	case "pickAnswerer":
		return s.service.AnswererCandidates(ctx, connID)
	case "endRound":
		return s.service.EndRound(ctx, connID)
	default:
		return apperrors.ValidationError(fmt.Sprintf("unrecognized action %q", env.Action))
	}
}

func (s *Server) reply(ctx context.Context, connID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshalling reply failed", "connection_id", connID, "error", err)
		return
	}
	if err := s.hub.Post(ctx, connID, data); err != nil {
		slog.Debug("reply not delivered", "connection_id", connID, "error", err)
	}
}

func (s *Server) replyError(ctx context.Context, connID, action string, appErr *apperrors.Error) {
	if appErr.Type == apperrors.TypeInternal {
		slog.Error("action failed", "connection_id", connID, "action", action, "error", appErr)
	} else {
		slog.Info("action rejected", "connection_id", connID, "action", action, "error", appErr)
	}
	s.reply(ctx, connID, errorReply{
		Type:      "error",
		Action:    action,
		Error:     appErr.Message,
		ErrorType: appErr.Type,
		Context:   appErr.Context,
	})
}

// toActionError maps service errors onto the reply taxonomy.
func toActionError(err error) *apperrors.Error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrConnectionNotFound):
		return apperrors.NotFoundError("connection not found")
	case errors.Is(err, domain.ErrRoundNotFound):
		return apperrors.NotFoundError("round not found")
	case errors.Is(err, domain.ErrQuestionNotFound):
		return apperrors.NotFoundError("question not found")
	case errors.Is(err, domain.ErrNotAMember):
		return apperrors.NotFoundError("answerer is not a member of the round")
	case errors.Is(err, domain.ErrNotInRound):
		return apperrors.PreconditionError("join a round first")
	case errors.Is(err, domain.ErrRoundStarted):
		return apperrors.PreconditionError("round already started")
	default:
		return apperrors.InternalError("action failed", err)
	}
}
