package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)

	// Gameplay websocket
	s.echo.GET("/ws", s.handleWebSocket)

	// Question records
	s.echo.POST("/api/rounds/:roundID/questions", s.handleCreateQuestion)
	s.echo.GET("/api/rounds/:roundID/questions", s.handleListQuestions)
	s.echo.GET("/api/rounds/:roundID/questions/:questionID", s.handleGetQuestion)
	s.echo.PUT("/api/rounds/:roundID/questions/:questionID", s.handleUpdateQuestion)
	s.echo.DELETE("/api/rounds/:roundID/questions/:questionID", s.handleDeleteQuestion)
}
