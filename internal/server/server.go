package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/finnlinderman-RL/fwsl-questions-api/internal/app"
	"github.com/finnlinderman-RL/fwsl-questions-api/internal/config"
	"github.com/finnlinderman-RL/fwsl-questions-api/internal/domain"
	apperrors "github.com/finnlinderman-RL/fwsl-questions-api/internal/errors"
	"github.com/finnlinderman-RL/fwsl-questions-api/internal/websocket"
)

// redisHealthChecker is the minimal surface the readiness check needs.
type redisHealthChecker interface {
	Ping(ctx context.Context) *goredis.StatusCmd
}

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	service   *app.Service
	pool      domain.QuestionPool
	hub       *websocket.Hub
	redis     redisHealthChecker
	limits    *ConnectionLimits
	startTime time.Time
}

func NewServer(cfg *config.Config, service *app.Service, pool domain.QuestionPool, hub *websocket.Hub, redis redisHealthChecker) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:      e,
		config:    cfg,
		service:   service,
		pool:      pool,
		hub:       hub,
		redis:     redis,
		limits:    NewConnectionLimits(cfg.MaxConnections, cfg.MaxConnectionsPerIP, cfg.ConnectionsPerSec, cfg.ConnectionBurst),
		startTime: time.Now(),
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
