package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/finnlinderman-RL/fwsl-questions-api/internal/app"
	"github.com/finnlinderman-RL/fwsl-questions-api/internal/broadcast"
	"github.com/finnlinderman-RL/fwsl-questions-api/internal/config"
	"github.com/finnlinderman-RL/fwsl-questions-api/internal/logging"
	"github.com/finnlinderman-RL/fwsl-questions-api/internal/redis"
	"github.com/finnlinderman-RL/fwsl-questions-api/internal/server"
	"github.com/finnlinderman-RL/fwsl-questions-api/internal/websocket"
)

func setupConfig() *config.Config {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// slog is not configured yet
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(cfg *config.Config) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server, hub *websocket.Hub, cancelSweeper context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		cancelSweeper()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		hub.Stop()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	redisClient := setupRedis(cfg)
	defer func() { _ = redisClient.Close() }()

	directory := redis.NewDirectory(redisClient)
	rounds := redis.NewRoundRepo(redisClient)
	pool := redis.NewPool(redisClient)

	hub := websocket.NewHub()

	service := app.NewService(directory, rounds, pool)
	fanout := broadcast.NewFanout(hub, service.HandleGone)
	service.SetBroadcaster(fanout)

	sweeperCtx, cancelSweeper := context.WithCancel(context.Background())
	if cfg.OrphanSweepInterval > 0 {
		sweeper := app.NewSweeper(service, rounds, clock, cfg.OrphanSweepInterval)
		go sweeper.Run(sweeperCtx)
	}

	srv := server.NewServer(cfg, service, pool, hub, redisClient)
	done := runGracefulShutdown(srv, hub, cancelSweeper)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
