// Command reconcile-counters recounts round counters from the actual
// connection and question rows and repairs any drift. Run it offline or from
// a cron; the hot path never recomputes counters itself.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/finnlinderman-RL/fwsl-questions-api/internal/app"
	"github.com/finnlinderman-RL/fwsl-questions-api/internal/redis"
)

func main() {
	var (
		redisURL = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
		dryRun   = flag.Bool("dry-run", false, "Report drift without writing repairs")
		verbose  = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *redisURL == "" {
		log.Fatal("Redis URL required (--redis or REDIS_URL env)")
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))

	opts, err := goredis.ParseURL(*redisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	rdb := goredis.NewClient(opts)
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	slog.Info("Connected to Redis", "url", sanitizeURL(*redisURL))

	reconciler := app.NewReconciler(redis.NewDirectory(rdb), redis.NewRoundRepo(rdb), redis.NewPool(rdb))
	reconciler.DryRun = *dryRun

	start := time.Now()
	slog.Info("Starting reconciliation", "dry_run", *dryRun)

	report, err := reconciler.Run(ctx)
	if err != nil {
		log.Fatalf("Reconciliation failed: %v", err)
	}

	for _, d := range report.Drifts {
		slog.Debug("Drift",
			"round_id", d.RoundID,
			"field", d.Field,
			"stored", d.Stored,
			"actual", d.Actual)
	}

	slog.Info("Reconciliation summary",
		"rounds_checked", report.RoundsChecked,
		"drifts_found", len(report.Drifts),
		"rounds_repaired", report.Repaired,
		"rounds_removed", report.Removed,
		"duration_ms", time.Since(start).Milliseconds())
}

// sanitizeURL strips credentials before logging.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	return u.Redacted()
}
