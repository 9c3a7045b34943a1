package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/creatorhub/copyscan/internal/app"
	"github.com/creatorhub/copyscan/internal/config"
	"github.com/creatorhub/copyscan/internal/observability"
	"github.com/creatorhub/copyscan/internal/scan"
	"github.com/creatorhub/copyscan/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting copyscan worker",
		"extract_workers", cfg.Matching.WorkerCount,
		"intervals", cfg.Matching.Intervals,
		"cpu_cores", runtime.NumCPU(),
	)

	// One consumer per host.
	lock := flock.New(cfg.Scheduler.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		slog.Error("acquire worker lock", "path", cfg.Scheduler.LockFile, "error", err)
		os.Exit(1)
	}
	if !locked {
		slog.Error("another worker holds the lock", "path", cfg.Scheduler.LockFile)
		os.Exit(1)
	}
	defer func() { _ = lock.Unlock() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := app.Connect(ctx, cfg)
	if err != nil {
		slog.Error("connect services", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	// Jobs abandoned by a crashed worker are claimable again, or failed once
	// they have used every attempt.
	if n, err := svc.DB.ResetStuck(ctx, cfg.Scheduler.StuckAfter, cfg.Scheduler.MaxAttempts); err != nil {
		slog.Warn("reset stuck jobs", "error", err)
	} else if n > 0 {
		slog.Info("reset stuck jobs", "count", n, "stuck_after", cfg.Scheduler.StuckAfter)
	}

	engine, release, err := svc.NewEngine()
	if err != nil {
		slog.Error("init scan engine", "error", err)
		os.Exit(1)
	}
	defer release()

	runner := scheduler.NewRunner(svc.DB, svc.Backoff(), cfg.Scheduler.PollInterval)
	runner.Handle(scan.JobKind, engine.HandleJob)

	go serveMetrics(cfg.Server.MetricsPort)
	go reportQueueDepth(ctx, svc)

	runner.Run(ctx, 1)
	slog.Info("worker stopped")
}

func serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	addr := fmt.Sprintf(":%d", port)
	slog.Info("worker metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server error", "error", err)
	}
}

func reportQueueDepth(ctx context.Context, svc *app.Services) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := svc.DB.PendingCount(ctx)
			if err == nil {
				observability.QueueDepth.Set(float64(depth))
			}
		}
	}
}
