package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/creatorhub/copyscan/internal/api"
	"github.com/creatorhub/copyscan/internal/api/handlers"
	"github.com/creatorhub/copyscan/internal/api/ws"
	"github.com/creatorhub/copyscan/internal/app"
	"github.com/creatorhub/copyscan/internal/config"
	"github.com/creatorhub/copyscan/internal/observability"
	"github.com/creatorhub/copyscan/internal/queue"
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

	slog.Info("starting copyscan API", "port", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := app.Connect(ctx, cfg)
	if err != nil {
		slog.Error("connect services", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	// WebSocket hub fed from the COPYRIGHT stream
	hub := ws.NewHub()
	go hub.Run(ctx)

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	if err := consumer.ConsumeEvents(ctx, "api-events", hub.Forward); err != nil {
		slog.Warn("start event consumer", "error", err)
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:  cfg.Server.APIKey,
		Jobs:    svc.DB,
		Matches: svc.DB,
		Audit:   svc.Objects,
		Actions: svc.NewWorkflow(),
		Hub:     hub,
		Checks: map[string]handlers.Check{
			"postgres": svc.DB.Ping,
			"minio":    svc.Objects.Ping,
			"nats":     func(context.Context) error { return svc.Producer.Ping() },
		},
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
