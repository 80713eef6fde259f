package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/user/bookscan-service/internal/app"
	"github.com/user/bookscan-service/internal/delivery/http/handler"
	"github.com/user/bookscan-service/internal/delivery/http/router"
	"github.com/user/bookscan-service/pkg/config"
	"github.com/user/bookscan-service/pkg/logger"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("could not load config", zap.Error(err))
	}

	// --- Logger ---
	log := logger.New(os.Stdout, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Dependencies ---
	a, err := app.New(ctx, cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal("could not initialize dependencies", zap.Error(err))
	}
	defer a.Close()

	// --- HTTP Server ---
	h := handler.NewHandler(handler.Deps{
		Jobs:      a.Jobs,
		Search:    a.Search,
		Pending:   a.Pending,
		Presence:  a.Presence,
		ParseLogs: a.ParseLogs,
		Catalog:   a.Catalog,
		Checks: map[string]handler.Pinger{
			"postgres": a.DB.Ping,
			"redis":    func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() },
		},
	}, log.Named("http"))

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router.New(h, a.Metrics, prometheus.DefaultGatherer, log),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 70 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("could not listen on port", zap.String("port", cfg.ServerPort), zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("server exiting")
}
