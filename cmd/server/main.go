package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stream-buffer/internal/platform/config"
	"stream-buffer/internal/platform/logger"
	"stream-buffer/internal/platform/metrics"
	"stream-buffer/internal/stream"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	maxSegments := config.GetEnvInt("MAX_SEGMENTS", stream.DefaultMaxSegments)
	idleTimeout := config.GetEnvSeconds("IDLE_TIMEOUT_SECONDS", stream.DefaultIdleTimeout)
	pollTimeout := config.GetEnvSeconds("POLL_TIMEOUT_SECONDS", stream.DefaultPollTimeout)
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	log := logger.New(logLevel, logFormat)

	met := metrics.New()
	reg := stream.NewRegistry(maxSegments, idleTimeout, func(token stream.Token, variant stream.Variant) {
		log.Info("output idle",
			slog.String("token", string(token)),
			slog.String("variant", string(variant)),
		)
		met.IncOutputsIdle()
	})
	h := stream.NewHandler(reg, log, met, pollTimeout)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() {
			met.SetActiveOutputs(reg.ActiveOutputCount())
			met.SetIdleOutputs(reg.IdleOutputCount())
		}).ServeHTTP(w, req)
	})
	h.Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"max_segments", maxSegments,
		"idle_timeout", idleTimeout.String(),
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
