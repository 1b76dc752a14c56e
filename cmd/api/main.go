package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"runcase-backend/internal/backend"
	"runcase-backend/internal/config"
	"runcase-backend/internal/metrics"
	"runcase-backend/internal/report"
	"runcase-backend/internal/runcase"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	dispatcher := backend.FromConfig(
		backend.RemoteConfig{
			BaseURL:    cfg.BrowserUseHTTPBase,
			RunPath:    cfg.BrowserUseRunPath,
			AuthHeader: cfg.BrowserUseAuthHeader,
			Timeout:    cfg.BrowserUseTimeout,
		},
		backend.LocalConfig{
			CDPURL:  cfg.CDPURL,
			Timeout: cfg.BrowserUseTimeout,
		},
		logger,
	)
	logger.Info("backend selected",
		zap.String("backend", dispatcher.Backend()),
		zap.Bool("remote", dispatcher.RemoteSelected()),
		zap.Duration("timeout", cfg.BrowserUseTimeout))

	reports := report.NewWriter(cfg.ReportsDir, logger)
	orchestrator := runcase.NewOrchestrator(
		dispatcher,
		reports,
		runcase.Defaults{Model: cfg.DefaultModel, Headless: cfg.Headless},
		collector,
		logger,
	)
	handler := &runcase.Handler{Orchestrator: orchestrator, Logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", runcase.Healthz)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/run-case", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handler.RunCase(w, r)
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(mux)

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     corsHandler,
		ReadTimeout: 30 * time.Second,
		// The response cannot be written before the backend call finishes.
		WriteTimeout: cfg.BrowserUseTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", zap.String("addr", cfg.Addr()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}
