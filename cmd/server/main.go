package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"

	"certflow/internal/audit"
	"certflow/internal/ca"
	"certflow/internal/issuer"
	"certflow/internal/notify"
	"certflow/internal/pipeline"
	"certflow/internal/platform/bootstrap"
	"certflow/internal/platform/config"
	"certflow/internal/platform/httpserver"
	"certflow/internal/platform/logger"
	"certflow/internal/platform/metrics"
	httptransport "certflow/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps
// the server lifecycle small. Business logic lives in internal packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	store, cleanup, err := bootstrap.ArtifactStore(ctx, cfg)
	if err != nil {
		log.Error("artifact store setup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	var sender notify.Sender
	if cfg.NotifyTopic != "" {
		kafka, err := notify.NewKafkaSender(ctx, cfg.KafkaBrokers, cfg.NotifyTopic)
		if err != nil {
			log.Error("kafka sender setup failed", "error", err)
			os.Exit(1)
		}
		defer kafka.Close()
		sender = kafka
	} else {
		log.Info("notifications disabled, no topic configured")
	}

	m := metrics.New()
	recorder := audit.NewRecorder(store)
	router := notify.NewRouter(sender, log, m)

	// The CA binding is deployment-specific; local mode runs against the
	// in-memory CA.
	caClient := ca.NewInMemoryClient()

	service := pipeline.New(caClient, store, issuer.NewCertbotIssuer(cfg.CertbotEmail), recorder, router, log, m)
	handler := httptransport.NewHandler(service, log)

	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler, cfg.JWTSigningKey))
	log.Info("starting certflow", "addr", cfg.Addr, "artifact_backend", cfg.ArtifactBackend)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
