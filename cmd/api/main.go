package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/fieldlinehq/fieldline/cmd/mainconfig"
	"github.com/fieldlinehq/fieldline/internal/api/router"
	appconfig "github.com/fieldlinehq/fieldline/internal/config"
	"github.com/fieldlinehq/fieldline/internal/crm"
	"github.com/fieldlinehq/fieldline/internal/events"
	"github.com/fieldlinehq/fieldline/internal/http/handlers"
	observemetrics "github.com/fieldlinehq/fieldline/internal/observability/metrics"
	"github.com/fieldlinehq/fieldline/internal/telnyx"
	"github.com/fieldlinehq/fieldline/internal/tenancy"
	"github.com/fieldlinehq/fieldline/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting fieldline API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(rootCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	verifier, err := telnyx.NewVerifier(telnyx.VerifierConfig{
		PublicKey: cfg.TelnyxPublicKey,
		Tolerance: cfg.TelnyxSignatureTolerance,
		Require:   cfg.TelnyxRequireSignature,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to configure webhook verifier", "error", err)
		os.Exit(1)
	}

	store := crm.NewStore(pool)
	cascade := crm.NewCascade(crm.CascadeConfig{
		Store:  store,
		Lock:   crm.NewSenderLock(redisClient, cfg.SenderLockTTL, logger),
		Policy: cfg.WorkRecordPolicy,
		Logger: logger,
	})
	resolver := tenancy.NewResolver(pool, logger)
	processed := events.NewProcessedStore(pool)
	metrics := observemetrics.NewWebhookMetrics(nil)

	webhooks := handlers.NewWebhookHandler(handlers.WebhookConfig{
		Verifier:  verifier,
		Resolver:  resolver,
		Cascade:   cascade,
		Processed: processed,
		Logger:    logger,
		Metrics:   metrics,
	})

	if cfg.MessageEventQueueURL != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(rootCtx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		publisher := events.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.MessageEventQueueURL)
		deliverer := events.NewDeliverer(events.NewOutboxStore(pool), publisher, logger)
		go deliverer.Start(rootCtx)
		logger.Info("outbox deliverer started", "queue", cfg.MessageEventQueueURL)
	}

	r := router.New(&router.Config{
		Logger:             logger,
		Webhooks:           webhooks,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
