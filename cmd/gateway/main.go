package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lalithlochan/opsuite/internal/api"
	"github.com/lalithlochan/opsuite/internal/circuitbreaker"
	"github.com/lalithlochan/opsuite/internal/config"
	"github.com/lalithlochan/opsuite/internal/db"
	"github.com/lalithlochan/opsuite/internal/inventory"
	"github.com/lalithlochan/opsuite/internal/metrics"
	"github.com/lalithlochan/opsuite/internal/observ"
	"github.com/lalithlochan/opsuite/internal/queue"
	"github.com/lalithlochan/opsuite/internal/redis"
	"github.com/lalithlochan/opsuite/internal/rules"
	"github.com/lalithlochan/opsuite/internal/sns"
	"github.com/lalithlochan/opsuite/internal/sqs"
	"github.com/lalithlochan/opsuite/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting opsuite gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("queue_backend", cfg.QueueBackend),
	)

	// Quantities and costs go out as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	// Initialize database connection
	ctx := context.Background()
	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	inventoryRepo := db.NewInventoryRepository(database, logger)
	notificationRepo := db.NewNotificationRepository(database, logger)

	// Redis backs idempotency, rate limiting and optionally the job queue
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, idempotency and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
		redisClient = nil
	}

	var idempotencyService *redis.IdempotencyService
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		defer redisClient.Close()
		idempotencyService = redis.NewIdempotencyService(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  cfg.RateLimitPerMinute,
			Window: time.Minute,
		})
	}

	producer, consumer, err := buildQueue(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}

	sender, err := buildSender(ctx, cfg, logger)
	if err != nil {
		return err
	}

	dispatcher := rules.NewDispatcher(notificationRepo, producer, logger)
	evaluator := rules.NewEvaluator(notificationRepo, notificationRepo, dispatcher, rules.Config{
		MaxRecipients: cfg.RuleMaxRecipients,
		PageSize:      cfg.UserPageSize,
		Concurrency:   cfg.RuleDispatchConcurrency,
	}, logger)
	inventoryService := inventory.NewService(inventoryRepo, logger)

	w := worker.New(consumer, notificationRepo, sender, worker.Config{
		Concurrency:  4,
		ErrorBackoff: 2 * time.Second,
	}, logger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	workerDone := make(chan error, 1)
	go func() { workerDone <- w.Run(workerCtx) }()

	logger.Info("background worker started")

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	handler := api.NewHandler(logger, inventoryService, evaluator, notificationRepo)
	if idempotencyService != nil {
		handler.WithIdempotency(idempotencyService)
	}
	r.Mount("/v1", handler.Routes(rateLimiter))

	// Health check
	r.Get("/health", api.HealthHandler(database, sender.Breakers(), logger))

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case err := <-workerDone:
		return fmt.Errorf("worker stopped: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		workerCancel()
		select {
		case err := <-workerDone:
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("worker exited with error", zap.Error(err))
			}
		case <-ctx.Done():
			logger.Warn("worker did not stop before shutdown deadline")
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}

// buildQueue returns the producer and consumer for the configured backend.
func buildQueue(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) (queue.Producer, queue.Consumer, error) {
	switch cfg.QueueBackend {
	case config.QueueBackendSQS:
		client, err := sqs.NewClient(ctx, sqs.Config{Region: cfg.SQSRegion, QueueURL: cfg.SQSQueueURL})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create SQS client: %w", err)
		}
		return sqs.NewProducer(client, cfg.SQSQueueURL, logger), sqs.NewConsumer(client, cfg.SQSQueueURL, logger), nil

	default:
		if redisClient == nil {
			return nil, nil, errors.New("redis queue backend selected but redis is unavailable")
		}
		q := redis.NewQueue(redisClient, cfg.RedisQueueKey, logger)
		// Jobs a previous run received but never acked go back in line.
		if _, err := q.Requeue(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to requeue unacked jobs: %w", err)
		}
		return q, q, nil
	}
}

// buildSender assembles the per-channel senders. External channels sit
// behind their own circuit breaker.
func buildSender(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*worker.MultiSender, error) {
	var email worker.Sender
	switch cfg.EmailProvider {
	case config.EmailProviderSES:
		client, err := worker.NewSESClient(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("failed to create SES client: %w", err)
		}
		email = worker.NewProtectedSender(
			worker.NewSESSender(client, cfg.SESFromEmail, logger),
			circuitbreaker.New(circuitbreaker.DefaultConfig("ses"), logger),
		)
	default:
		smtp, err := worker.NewSMTPSender(worker.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SMTP sender: %w", err)
		}
		email = worker.NewProtectedSender(smtp, circuitbreaker.New(circuitbreaker.DefaultConfig("smtp"), logger))
	}

	senders := []worker.Sender{email, worker.InAppSender{}}

	var publisher *sns.Publisher
	if cfg.SMSEnabled || cfg.PushTopicARN != "" {
		client, err := sns.NewClient(ctx, cfg.SNSRegion, "")
		if err != nil {
			return nil, fmt.Errorf("failed to create SNS client: %w", err)
		}
		publisher = sns.NewPublisher(client, cfg.PushTopicARN)
	}

	if cfg.SMSEnabled {
		senders = append(senders, worker.NewProtectedSender(
			worker.NewSMSSender(publisher, logger),
			circuitbreaker.New(circuitbreaker.DefaultConfig("sns-sms"), logger),
		))
	} else {
		senders = append(senders, worker.NewPlaceholderSender(logger, db.TypeSMS))
	}

	if cfg.PushTopicARN != "" {
		senders = append(senders, worker.NewProtectedSender(
			worker.NewPushSender(publisher, logger),
			circuitbreaker.New(circuitbreaker.DefaultConfig("sns-push"), logger),
		))
	} else {
		senders = append(senders, worker.NewPlaceholderSender(logger, db.TypePush))
	}

	logger.Info("initialized multi-channel notification system",
		zap.String("email_provider", cfg.EmailProvider),
		zap.Bool("sms_enabled", cfg.SMSEnabled),
		zap.Bool("push_enabled", cfg.PushTopicARN != ""),
	)

	return worker.NewMultiSender(logger, senders...), nil
}
