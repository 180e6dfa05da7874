package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/longle289/TrustAustralia/common/auth"
	apperrors "github.com/longle289/TrustAustralia/common/errors"
	"github.com/longle289/TrustAustralia/common/logger"
	commonmw "github.com/longle289/TrustAustralia/common/middleware"
	"github.com/longle289/TrustAustralia/config"
	"github.com/longle289/TrustAustralia/controllers"
	"github.com/longle289/TrustAustralia/database"
	"github.com/longle289/TrustAustralia/documents"
	"github.com/longle289/TrustAustralia/forms"
	"github.com/longle289/TrustAustralia/kafka"
	"github.com/longle289/TrustAustralia/models"
	awspkg "github.com/longle289/TrustAustralia/pkg/aws"
	"github.com/longle289/TrustAustralia/repository"
	"github.com/longle289/TrustAustralia/routes"
	"github.com/longle289/TrustAustralia/sender"
	"github.com/longle289/TrustAustralia/services"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "trustaustralia-orders"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	awsCfg, err := awspkg.LoadAWSConfig(ctx, cfg.AWSRegion)
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}

	if cfg.AWSUseSecrets {
		if err := cfg.ApplySecrets(ctx, awspkg.NewSecretsClient(awsCfg)); err != nil {
			log.Fatalf("Failed to load secrets from AWS Secrets Manager: %v", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	var logSink io.Writer
	if cfg.CloudWatchEnabled {
		cwLogs, err := awspkg.NewCloudWatchLogsClient(ctx, awsCfg, cfg.CloudWatchLogGroup, serviceName)
		if err != nil {
			log.Printf("CloudWatch Logs unavailable, logging to stdout only: %v", err)
		} else {
			logSink = cwLogs
		}
	}
	zapLogger, err := logger.Initialize(cfg.Env, logSink)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	db, err := database.ConnectPostgres(ctx, cfg.PostgresDSN(), zapLogger, &models.Order{}, &models.User{}, &models.NotificationLog{})
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	var idem repository.IdempotencyStore
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			zapLogger.Warn("Redis unavailable, checkout idempotency disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			idem = repository.NewRedisIdempotencyStore(redisClient, cfg.IdempotencyTTL)
		}
	}

	metrics := awspkg.NewMetricsClient(awsCfg, cfg.CloudWatchNamespace, cfg.CloudWatchEnabled)

	// --- order events: SNS and Kafka ---
	var publishers services.MultiPublisher
	if cfg.OrderSNSTopicARN != "" {
		publishers = append(publishers, services.NewSNSEventPublisher(awspkg.NewSNSClient(awsCfg), cfg.OrderSNSTopicARN))
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewOrderEventProducer(cfg.KafkaBrokers, cfg.KafkaOrderTopic, zapLogger)
		defer producer.Close()
		publishers = append(publishers, producer)
	}

	// --- email ---
	var emailSender sender.EmailSender = sender.NewLogSender(zapLogger)
	if cfg.SMTPHost != "" {
		smtpSender, err := sender.NewSMTPSender(sender.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
		})
		if err != nil {
			zapLogger.Fatal("Invalid SMTP configuration", zap.Error(err))
		}
		emailSender = smtpSender
	} else {
		zapLogger.Warn("SMTP_HOST not set, emails are logged instead of sent")
	}

	// --- repositories and services ---
	orderRepo := repository.NewGormOrderRepository(db)
	userRepo := repository.NewGormUserRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	notifier, err := services.NewNotificationService(notificationRepo, emailSender, cfg.EmailTo, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize notification service", zap.Error(err))
	}

	validator := forms.NewFormValidator()
	stripeSvc := services.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, zapLogger)
	if cfg.StripeWebhookSecret == "" {
		zapLogger.Warn("STRIPE_WEBHOOK_SECRET not set, webhook requests will be rejected")
	}

	fulfillment := services.NewFulfillmentService(orderRepo, userRepo, notifier, publishers, metrics, zapLogger)
	checkoutSvc := services.NewCheckoutService(stripeSvc, orderRepo, validator, idem, metrics, cfg.BaseURL, zapLogger)
	webhookSvc := services.NewWebhookService(stripeSvc, fulfillment, metrics, zapLogger)

	var queue services.ReconcileQueue
	var consumer *awspkg.SQSConsumer
	if cfg.ReconcileQueueURL != "" {
		consumer = awspkg.NewSQSConsumer(awsCfg, cfg.ReconcileQueueURL, zapLogger)
		queue = services.NewSQSReconcileQueue(consumer)
	}
	verifySvc := services.NewVerifyService(stripeSvc, fulfillment, queue, metrics, zapLogger)
	if consumer != nil {
		worker := services.NewReconcileConsumer(consumer, verifySvc, metrics, zapLogger)
		go func() {
			if err := worker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zapLogger.Error("Reconcile worker stopped", zap.Error(err))
			}
		}()
	}

	var store services.DocumentStore
	if cfg.DocumentBucket != "" {
		store = awspkg.NewObjectStore(awsCfg, cfg.DocumentBucket)
	}
	documentSvc := services.NewDocumentService(documents.NewPDFRenderer(), validator, orderRepo, store, metrics, zapLogger)
	orderSvc := services.NewOrderService(orderRepo, zapLogger)

	// --- HTTP ---
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		gin.Recovery(),
		logger.RequestID(),
		commonmw.RequestLogger(zapLogger),
		commonmw.MetricsMiddleware(metrics, serviceName),
		commonmw.SecurityHeaders(),
		commonmw.CORSMiddleware(cfg.AllowedOrigins),
		commonmw.Timeout(30*time.Second),
		apperrors.ErrorMiddleware(),
	)

	limiter := commonmw.NewRateLimiter(ctx, rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, 10*time.Minute)
	routes.RegisterRoutes(r, routes.Controllers{
		Checkout:  controllers.NewCheckoutController(checkoutSvc, zapLogger),
		Webhook:   controllers.NewWebhookController(webhookSvc, zapLogger),
		Verify:    controllers.NewVerifyController(verifySvc, zapLogger),
		Documents: controllers.NewDocumentController(documentSvc, zapLogger),
		Orders:    controllers.NewOrderController(orderSvc, zapLogger),
	}, auth.NewTokenParser(cfg.JWTSecret), limiter)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zapLogger.Info("Order service starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	zapLogger.Info("Server exited")
}
