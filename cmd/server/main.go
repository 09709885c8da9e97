package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"booking-service/config"
	"booking-service/internal/api"
	"booking-service/internal/broker"
	"booking-service/internal/gateway"
	"booking-service/internal/redisclient"
	"booking-service/internal/service"
	"booking-service/internal/store"
	"booking-service/internal/util"
	"booking-service/internal/worker"

	"go.uber.org/zap"
)

const (
	expirySweepInterval = time.Minute
	expirySweepBatch    = 100
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	tp, err := util.InitTracer("booking-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Warn("Tracer initialization failed, continuing without tracing", zap.Error(err))
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
		}()
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redis, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking)
	defer producer.Close()

	pagbank := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.Token, cfg.Gateway.Timeout)

	pricing := service.NewPricingResolver(db)
	conflicts := service.NewConflictDetector(db)
	availability := service.NewAvailabilityService(db, db, redis)
	orchestrator := service.NewBookingOrchestrator(
		db, pricing, conflicts, pagbank, redis, producer, cfg.Business.BookingLockTTL)
	payments := service.NewPaymentService(db, pagbank, cfg.Business.MaxPaymentAmountCents)
	reconciler := service.NewPaymentReconciler(
		db, producer, cfg.Gateway.WebhookSecret, cfg.Business.PendingPaymentTTL)

	handler := api.NewHandler(orchestrator, availability, payments, reconciler, func() error {
		return db.GetDB().Ping()
	})
	router := handler.SetupRouter()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking, cfg.Kafka.ConsumerGroup)
	defer consumer.Close()

	notifications := worker.NewNotificationWorker(consumer, db)
	go func() {
		if err := notifications.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Notification worker stopped", zap.Error(err))
		}
	}()

	expiry := worker.NewExpiryWorker(reconciler, expirySweepInterval, expirySweepBatch)
	go func() {
		if err := expiry.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Expiry worker stopped", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exited")
}
