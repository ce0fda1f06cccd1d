package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"seckill-service/config"
	"seckill-service/internal/api"
	"seckill-service/internal/broker"
	"seckill-service/internal/redisclient"
	"seckill-service/internal/service"
	"seckill-service/internal/store"
	"seckill-service/internal/util"
	"seckill-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting seckill service")

	tp, err := util.InitTracer("seckill-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	if err := db.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	purchaseProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPurchase)
	defer purchaseProducer.Close()
	deadLetterProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicDeadLetter)
	defer deadLetterProducer.Close()
	log.Println("Kafka producers initialized")

	eventPublisher := broker.NewEventPublisher(purchaseProducer)
	deadLetterPublisher := broker.NewDeadLetterPublisher(deadLetterProducer)

	inventoryEngine := service.NewInventoryEngine(redisClient, db, eventPublisher)
	admissionGate := service.NewAdmissionGate(redisClient, cfg.Business.TokenRatePerSecond, cfg.Business.TokenBucketCapacity)
	orderService := service.NewOrderService(db, redisClient, inventoryEngine)
	reconciler := service.NewReconciliationEngine(redisClient, db, db, service.NewLogAlerter(), admissionGate, cfg.Business.PauseThreshold)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	ingestConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPurchase, cfg.Kafka.ConsumerGroup)
	defer ingestConsumer.Close()
	ingestWorker := worker.NewIngestWorker(
		ingestConsumer,
		orderService,
		deadLetterPublisher,
		cfg.Business.BatchSize,
		cfg.Business.MaxRetryCount,
		time.Duration(cfg.Business.FlushIntervalSeconds)*time.Second,
	)
	go ingestWorker.Start(workerCtx)

	timeoutJob := worker.NewTimeoutJob(
		orderService,
		time.Duration(cfg.Business.TimeoutSweepSeconds)*time.Second,
		time.Duration(cfg.Business.OrderTimeoutMinutes)*time.Minute,
		cfg.Business.BatchSize,
	)
	go timeoutJob.Start(workerCtx)

	reconcileJob := worker.NewReconcileJob(
		reconciler,
		time.Duration(cfg.Business.ReconcileSeconds)*time.Second,
	)
	go reconcileJob.Start(workerCtx)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(admissionGate, inventoryEngine, orderService, reconciler)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()

	log.Println("Server exited")
}
