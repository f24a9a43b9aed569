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

	"ticketbot/config"
	"ticketbot/internal/api"
	"ticketbot/internal/broker"
	"ticketbot/internal/conversation"
	"ticketbot/internal/messaging"
	"ticketbot/internal/payment"
	"ticketbot/internal/redisclient"
	"ticketbot/internal/service"
	"ticketbot/internal/store"
	"ticketbot/internal/util"
	"ticketbot/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting ticketbot", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer("ticketbot", cfg.Observ.JaegerEndpoint, cfg.Observ.SampleRatio)
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

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := db.Migrate(ctx)
		cancel()
		if err != nil {
			log.Fatalf("Failed to apply schema: %v", err)
		}
		log.Println("Schema applied")
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	orderProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer orderProducer.Close()
	paymentProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayment)
	defer paymentProducer.Close()
	log.Println("Kafka producers initialized")

	eventPublisher := broker.NewEventPublisher(orderProducer, paymentProducer)

	chat := messaging.NewClient(cfg.Messaging.APIBaseURL, cfg.Messaging.PhoneNumberID, cfg.Messaging.AccessToken)
	gateway := payment.NewGateway(cfg.Payment.BaseURL, cfg.Payment.SecretKey)
	if cfg.Payment.SecretKey == "" {
		log.Println("PAYSTACK_SECRET_KEY is not set; payment webhooks will be refused")
	}

	inventory := service.NewInventoryService(db)
	checkout := service.NewCheckoutService(db, gateway, eventPublisher, cfg.Payment.CallbackURL)
	issuer := service.NewTicketIssuer(cfg.Business.TicketValidationURL, cfg.Business.QRImageBaseURL)
	finalizer := service.NewFinalizer(db, redisClient, chat, issuer, eventPublisher, service.FinalizerOptions{
		LockTTL:                  time.Duration(cfg.Business.FinalizeLockSeconds) * time.Second,
		ResendReceiptOnDuplicate: cfg.Business.ResendReceiptOnDuplicate,
	})

	machine := conversation.NewMachine(inventory, checkout, db, cfg.Business.PurchaseLinkURL)
	engine := conversation.NewEngine(machine, db, redisClient, redisClient, chat, conversation.EngineOptions{
		LockTTL:  time.Duration(cfg.Business.ConversationLockSeconds) * time.Second,
		DedupTTL: time.Duration(cfg.Business.MessageDedupTTLSeconds) * time.Second,
	})

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var fulfillmentWorker *worker.FulfillmentWorker
	if cfg.Business.AsyncFulfillment {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayment, cfg.Kafka.ConsumerGroup,
			time.Duration(cfg.Business.FulfillmentMaxBackoff)*time.Second)
		fulfillmentWorker = worker.NewFulfillmentWorker(consumer, finalizer)
		go func() {
			if err := fulfillmentWorker.Start(workerCtx); err != nil {
				log.Printf("Fulfillment worker error: %v", err)
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(engine, finalizer, eventPublisher, db, api.Config{
		VerifyToken:        cfg.Messaging.VerifyToken,
		AppSecret:          cfg.Messaging.AppSecret,
		PaymentSecret:      cfg.Payment.SecretKey,
		DefaultCountryCode: cfg.Business.DefaultCountryCode,
		AsyncFulfillment:   cfg.Business.AsyncFulfillment,
	})
	handler.AddReadinessCheck("postgres", db)
	handler.AddReadinessCheck("redis", redisClient)
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
	if fulfillmentWorker != nil {
		fulfillmentWorker.Stop()
	}

	log.Println("Server exited")
}
