package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"clearance-svc/cache"
	"clearance-svc/database"
	"clearance-svc/handlers"
	"clearance-svc/kafka"
	"clearance-svc/middleware"
	"clearance-svc/notify"
	"clearance-svc/store"
	"clearance-svc/stripe"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database
	db, err := database.InitDB(logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Initialize Redis
	rdb, err := cache.InitRedis(logger)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer rdb.Close()

	// Initialize Kafka producer
	producer, err := kafka.InitProducer(logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
	}
	defer producer.Close()

	// Initialize OpenTelemetry
	shutdown, err := middleware.InitTracing("clearance-service")
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdown()

	mailer, err := notify.NewEmailService(logger)
	if err != nil {
		logger.Fatal("Failed to initialize email service", zap.Error(err))
	}

	paymentHandler := handlers.NewPaymentHandler(
		store.New(db),
		stripe.NewClient(logger),
		kafka.NewPublisher(producer, logger),
		notify.NewKafkaNotifier(producer, logger),
		mailer,
		rdb,
		logger,
		getEnv("APP_URL", "http://localhost:8084"),
	)

	// Setup REST API with Gin
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(cors.Default())
	router.LoadHTMLGlob("templates/*")

	// Health check endpoint
	router.GET("/health", handlers.HealthCheck)

	// Metrics endpoint
	router.GET("/metrics", middleware.PrometheusHandler())

	// Client JSON API
	api := router.Group("/api", middleware.RequireRole("client", false))
	api.POST("/payments/checkout-session", paymentHandler.CreateCheckoutSession)
	api.GET("/payments/pending/:shipment_id", paymentHandler.GetPendingPayment)

	// Browser-facing checkout redirect and form endpoints
	pages := router.Group("/payments", middleware.RequireRole("client", true))
	pages.GET("/success", paymentHandler.PaymentSuccess)
	pages.GET("/cancel", paymentHandler.PaymentCancel)
	pages.POST("/manual", paymentHandler.SubmitManualPayment)

	// Start REST server
	srv := &http.Server{
		Addr:    ":" + getEnv("PORT", "8084"),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start REST server", zap.Error(err))
		}
	}()

	logger.Info("Clearance Service started", zap.String("addr", srv.Addr))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	logger.Info("Server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
