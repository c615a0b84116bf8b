package main

import (
	"context"
	"os"

	"billing/internal/database"
	"billing/internal/handler"
	"billing/internal/logger"
	"billing/internal/middleware"
	"billing/internal/repository"
	"billing/internal/service"
	"billing/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// @title           Billing API
// @version         1.0
// @description     Invoicing backend with sequence, NCF and stock management.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Info().Msg("no configs/.env file found")
	}
	logger.Setup()

	dsn := "postgres://" + envOr("DB_USER", "postgres") + ":" + envOr("DB_PASSWORD", "postgres") +
		"@" + envOr("DB_HOST", "localhost") + ":" + envOr("DB_PORT", "5432") +
		"/" + envOr("DB_NAME", "billing") + "?sslmode=" + envOr("DB_SSLMODE", "disable")

	db, err := database.NewConnection(dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	log.Info().Msg("connected to PostgreSQL")

	// Set up WebSocket Hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	productRepo := repository.NewProductRepository(db)
	sequenceRepo := repository.NewSequenceRepository(db)
	fiscalRepo := repository.NewFiscalSequenceRepository(db)
	clientRepo := repository.NewClientRepository(db)
	quoteRepo := repository.NewQuoteRepository(db)

	sequenceService := service.NewSequenceService(sequenceRepo, txManager)
	fiscalService := service.NewFiscalService(fiscalRepo, txManager, wsHub, logger.WithComponent("fiscal"))
	invoiceService := service.NewInvoiceService(invoiceRepo, productRepo, sequenceService, fiscalService, txManager, wsHub, logger.WithComponent("invoice"))
	paymentService := service.NewPaymentService(invoiceRepo, txManager, logger.WithComponent("payment"))
	productService := service.NewProductService(productRepo, txManager)
	clientService := service.NewClientService(clientRepo)
	quoteService := service.NewQuoteService(quoteRepo, sequenceService, txManager)

	// Initialize Handlers
	invoiceHandler := handler.NewInvoiceHandler(invoiceService, paymentService)
	fiscalHandler := handler.NewFiscalHandler(fiscalService)
	productHandler := handler.NewProductHandler(productService)
	clientHandler := handler.NewClientHandler(clientService)
	quoteHandler := handler.NewQuoteHandler(quoteService)

	// Daily advisory sweep for NCF ranges running low
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("0 8 * * *", func() {
		fiscalService.SweepLowRemaining(context.Background())
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule fiscal sweep")
	}
	scheduler.Start()

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	// Register API Routes
	invoiceHandler.RegisterRoutes(router.Group(""))
	fiscalHandler.RegisterRoutes(router.Group(""))
	productHandler.RegisterRoutes(router.Group(""))
	clientHandler.RegisterRoutes(router.Group(""))
	quoteHandler.RegisterRoutes(router.Group(""))

	port := envOr("PORT", "8080")
	log.Info().Str("port", port).Msg("server listening")
	if err := router.Run(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
