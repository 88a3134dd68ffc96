package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/cashdesk/backend/docs"
	"github.com/cashdesk/backend/internal/database"
	mW "github.com/cashdesk/backend/internal/middleware"
	"github.com/cashdesk/backend/internal/services"
)

// @title Cashdesk Bookkeeping API
// @version 1.0
// @description Treasury ledger, customer accounts, records, and obligations for small-business cash management
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Cashdesk Bookkeeping API"
	docs.SwaggerInfo.Description = "Treasury ledger, customer accounts, records, and obligations"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize stores
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Initialize services
	balanceService := services.NewBalanceService(db)
	statementService := services.NewStatementService(db)
	transactionService := services.NewTransactionService(db, balanceService)
	recordService := services.NewRecordService(db, balanceService)
	customerService := services.NewCustomerService(db, balanceService, statementService, transactionService)
	treasuryService := services.NewTreasuryService(db)
	obligationService := services.NewObligationService(db)
	insightsService := services.NewInsightsService(db, redisClient,
		services.NewTemplateAdviceGenerator(), treasuryService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/customers", customerService.CreateCustomer)
		r.Get("/customers", customerService.ListCustomers)
		r.Get("/customers/{customerId}", customerService.GetCustomer)
		r.Put("/customers/{customerId}", customerService.UpdateCustomer)
		r.Delete("/customers/{customerId}", customerService.DeleteCustomer)
		r.Get("/customers/{customerId}/balance", customerService.GetCustomerBalance)
		r.Get("/customers/{customerId}/summary", customerService.GetCustomerSummary)
		r.Get("/customers/{customerId}/statement", customerService.GetCustomerStatement)
		r.Get("/customers/{customerId}/credit-check", customerService.CheckCreditLimit)

		r.Post("/treasuries", treasuryService.CreateTreasury)
		r.Get("/treasuries", treasuryService.ListTreasuries)
		r.Get("/treasuries/{treasuryId}", treasuryService.GetTreasury)
		r.Put("/treasuries/{treasuryId}", treasuryService.UpdateTreasury)
		r.Get("/treasuries/{treasuryId}/insights", insightsService.GetTreasuryInsights)

		// Posted transactions are immutable: reversal is the only
		// correction path, so no DELETE route exists.
		r.Post("/transactions", transactionService.CreateTransaction)
		r.Get("/transactions", transactionService.ListTransactions)
		r.Get("/transactions/{txId}", transactionService.GetTransaction)
		r.Post("/transactions/{txId}/reverse", transactionService.ReverseTransaction)

		r.Post("/records", recordService.CreateRecord)
		r.Get("/records", recordService.ListRecords)
		r.Get("/records/{recordId}", recordService.GetRecord)
		r.Post("/records/{recordId}/pay", recordService.PayRecord)

		r.Post("/obligations", obligationService.CreateObligation)
		r.Get("/obligations", obligationService.ListObligations)
		r.Get("/obligations/{obligationId}", obligationService.GetObligation)
		r.Put("/obligations/{obligationId}", obligationService.UpdateObligation)
		r.Delete("/obligations/{obligationId}", obligationService.DeleteObligation)
		r.Post("/obligations/{obligationId}/done", obligationService.MarkObligationDone)
		r.Post("/obligations/{obligationId}/reopen", obligationService.ReopenObligation)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
