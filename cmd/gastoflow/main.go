package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gastoflow/internal/api"
	"gastoflow/internal/api/handlers"
	"gastoflow/internal/repository"
	"gastoflow/internal/service"
	"gastoflow/pkg/config"
	"gastoflow/pkg/logger"
	"gastoflow/pkg/postgres"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting gastoflow service")

	// Initialize database
	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repositories
	expenseRepo := repository.NewExpenseRepository(db, appLogger)

	// Initialize services
	docIntelService := service.NewDocIntelService(&cfg.DocIntel, appLogger)
	llmService := service.NewLLMService(&cfg.Classifier, appLogger)

	blobService, err := service.NewBlobStorageService(ctx, &cfg.BlobStorage, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize blob storage", zap.Error(err))
	}

	openkmService := service.NewOpenKMService(&cfg.OpenKM, appLogger)

	expenseService := service.NewExpenseService(
		expenseRepo,
		docIntelService,
		llmService,
		blobService,
		openkmService,
		cfg.BlobStorage.KeyPrefix,
		appLogger,
	)

	// Initialize handlers
	receiptHandler := handlers.NewReceiptHandler(expenseService, appLogger)
	expenseHandler := handlers.NewExpenseHandler(expenseService, appLogger)

	// Setup router
	app := api.SetupRouter(receiptHandler, expenseHandler)

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}
