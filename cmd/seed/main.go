package main

import (
	"context"
	"log"
	"time"

	"gastoflow/internal/models"
	"gastoflow/internal/repository"
	"gastoflow/pkg/config"
	"gastoflow/pkg/logger"
	"gastoflow/pkg/postgres"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	// Connect to database
	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	userRepo := repository.NewUserRepository(db, appLogger)

	appLogger.Info("Starting database seeding...")

	// The seed is idempotent: wipe the users table and recreate the admin.
	if err := userRepo.DeleteAll(ctx); err != nil {
		appLogger.Fatal("Failed to clear users", zap.Error(err))
	}

	admin := &models.User{
		ID:          uuid.New(),
		Username:    "admin",
		DisplayName: "Administrador",
		CreatedAt:   time.Now(),
	}
	if err := userRepo.Create(ctx, admin); err != nil {
		appLogger.Fatal("Failed to create admin user", zap.Error(err))
	}

	appLogger.Info("Database seeding completed successfully!",
		zap.String("admin_id", admin.ID.String()),
	)
}
