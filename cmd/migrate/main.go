package main

import (
	"context"
	"database/sql"
	"log"

	"gastoflow/migrations"
	"gastoflow/pkg/config"
	"gastoflow/pkg/logger"
	"gastoflow/pkg/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Logger.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	db, err := sql.Open("pgx", postgres.DSN(&cfg.Database))
	if err != nil {
		appLogger.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		appLogger.Fatal("Failed to set goose dialect", zap.Error(err))
	}

	if err := goose.UpContext(context.Background(), db, "."); err != nil {
		appLogger.Fatal("Failed to apply migrations", zap.Error(err))
	}

	appLogger.Info("Migrations applied")
}
