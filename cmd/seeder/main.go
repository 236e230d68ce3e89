package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/filedepot/filedepot/internal/db"
	"github.com/filedepot/filedepot/internal/seed"
	"github.com/filedepot/filedepot/pkg/config"
	"github.com/filedepot/filedepot/pkg/logging"
)

// seeder migrates the schema, converts a legacy files table and inserts the
// sample data into an empty database, then exits.
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting filedepot seeder")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	result, err := seed.New(db.NewRepository(database.DB)).Run(ctx)
	if err != nil {
		logger.Fatal("Seeding failed", zap.Error(err))
	}

	logger.Info("Seeder finished",
		zap.Int("migrated_files", result.MigratedFiles),
		zap.Int("categories", result.Categories),
		zap.Int("posts", result.Posts),
		zap.Int("attachments", result.Attachments))
}
