// Command workers runs the handover certificate worker without the HTTP API.
// It recovers certificates for accepted handovers through the periodic sweep,
// so it can run beside API instances whose in-process queue was lost.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"propertyhub/owner-portal/owner-portal-backend/internal/bootstrap"
	"propertyhub/owner-portal/owner-portal-backend/internal/config"
	"propertyhub/owner-portal/owner-portal-backend/internal/handovers"
	"propertyhub/owner-portal/owner-portal-backend/internal/settings"
	"propertyhub/owner-portal/owner-portal-backend/pkg/pdf"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Println("Failed to load .env:", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		log.Fatal("Failed to build logger: ", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The API process owns migrations.
	cfg.Database.AutoMigrate = false
	db, err := bootstrap.OpenDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	store, err := bootstrap.OpenStorage(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	prefs := settings.NewService(settings.NewRepository(db), logger)
	notifier, err := bootstrap.NewNotifier(ctx, cfg, db, nil, prefs, logger)
	if err != nil {
		logger.Fatal("Failed to configure notifications", zap.Error(err))
	}

	repo := handovers.NewRepository(db)
	queue := handovers.NewPDFQueue(cfg.Workers.PDFQueueSize)
	service := handovers.NewService(repo, handovers.Config{
		Cache:        bootstrap.NewViewCache(ctx, cfg.Cache, logger),
		MaxStaleness: cfg.Cache.MaxStaleness,
		Notifier:     notifier,
		PDFQueue:     queue,
	}, logger)

	worker := handovers.NewPDFWorker(queue, repo, service, store, pdf.NewGenerator(pdf.DefaultOptions()), logger)
	if err := worker.Start(ctx, cfg.Workers.PDFConcurrency, cfg.Workers.PDFSweepSchedule); err != nil {
		logger.Fatal("Failed to start PDF worker", zap.Error(err))
	}
	// Catch up immediately instead of waiting for the first tick.
	worker.Sweep(ctx)

	<-ctx.Done()
	logger.Info("Shutdown signal received")
	worker.Stop()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
