package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/internal/bootstrap"
	"propertyhub/owner-portal/owner-portal-backend/internal/config"
	"propertyhub/owner-portal/owner-portal-backend/internal/handovers"
	"propertyhub/owner-portal/owner-portal-backend/internal/notifications/websocket"
	"propertyhub/owner-portal/owner-portal-backend/internal/settings"
	"propertyhub/owner-portal/owner-portal-backend/internal/threads"
	"propertyhub/owner-portal/owner-portal-backend/internal/uploads"
	"propertyhub/owner-portal/owner-portal-backend/internal/verification"
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

	db, err := bootstrap.OpenDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	store, err := bootstrap.OpenStorage(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}

	// Push hub
	hub := websocket.NewManager(cfg.CORS.AllowedOrigins, logger)
	go hub.Run(ctx)

	settingsService := settings.NewService(settings.NewRepository(db), logger)
	notifier, err := bootstrap.NewNotifier(ctx, cfg, db, hub, settingsService, logger)
	if err != nil {
		logger.Fatal("Failed to configure notifications", zap.Error(err))
	}

	// Auth
	tokens := auth.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	authService := auth.NewService(auth.NewRepository(db), tokens, logger)
	if cfg.Security.AdminEmail != "" {
		if err := authService.SeedAdmin(ctx, cfg.Security.AdminEmail, cfg.Security.AdminPassword); err != nil {
			logger.Fatal("Failed to seed admin", zap.Error(err))
		}
	}

	// Verification
	verificationService := verification.NewService(verification.NewRepository(db), store, notifier, cfg.Uploads.MaxBytes, logger)

	// Threads and handovers
	threadService := threads.NewService(threads.NewRepository(db), hub, logger)
	handoverRepo := handovers.NewRepository(db)
	threadService.RegisterGate(threads.SubjectHandover, handovers.NewThreadGate(handoverRepo))

	pdfQueue := handovers.NewPDFQueue(cfg.Workers.PDFQueueSize)
	handoverService := handovers.NewService(handoverRepo, handovers.Config{
		Cache:        bootstrap.NewViewCache(ctx, cfg.Cache, logger),
		MaxStaleness: cfg.Cache.MaxStaleness,
		Threads:      threadService,
		Notifier:     notifier,
		PDFQueue:     pdfQueue,
	}, logger)

	pdfWorker := handovers.NewPDFWorker(pdfQueue, handoverRepo, handoverService, store, pdf.NewGenerator(pdf.DefaultOptions()), logger)
	if err := pdfWorker.Start(ctx, cfg.Workers.PDFConcurrency, cfg.Workers.PDFSweepSchedule); err != nil {
		logger.Fatal("Failed to start PDF worker", zap.Error(err))
	}

	// Router
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), bootstrap.RequestLogger(logger), bootstrap.CORS(cfg.CORS))

	router.GET("/health", func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":      status,
			"timestamp":   time.Now().UTC(),
			"connections": hub.ConnectionCount(),
		})
	})

	api := router.Group("/api/v1")
	auth.NewHandler(authService, tokens, logger).RegisterRoutes(api)

	protected := api.Group("", auth.RequireAuth(tokens))
	{
		verification.NewHandler(verificationService, cfg.Uploads.MaxBytes, logger).RegisterRoutes(protected)
		uploads.NewHandler(store, cfg.Uploads.MaxBytes, logger).RegisterRoutes(protected)
		websocket.NewHandler(hub, logger).RegisterRoutes(protected)
		settings.NewHandler(settingsService, logger).RegisterRoutes(protected)
		handovers.NewHandler(handoverService, threads.NewHandler(threadService, logger), logger).
			RegisterRoutes(protected, verification.RequireDashboardAccess(verificationService, logger))
	}

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()
	logger.Info("Server started", zap.String("addr", srv.Addr))

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	pdfWorker.Stop()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("Server exiting")
}
