// Package bootstrap builds the infrastructure clients shared by the API
// server and the standalone worker from configuration.
package bootstrap

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/internal/config"
	"propertyhub/owner-portal/owner-portal-backend/internal/database"
	"propertyhub/owner-portal/owner-portal-backend/internal/handovers"
	"propertyhub/owner-portal/owner-portal-backend/internal/notifications"
	"propertyhub/owner-portal/owner-portal-backend/internal/settings"
	"propertyhub/owner-portal/owner-portal-backend/internal/threads"
	"propertyhub/owner-portal/owner-portal-backend/internal/verification"
	"propertyhub/owner-portal/owner-portal-backend/pkg/storage"
)

// localStorageURL prefixes object URLs when no bucket is configured.
const localStorageURL = "http://localhost/objects"

// Models lists every table owned by the service.
func Models() []interface{} {
	return []interface{}{
		&auth.User{},
		&verification.OwnerDocument{},
		&verification.VerificationEvent{},
		&handovers.Handover{},
		&handovers.HandoverItem{},
		&handovers.HandoverEvent{},
		&threads.Message{},
		&notifications.DeliveryLog{},
		&settings.NotificationPreferences{},
	}
}

// OpenDatabase connects and, when configured, migrates the schema.
func OpenDatabase(cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, Models()...); err != nil {
			return nil, err
		}
		logger.Info("Database schema migrated")
	}
	return db, nil
}

// OpenStorage returns the S3 client, or an in-memory store for local
// development when no bucket is configured.
func OpenStorage(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.S3Client, error) {
	if cfg.Bucket == "" {
		logger.Warn("No storage bucket configured, keeping objects in memory")
		return storage.NewMemoryClient(localStorageURL), nil
	}
	client, err := storage.NewS3Client(ctx, storage.S3Config{
		Bucket:          cfg.Bucket,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		PublicBaseURL:   cfg.PublicBaseURL,
		UsePathStyle:    cfg.UsePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return client, nil
}

// NewNotifier wires the email and event channels that are configured.
// pusher may be nil in processes without websocket clients.
func NewNotifier(ctx context.Context, cfg *config.Config, db *gorm.DB, pusher notifications.Pusher, prefs notifications.Preferences, logger *zap.Logger) (*notifications.Service, error) {
	opts := []notifications.Option{
		notifications.WithDeliveryStore(notifications.NewDeliveryStore(db)),
		notifications.WithPreferences(prefs),
	}
	if pusher != nil {
		opts = append(opts, notifications.WithPusher(pusher))
	}

	if cfg.Email.FromAddress != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(regionOr(cfg.Email.Region, cfg.Storage.Region)))
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config for email: %w", err)
		}
		opts = append(opts, notifications.WithEmail(notifications.NewEmailChannel(
			sesv2.NewFromConfig(awsCfg), cfg.Email.FromAddress, cfg.Email.FromName, cfg.Email.PortalURL)))
	} else {
		logger.Info("Email notifications disabled")
	}

	if cfg.Events.TopicARN != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(regionOr(cfg.Events.Region, cfg.Storage.Region)))
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config for events: %w", err)
		}
		opts = append(opts, notifications.WithEvents(notifications.NewEventPublisher(sns.NewFromConfig(awsCfg), cfg.Events.TopicARN)))
	} else {
		logger.Info("Domain event publishing disabled")
	}

	return notifications.NewService(logger, opts...), nil
}

// NewViewCache prefers Redis and falls back to a per-process cache.
func NewViewCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) handovers.ViewCache {
	client, err := cfg.NewRedisClient(ctx)
	if err != nil {
		logger.Warn("Redis unavailable, using in-process handover cache", zap.Error(err))
	}
	if client == nil {
		return handovers.NewMemoryViewCache(cfg.MaxStaleness)
	}
	return handovers.NewRedisViewCache(client, cfg.Prefix, cfg.MaxStaleness, logger)
}

func regionOr(region, fallback string) string {
	if region != "" {
		return region
	}
	return fallback
}
