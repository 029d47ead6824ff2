package settings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
)

type Repository interface {
	// GetNotifications returns nil without error when nothing is stored.
	GetNotifications(ctx context.Context, userID uuid.UUID) (*NotificationPreferences, error)
	SaveNotifications(ctx context.Context, prefs *NotificationPreferences) error
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetNotifications(ctx context.Context, userID uuid.UUID) (*NotificationPreferences, error) {
	var prefs NotificationPreferences
	err := r.db.WithContext(ctx).First(&prefs, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Infra("load notification preferences", err)
	}
	return &prefs, nil
}

func (r *gormRepository) SaveNotifications(ctx context.Context, prefs *NotificationPreferences) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "push", "updated_at"}),
	}).Create(prefs).Error
	if err != nil {
		return apperrors.Infra("save notification preferences", err)
	}
	return nil
}
