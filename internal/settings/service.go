package settings

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/internal/notifications"
)

type Service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) GetNotifications(ctx context.Context, actor auth.Actor) (*NotificationPreferences, error) {
	prefs, err := s.repo.GetNotifications(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if prefs == nil {
		return DefaultPreferences(actor.UserID), nil
	}
	return prefs, nil
}

func (s *Service) UpdateNotifications(ctx context.Context, actor auth.Actor, req UpdateNotificationsRequest) (*NotificationPreferences, error) {
	prefs, err := s.GetNotifications(ctx, actor)
	if err != nil {
		return nil, err
	}
	if req.Email != nil {
		prefs.Email = *req.Email
	}
	if req.Push != nil {
		prefs.Push = *req.Push
	}
	if err := s.repo.SaveNotifications(ctx, prefs); err != nil {
		return nil, err
	}
	s.logger.Info("Notification preferences updated",
		zap.String("user_id", actor.UserID.String()),
		zap.Bool("email", prefs.Email),
		zap.Bool("push", prefs.Push))
	return prefs, nil
}

// Allows implements notifications.Preferences. Lookup failures allow delivery.
func (s *Service) Allows(ctx context.Context, userID uuid.UUID, channel string) bool {
	prefs, err := s.repo.GetNotifications(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to load notification preferences",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return true
	}
	if prefs == nil {
		return true
	}
	switch channel {
	case notifications.ChannelEmail:
		return prefs.Email
	case notifications.ChannelWebSocket:
		return prefs.Push
	default:
		return true
	}
}
