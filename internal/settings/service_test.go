package settings

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/internal/notifications"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetNotifications(ctx context.Context, userID uuid.UUID) (*NotificationPreferences, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*NotificationPreferences), args.Error(1)
}

func (m *MockRepository) SaveNotifications(ctx context.Context, prefs *NotificationPreferences) error {
	return m.Called(ctx, prefs).Error(0)
}

func TestDefaultsWhenNothingStored(t *testing.T) {
	repo := new(MockRepository)
	actor := auth.Actor{UserID: uuid.New(), Role: auth.RoleOwner}
	repo.On("GetNotifications", mock.Anything, actor.UserID).Return(nil, nil)

	svc := NewService(repo, zap.NewNop())
	prefs, err := svc.GetNotifications(context.Background(), actor)
	require.NoError(t, err)
	assert.True(t, prefs.Email)
	assert.True(t, prefs.Push)
	assert.True(t, svc.Allows(context.Background(), actor.UserID, notifications.ChannelEmail))
}

func TestUpdateChangesOnlyGivenChannels(t *testing.T) {
	repo := new(MockRepository)
	actor := auth.Actor{UserID: uuid.New(), Role: auth.RoleOwner}
	repo.On("GetNotifications", mock.Anything, actor.UserID).Return(nil, nil)
	repo.On("SaveNotifications", mock.Anything, mock.MatchedBy(func(p *NotificationPreferences) bool {
		return p.UserID == actor.UserID && !p.Email && p.Push
	})).Return(nil)

	off := false
	prefs, err := NewService(repo, zap.NewNop()).UpdateNotifications(context.Background(), actor, UpdateNotificationsRequest{Email: &off})
	require.NoError(t, err)
	assert.False(t, prefs.Email)
	assert.True(t, prefs.Push)
	repo.AssertExpectations(t)
}

func TestAllowsFollowsStoredPreferences(t *testing.T) {
	repo := new(MockRepository)
	userID := uuid.New()
	repo.On("GetNotifications", mock.Anything, userID).Return(&NotificationPreferences{UserID: userID, Email: false, Push: true}, nil)

	svc := NewService(repo, zap.NewNop())
	ctx := context.Background()
	assert.False(t, svc.Allows(ctx, userID, notifications.ChannelEmail))
	assert.True(t, svc.Allows(ctx, userID, notifications.ChannelWebSocket))
	assert.True(t, svc.Allows(ctx, userID, notifications.ChannelEvents))
}

func TestAllowsOnLookupFailure(t *testing.T) {
	repo := new(MockRepository)
	userID := uuid.New()
	repo.On("GetNotifications", mock.Anything, userID).Return(nil, assert.AnError)

	assert.True(t, NewService(repo, zap.NewNop()).Allows(context.Background(), userID, notifications.ChannelEmail))
}
