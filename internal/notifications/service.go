package notifications

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
)

// Notifier is what workflow services depend on. Delivery failures never
// surface to the caller.
type Notifier interface {
	Notify(ctx context.Context, req *NotificationRequest)
}

// Pusher delivers realtime events; implemented by websocket.Manager.
type Pusher interface {
	PushToUsers(event string, payload interface{}, userIDs ...uuid.UUID)
	PushToRole(role auth.Role, event string, payload interface{})
}

// Preferences reports whether a user accepts a channel.
type Preferences interface {
	Allows(ctx context.Context, userID uuid.UUID, channel string) bool
}

// DeliveryStore persists delivery attempts.
type DeliveryStore interface {
	RecordDelivery(ctx context.Context, log *DeliveryLog) error
}

// Service fans a notification out over the configured channels. Any channel
// may be nil.
type Service struct {
	email   *EmailChannel
	events  *EventPublisher
	pusher  Pusher
	store   DeliveryStore
	prefs   Preferences
	logger  *zap.Logger
	timeout time.Duration
}

type Option func(*Service)

func WithEmail(email *EmailChannel) Option { return func(s *Service) { s.email = email } }
func WithEvents(events *EventPublisher) Option { return func(s *Service) { s.events = events } }
func WithPusher(pusher Pusher) Option { return func(s *Service) { s.pusher = pusher } }
func WithDeliveryStore(store DeliveryStore) Option { return func(s *Service) { s.store = store } }
func WithPreferences(prefs Preferences) Option { return func(s *Service) { s.prefs = prefs } }

func NewService(logger *zap.Logger, opts ...Option) *Service {
	s := &Service{logger: logger, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notify sends req over push, email and the event topic.
func (s *Service) Notify(ctx context.Context, req *NotificationRequest) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if s.pusher != nil {
		payload := map[string]interface{}{"subject": req.Subject, "data": req.Data}
		if req.Recipient != nil && s.allows(ctx, req.Recipient, ChannelWebSocket) {
			s.pusher.PushToUsers(req.Event, payload, req.Recipient.UserID)
		}
		if req.NotifyAdmins {
			s.pusher.PushToRole(auth.RoleAdmin, req.Event, payload)
		}
		s.record(ctx, req, ChannelWebSocket, StatusSent, "", nil)
	}

	switch {
	case s.email == nil:
	case req.Recipient == nil || req.Recipient.Email == "" || !s.allows(ctx, req.Recipient, ChannelEmail):
		s.record(ctx, req, ChannelEmail, StatusSkipped, "", nil)
	default:
		id, err := s.email.Send(ctx, req)
		s.result(ctx, req, ChannelEmail, id, err)
	}

	if s.events != nil {
		id, err := s.events.Publish(ctx, req)
		s.result(ctx, req, ChannelEvents, id, err)
	}
}

// allows consults the recipient's preferences; admin broadcasts and the
// event topic are not subject to them.
func (s *Service) allows(ctx context.Context, r *Recipient, channel string) bool {
	return s.prefs == nil || s.prefs.Allows(ctx, r.UserID, channel)
}

func (s *Service) result(ctx context.Context, req *NotificationRequest, channel, providerID string, err error) {
	if err != nil {
		s.logger.Warn("Notification delivery failed",
			zap.String("event", req.Event),
			zap.String("channel", channel),
			zap.Error(err))
		s.record(ctx, req, channel, StatusFailed, "", err)
		return
	}
	s.record(ctx, req, channel, StatusSent, providerID, nil)
}

func (s *Service) record(ctx context.Context, req *NotificationRequest, channel, status, providerID string, cause error) {
	if s.store == nil {
		return
	}

	entry := &DeliveryLog{
		Event:      req.Event,
		Channel:    channel,
		Status:     status,
		ProviderID: providerID,
	}
	if req.Recipient != nil {
		id := req.Recipient.UserID
		entry.UserID = &id
	}
	if cause != nil {
		entry.ErrorMessage = cause.Error()
	}
	if len(req.Data) > 0 {
		if data, err := json.Marshal(req.Data); err == nil {
			entry.Metadata = datatypes.JSON(data)
		}
	}

	if err := s.store.RecordDelivery(ctx, entry); err != nil {
		s.logger.Warn("Failed to record delivery", zap.String("event", req.Event), zap.Error(err))
	}
}

type gormDeliveryStore struct {
	db *gorm.DB
}

func NewDeliveryStore(db *gorm.DB) DeliveryStore {
	return &gormDeliveryStore{db: db}
}

func (g *gormDeliveryStore) RecordDelivery(ctx context.Context, log *DeliveryLog) error {
	return g.db.WithContext(ctx).Create(log).Error
}
