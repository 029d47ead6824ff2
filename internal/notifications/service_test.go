package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
)

type MockSES struct {
	mock.Mock
}

func (m *MockSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sesv2.SendEmailOutput), args.Error(1)
}

type MockSNS struct {
	mock.Mock
}

func (m *MockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sns.PublishOutput), args.Error(1)
}

type MockPusher struct {
	mock.Mock
}

func (m *MockPusher) PushToUsers(event string, payload interface{}, userIDs ...uuid.UUID) {
	m.Called(event, payload, userIDs)
}

func (m *MockPusher) PushToRole(role auth.Role, event string, payload interface{}) {
	m.Called(role, event, payload)
}

type memoryStore struct {
	logs []*DeliveryLog
}

func (s *memoryStore) RecordDelivery(ctx context.Context, log *DeliveryLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func (s *memoryStore) statuses() map[string]string {
	out := make(map[string]string)
	for _, l := range s.logs {
		out[l.Channel] = l.Status
	}
	return out
}

func testRequest() *NotificationRequest {
	return &NotificationRequest{
		Event:     EventHandoverSent,
		Recipient: &Recipient{UserID: uuid.New(), Email: "owner@example.com", Name: "Owner"},
		Subject:   "Your handover is ready",
		Body:      "Please review the handover checklist.",
		Link:      "/handovers/abc",
		Data:      map[string]interface{}{"handoverId": "abc"},
	}
}

func TestNotifyFansOutToAllChannels(t *testing.T) {
	ses := new(MockSES)
	topic := new(MockSNS)
	pusher := new(MockPusher)
	store := &memoryStore{}
	req := testRequest()

	ses.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *sesv2.SendEmailInput) bool {
		return in.Destination.ToAddresses[0] == "owner@example.com" &&
			aws.ToString(in.FromEmailAddress) == "Owner Portal <noreply@example.com>" &&
			aws.ToString(in.Content.Simple.Body.Text.Data) == "Please review the handover checklist.\n\nhttps://portal.example.com/handovers/abc"
	})).Return(&sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil)
	topic.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return aws.ToString(in.TopicArn) == "arn:aws:sns:us-east-1:1:events" &&
			aws.ToString(in.MessageAttributes["event"].StringValue) == EventHandoverSent
	})).Return(&sns.PublishOutput{MessageId: aws.String("sns-1")}, nil)
	pusher.On("PushToUsers", EventHandoverSent, mock.Anything, []uuid.UUID{req.Recipient.UserID}).Return()

	svc := NewService(zap.NewNop(),
		WithEmail(NewEmailChannel(ses, "noreply@example.com", "Owner Portal", "https://portal.example.com")),
		WithEvents(NewEventPublisher(topic, "arn:aws:sns:us-east-1:1:events")),
		WithPusher(pusher),
		WithDeliveryStore(store))

	svc.Notify(context.Background(), req)

	ses.AssertExpectations(t)
	topic.AssertExpectations(t)
	pusher.AssertExpectations(t)
	pusher.AssertNotCalled(t, "PushToRole", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, map[string]string{
		ChannelWebSocket: StatusSent,
		ChannelEmail:     StatusSent,
		ChannelEvents:    StatusSent,
	}, store.statuses())
}

func TestNotifySwallowsChannelFailures(t *testing.T) {
	ses := new(MockSES)
	ses.On("SendEmail", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))
	store := &memoryStore{}

	svc := NewService(zap.NewNop(),
		WithEmail(NewEmailChannel(ses, "noreply@example.com", "", "")),
		WithDeliveryStore(store))

	assert.NotPanics(t, func() { svc.Notify(context.Background(), testRequest()) })
	require.Len(t, store.logs, 1)
	assert.Equal(t, StatusFailed, store.logs[0].Status)
	assert.Contains(t, store.logs[0].ErrorMessage, "throttled")
}

func TestNotifyWithoutEmailAddressSkipsEmail(t *testing.T) {
	ses := new(MockSES)
	store := &memoryStore{}
	req := testRequest()
	req.Recipient.Email = ""

	svc := NewService(zap.NewNop(), WithEmail(NewEmailChannel(ses, "noreply@example.com", "", "")), WithDeliveryStore(store))
	svc.Notify(context.Background(), req)

	ses.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
	assert.Equal(t, StatusSkipped, store.statuses()[ChannelEmail])
}

func TestNotifyAdminsPushesToRole(t *testing.T) {
	pusher := new(MockPusher)
	pusher.On("PushToRole", auth.RoleAdmin, EventVerificationSubmitted, mock.Anything).Return()

	svc := NewService(zap.NewNop(), WithPusher(pusher))
	svc.Notify(context.Background(), &NotificationRequest{Event: EventVerificationSubmitted, NotifyAdmins: true})

	pusher.AssertExpectations(t)
}

type optOut map[string]bool

func (o optOut) Allows(ctx context.Context, userID uuid.UUID, channel string) bool {
	return !o[channel]
}

func TestNotifyHonoursRecipientPreferences(t *testing.T) {
	ses := new(MockSES)
	pusher := new(MockPusher)
	pusher.On("PushToRole", auth.RoleAdmin, EventHandoverSent, mock.Anything).Return()
	store := &memoryStore{}
	req := testRequest()
	req.NotifyAdmins = true

	svc := NewService(zap.NewNop(),
		WithEmail(NewEmailChannel(ses, "noreply@example.com", "", "")),
		WithPusher(pusher),
		WithDeliveryStore(store),
		WithPreferences(optOut{ChannelEmail: true, ChannelWebSocket: true}))
	svc.Notify(context.Background(), req)

	ses.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
	pusher.AssertNotCalled(t, "PushToUsers", mock.Anything, mock.Anything, mock.Anything)
	pusher.AssertExpectations(t)
	assert.Equal(t, StatusSkipped, store.statuses()[ChannelEmail])
}
