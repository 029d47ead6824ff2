package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI is the subset of the SNS client used here.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// EventPublisher publishes domain events to an SNS topic for downstream
// consumers.
type EventPublisher struct {
	client   SNSAPI
	topicARN string
	now      func() time.Time
}

func NewEventPublisher(client SNSAPI, topicARN string) *EventPublisher {
	return &EventPublisher{client: client, topicARN: topicARN, now: time.Now}
}

type eventEnvelope struct {
	Event      string                 `json:"event"`
	UserID     string                 `json:"userId,omitempty"`
	OccurredAt time.Time              `json:"occurredAt"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// Publish returns the SNS message id.
func (p *EventPublisher) Publish(ctx context.Context, req *NotificationRequest) (string, error) {
	env := eventEnvelope{Event: req.Event, OccurredAt: p.now().UTC(), Data: req.Data}
	if req.Recipient != nil {
		env.UserID = req.Recipient.UserID.String()
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event": {DataType: aws.String("String"), StringValue: aws.String(req.Event)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("sns publish: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}
