package notifications

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI is the subset of the SES v2 client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailChannel sends plain-text email through SES.
type EmailChannel struct {
	client    SESAPI
	from      string
	portalURL string
}

func NewEmailChannel(client SESAPI, fromAddress, fromName, portalURL string) *EmailChannel {
	from := fromAddress
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, fromAddress)
	}
	return &EmailChannel{client: client, from: from, portalURL: portalURL}
}

// Send returns the SES message id.
func (e *EmailChannel) Send(ctx context.Context, req *NotificationRequest) (string, error) {
	body := req.Body
	if req.Link != "" && e.portalURL != "" {
		body += "\n\n" + e.portalURL + req.Link
	}

	out, err := e.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(e.from),
		Destination: &types.Destination{
			ToAddresses: []string{req.Recipient.Email},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(req.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("ses send email: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}
