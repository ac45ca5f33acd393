package mail

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/gofiber/fiber/v2/log"
)

// SESClient is the subset of the SES v2 API used for sending.
type SESClient interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESMailer sends emails through Amazon SES v2
type SESMailer struct {
	client SESClient
	sender string
}

func NewSESMailer(client SESClient, sender string) *SESMailer {
	return &SESMailer{client: client, sender: sender}
}

func NewSESMailerFromConfig(awsCfg aws.Config, sender string) *SESMailer {
	return NewSESMailer(sesv2.NewFromConfig(awsCfg), sender)
}

func (m *SESMailer) Send(ctx context.Context, msg Message) error {
	out, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.sender),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send to %s: %w", msg.To, err)
	}
	log.Infof("[Mail] Email sent to %s via SES (message id %s)", msg.To, aws.ToString(out.MessageId))
	return nil
}
