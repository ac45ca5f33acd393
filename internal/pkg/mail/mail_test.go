package mail

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/saaskit/internal/pkg/views"
)

func TestRenderTemplates(t *testing.T) {
	tests := []struct {
		template string
		subject  string
		body     string
	}{
		{TemplateAccountConfirmation, "Confirm your Acme account", "/activate?token=tok"},
		{TemplatePasswordReset, "Reset your Acme password", "/password/reset/confirm?token=tok"},
		{TemplateSubscriptionError, "Payment for your Acme subscription failed", "/billing"},
		{TemplateTrialExpiresSoon, "Your Acme trial ends soon", "/pricing"},
	}

	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			msg, err := Render(context.Background(), Envelope{
				To:       "ann@example.com",
				Template: tt.template,
				Data:     views.EmailData{SiteName: "Acme", Domain: "https://acme.test", Token: "tok", Name: "Ann"},
			})
			require.NoError(t, err)
			assert.Equal(t, "ann@example.com", msg.To)
			assert.Equal(t, tt.subject, msg.Subject)
			assert.Contains(t, msg.HTML, tt.body)
		})
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Render(context.Background(), Envelope{Template: "nope"})
	assert.True(t, errors.Is(err, ErrUnknownTemplate))
}

func TestSMTPMailerBuildsMessage(t *testing.T) {
	var gotAddr string
	var gotTo []string
	var gotMsg []byte
	m := &SMTPMailer{Host: "mail.test", Port: "2525", Sender: "no-reply@acme.test",
		send: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotTo, gotMsg = addr, to, msg
			return nil
		}}

	err := m.Send(context.Background(), Message{To: "ann@example.com", Subject: "Hi", HTML: "<p>x</p>"})
	require.NoError(t, err)
	assert.Equal(t, "mail.test:2525", gotAddr)
	assert.Equal(t, []string{"ann@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: Hi\r\n")
	assert.Contains(t, string(gotMsg), "Content-Type: text/html")
}

type fakeSES struct {
	input *sesv2.SendEmailInput
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	return &sesv2.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

func TestSESMailer(t *testing.T) {
	client := &fakeSES{}
	m := NewSESMailer(client, "no-reply@acme.test")

	require.NoError(t, m.Send(context.Background(), Message{To: "ann@example.com", Subject: "Hi", HTML: "<p>x</p>"}))
	require.NotNil(t, client.input)
	assert.Equal(t, "no-reply@acme.test", aws.ToString(client.input.FromEmailAddress))
	assert.Equal(t, []string{"ann@example.com"}, client.input.Destination.ToAddresses)
	assert.Equal(t, "<p>x</p>", aws.ToString(client.input.Content.Simple.Body.Html.Data))
}
