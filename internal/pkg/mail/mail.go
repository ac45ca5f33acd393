// Package mail renders the transactional templates and delivers them over SMTP or SES.
package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/a-h/templ"

	"github.com/ManuelReschke/saaskit/internal/pkg/env"
	"github.com/ManuelReschke/saaskit/internal/pkg/views"
)

// Template names accepted by Render and the send_email job.
const (
	TemplateAccountConfirmation = "account_confirmation"
	TemplatePasswordReset       = "password_reset"
	TemplateSubscriptionError   = "subscription_error"
	TemplateTrialExpiresSoon    = "trial_expires_soon"
)

var ErrUnknownTemplate = errors.New("unknown mail template")

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Envelope is what callers hand to a Dispatcher. Rendering happens in the worker.
type Envelope struct {
	To       string          `json:"to"`
	Template string          `json:"template"`
	Data     views.EmailData `json:"data"`
}

// Dispatcher queues an envelope for asynchronous delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, e Envelope) error
}

type Config struct {
	Backend      string
	Sender       string
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Backend:      env.GetEnv("MAIL_BACKEND", "smtp"),
		Sender:       env.GetEnv("SMTP_SENDER", ""),
		SMTPHost:     env.GetEnv("SMTP_HOST", "localhost"),
		SMTPPort:     env.GetEnv("SMTP_PORT", "25"),
		SMTPUsername: env.GetEnv("SMTP_USERNAME", ""),
		SMTPPassword: env.GetEnv("SMTP_PASSWORD", ""),
	}
	if cfg.Sender == "" {
		cfg.Sender = "no-reply@localhost"
	}
	switch cfg.Backend {
	case "smtp", "ses":
	default:
		return nil, fmt.Errorf("MAIL_BACKEND must be smtp or ses, got %q", cfg.Backend)
	}
	return cfg, nil
}

// Render builds subject and body for the named template.
func Render(ctx context.Context, e Envelope) (Message, error) {
	d := e.Data
	if d.SiteName == "" {
		d.SiteName = env.SiteName()
	}
	if d.Domain == "" {
		d.Domain = env.PublicBaseURL()
	}

	var (
		subject string
		body    templ.Component
	)
	switch e.Template {
	case TemplateAccountConfirmation:
		subject, body = "Confirm your "+d.SiteName+" account", views.AccountConfirmationEmail(d)
	case TemplatePasswordReset:
		subject, body = "Reset your "+d.SiteName+" password", views.PasswordResetEmail(d)
	case TemplateSubscriptionError:
		subject, body = "Payment for your "+d.SiteName+" subscription failed", views.SubscriptionErrorEmail(d)
	case TemplateTrialExpiresSoon:
		subject, body = "Your "+d.SiteName+" trial ends soon", views.TrialExpiresSoonEmail(d)
	default:
		return Message{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, e.Template)
	}

	html, err := views.RenderString(ctx, body)
	if err != nil {
		return Message{}, err
	}
	return Message{To: e.To, Subject: subject, HTML: html}, nil
}
