package views

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/a-h/templ"
)

// EmailData is shared by all transactional mail templates.
type EmailData struct {
	SiteName   string
	Domain     string
	UserID     uint
	Name       string
	Token      string
	ExpiryDate string
}

func (d EmailData) link(path string) string {
	q := url.Values{}
	if d.Token != "" {
		q.Set("token", d.Token)
	}
	if d.UserID != 0 {
		q.Set("user", fmt.Sprint(d.UserID))
	}
	if len(q) == 0 {
		return d.Domain + path
	}
	return d.Domain + path + "?" + q.Encode()
}

func emailShell(d EmailData, heading string, content templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := writef(w, `<!DOCTYPE html><html><body style="font-family:sans-serif"><h2>%s</h2><p>Hi %s,</p>`, esc(heading), esc(d.Name)); err != nil {
			return err
		}
		if err := content.Render(ctx, w); err != nil {
			return err
		}
		return writef(w, `<p>The %s team</p></body></html>`, esc(d.SiteName))
	})
}

func AccountConfirmationEmail(d EmailData) templ.Component {
	return emailShell(d, "Confirm your account", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return writef(w, `<p>Thanks for signing up to %s. Please confirm your email address:</p><p><a href="%s">Activate account</a></p><p>The link is valid for 72 hours.</p>`,
			esc(d.SiteName), esc(d.link("/activate")))
	}))
}

func PasswordResetEmail(d EmailData) templ.Component {
	return emailShell(d, "Reset your password", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return writef(w, `<p>Someone asked to reset the password for your account. If that was you, continue here:</p><p><a href="%s">Choose a new password</a></p><p>If you did not request this you can ignore this email.</p>`,
			esc(d.link("/password/reset/confirm")))
	}))
}

func SubscriptionErrorEmail(d EmailData) templ.Component {
	return emailShell(d, "Payment failed", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return writef(w, `<p>We could not charge your payment method for your %s subscription.</p><p><a href="%s">Update your payment details</a></p>`,
			esc(d.SiteName), esc(d.Domain+"/billing"))
	}))
}

func TrialExpiresSoonEmail(d EmailData) templ.Component {
	return emailShell(d, "Your trial ends soon", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return writef(w, `<p>Your trial ends on %s. Choose a plan to keep access:</p><p><a href="%s">See plans</a></p>`,
			esc(d.ExpiryDate), esc(d.Domain+"/pricing"))
	}))
}
