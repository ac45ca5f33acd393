package views

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

func flashBox(w io.Writer, flash string) error {
	if flash == "" {
		return nil
	}
	return writef(w, `<div class="flash">%s</div>`, esc(flash))
}

// Home is the start page.
func Home(siteName, flash string, loggedIn bool) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := writef(w, `<main class="home"><h1>%s</h1>`, esc(siteName)); err != nil {
			return err
		}
		if err := flashBox(w, flash); err != nil {
			return err
		}
		links := `<a href="/login">Log in</a> <a href="/pricing">Pricing</a>`
		if loggedIn {
			links = `<a href="/dashboard">Dashboard</a> <a href="/notifications">Notifications</a>`
		}
		return writef(w, `<nav>%s</nav></main>`, links)
	})
	return Layout(siteName, body)
}

// Login renders the email/password form. The OTP step is driven by app.js.
func Login(siteName, flash, csrf string) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := writef(w, `<main class="login"><h1>Log in</h1>`); err != nil {
			return err
		}
		if err := flashBox(w, flash); err != nil {
			return err
		}
		return writef(w, `<form id="login-form" method="post" action="/login"><input type="hidden" name="_csrf" value="%s">`+
			`<input type="email" name="email" required><input type="password" name="password" required>`+
			`<button type="submit">Log in</button></form>`+
			`<p><a href="/auth/google">Google</a> <a href="/auth/github">GitHub</a></p></main>`,
			esc(csrf))
	})
	return Layout("Log in | "+siteName, body)
}

// ResetPassword renders the new password form for a reset token.
func ResetPassword(siteName, csrf, token string) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return writef(w, `<main class="reset"><h1>Choose a new password</h1><form method="post" action="/password/reset/confirm">`+
			`<input type="hidden" name="_csrf" value="%s"><input type="hidden" name="token" value="%s">`+
			`<input type="password" name="password1" required><input type="password" name="password2" required>`+
			`<button type="submit">Save</button></form></main>`, esc(csrf), esc(token))
	})
	return Layout("Reset password | "+siteName, body)
}
