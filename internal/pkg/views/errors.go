package views

import (
	"context"
	"io"
	"net/http"

	"github.com/a-h/templ"
)

// ErrorPage renders the HTML error page for 400/403/404/500 responses.
func ErrorPage(siteName string, code int, message string) templ.Component {
	title := http.StatusText(code)
	if title == "" {
		title = "Error"
	}
	if message == "" {
		message = title
	}
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return writef(w, `<main class="error-page"><h1>%d</h1><h2>%s</h2><p>%s</p><a href="/">Back to %s</a></main>`,
			code, esc(title), esc(message), esc(siteName))
	})
	return Layout(title+" | "+siteName, body)
}
