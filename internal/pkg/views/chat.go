package views

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"github.com/ManuelReschke/saaskit/app/models"
)

// ChatMessage is the partial appended to the chat log in the browser.
func ChatMessage(msg models.Message) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		author, class := "You", "chat-message user"
		if msg.IsAI {
			author, class = "Assistant", "chat-message ai"
		}
		if err := writef(w, `<div class="%s" id="msg-%d"><span class="author">%s</span><p>%s</p>`,
			class, msg.ID, author, esc(msg.Text)); err != nil {
			return err
		}
		if msg.IsAI && msg.SQLQuery != "" {
			if err := writef(w, `<details><summary>Query</summary><pre><code>%s</code></pre></details>`, esc(msg.SQLQuery)); err != nil {
				return err
			}
		}
		return writef(w, `<time datetime="%s">%s</time></div>`,
			msg.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"), msg.CreatedAt.Format("15:04"))
	})
}
