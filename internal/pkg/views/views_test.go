package views

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/saaskit/app/models"
)

func TestChatMessageEscapesText(t *testing.T) {
	msg := models.Message{ID: 7, Text: "<script>x</script>", IsAI: true, SQLQuery: "SELECT 1", CreatedAt: time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)}

	html, err := RenderString(context.Background(), ChatMessage(msg))
	require.NoError(t, err)

	assert.Contains(t, html, `id="msg-7"`)
	assert.Contains(t, html, "&lt;script&gt;")
	assert.NotContains(t, html, "<script>x")
	assert.Contains(t, html, "SELECT 1")
	assert.Contains(t, html, "Assistant")
}

func TestChatMessageUserHasNoQuery(t *testing.T) {
	html, err := RenderString(context.Background(), ChatMessage(models.Message{ID: 1, Text: "hi", SQLQuery: "SELECT 1"}))
	require.NoError(t, err)
	assert.NotContains(t, html, "<details>")
	assert.Contains(t, html, "You")
}

func TestErrorPage(t *testing.T) {
	html, err := RenderString(context.Background(), ErrorPage("Acme", 404, ""))
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>404</h1>")
	assert.Contains(t, html, "Not Found")
	assert.Contains(t, html, "Back to Acme")
}

func TestEmailLinks(t *testing.T) {
	d := EmailData{SiteName: "Acme", Domain: "https://acme.test", UserID: 3, Name: "Ann", Token: "abc"}

	html, err := RenderString(context.Background(), AccountConfirmationEmail(d))
	require.NoError(t, err)
	assert.Contains(t, html, "https://acme.test/activate?token=abc&amp;user=3")

	html, err = RenderString(context.Background(), TrialExpiresSoonEmail(EmailData{Domain: "https://acme.test", ExpiryDate: "2024-02-01"}))
	require.NoError(t, err)
	assert.Contains(t, html, "2024-02-01")
	assert.Contains(t, html, "https://acme.test/pricing")
}

func TestPagesRenderFlash(t *testing.T) {
	html, err := RenderString(context.Background(), Home("Acme", "<b>hi</b>", true))
	require.NoError(t, err)
	assert.Contains(t, html, "&lt;b&gt;hi&lt;/b&gt;")
	assert.Contains(t, html, `href="/dashboard"`)

	html, err = RenderString(context.Background(), Login("Acme", "", "tok"))
	require.NoError(t, err)
	assert.Contains(t, html, `name="_csrf" value="tok"`)
	assert.NotContains(t, html, `class="flash"`)

	html, err = RenderString(context.Background(), ResetPassword("Acme", "c", "t0k"))
	require.NoError(t, err)
	assert.Contains(t, html, `name="token" value="t0k"`)
}
