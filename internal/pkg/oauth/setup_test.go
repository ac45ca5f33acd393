package oauth

import (
	"testing"
	"time"

	"github.com/markbates/goth"
	"github.com/stretchr/testify/assert"
)

func TestCallbackURL(t *testing.T) {
	t.Setenv("PUBLIC_DOMAIN", "https://app.example.com/")
	assert.Equal(t, "https://app.example.com/auth/github/callback", CallbackURL("github"))
}

func TestIdentity(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	id := Identity(goth.User{
		Provider:     "google",
		UserID:       "123",
		Email:        "a@example.com",
		NickName:     "ann",
		AccessToken:  "tok",
		RefreshToken: "ref",
		ExpiresAt:    exp,
	})
	assert.Equal(t, "google", id.Provider)
	assert.Equal(t, "123", id.ProviderUserID)
	assert.Equal(t, "ann", id.NickName)
	assert.Equal(t, exp, id.ExpiresAt)
}
