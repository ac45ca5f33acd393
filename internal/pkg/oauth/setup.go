// Package oauth registers the goth providers used for social login.
package oauth

import (
	"strings"
	"time"

	fibersession "github.com/gofiber/fiber/v2/middleware/session"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/github"
	"github.com/markbates/goth/providers/google"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/ManuelReschke/saaskit/internal/pkg/accounts"
	"github.com/ManuelReschke/saaskit/internal/pkg/cache"
	"github.com/ManuelReschke/saaskit/internal/pkg/env"
	"github.com/ManuelReschke/saaskit/internal/pkg/session"
)

// Providers lists the provider names accepted under /auth/:provider.
var Providers = []string{"google", "github"}

// CallbackURL is where the provider sends the user back.
func CallbackURL(provider string) string {
	return strings.TrimRight(env.PublicBaseURL(), "/") + "/auth/" + provider + "/callback"
}

// Setup initializes Goth providers and session store based on environment variables.
// It is safe to call multiple times; providers will just be re-registered.
func Setup() {
	goth.UseProviders(
		google.New(
			env.GetEnv("GOOGLE_KEY", ""),
			env.GetEnv("GOOGLE_SECRET", ""),
			CallbackURL("google"),
			"email", "profile",
		),
		github.New(
			env.GetEnv("GITHUB_KEY", ""),
			env.GetEnv("GITHUB_SECRET", ""),
			CallbackURL("github"),
			"read:user", "user:email",
		),
	)

	// OAuth state lives next to the app sessions in its own redis db
	gothfiber.SessionStore = fibersession.New(fibersession.Config{
		Storage:        session.RedisStorage(cache.DBOAuth),
		KeyLookup:      "cookie:" + gothic.SessionName,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		CookieSecure:   !env.IsDev(),
		Expiration:     72 * time.Hour,
	})
}

// Identity maps a completed goth login onto the account linking input.
func Identity(u goth.User) accounts.OAuthIdentity {
	return accounts.OAuthIdentity{
		Provider:       u.Provider,
		ProviderUserID: u.UserID,
		Email:          u.Email,
		Name:           u.Name,
		NickName:       u.NickName,
		AvatarURL:      u.AvatarURL,
		AccessToken:    u.AccessToken,
		RefreshToken:   u.RefreshToken,
		ExpiresAt:      u.ExpiresAt,
	}
}
