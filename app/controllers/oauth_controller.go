package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	gothfiber "github.com/shareed2k/goth_fiber"
	"github.com/sujit-baniya/flash"

	"github.com/ManuelReschke/saaskit/internal/pkg/oauth"
	"github.com/ManuelReschke/saaskit/internal/pkg/services"
)

// HandleOAuthBegin sends the browser to the provider.
func HandleOAuthBegin(c *fiber.Ctx) error {
	return gothfiber.BeginAuthHandler(c)
}

// HandleOAuthCallback completes the provider flow and logs the user in
func HandleOAuthCallback(c *fiber.Ctx) error {
	u, err := gothfiber.CompleteUserAuth(c)
	if err != nil {
		log.Warnf("[Accounts] oauth callback failed: %v", err)
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Login with " + c.Params("provider") + " failed"}).
			Redirect("/login", fiber.StatusSeeOther)
	}

	user, err := services.Get().Accounts.LinkOAuth(c.UserContext(), oauth.Identity(u))
	if err != nil {
		return err
	}
	if !user.IsActive() {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "account is disabled"}).
			Redirect("/login", fiber.StatusSeeOther)
	}
	if err := startSession(c, user); err != nil {
		return err
	}

	// htmx boosted links need a full redirect
	c.Set("HX-Redirect", "/")
	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "Welcome, " + user.DisplayName() + "!"}).
		Redirect("/", fiber.StatusSeeOther)
}
