package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/saaskit/app/controllers"
	"github.com/ManuelReschke/saaskit/internal/pkg/middleware"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	app.Get("/pricing", controllers.HandlePricing)
	app.Get("/activate", controllers.HandleAuthActivate)

	// Auth
	app.Post("/logout", middleware.RequireAuth, controllers.HandleAuthLogout)

	// Social OAuth
	app.Get("/auth/:provider", controllers.HandleOAuthBegin)
	app.Get("/auth/:provider/callback", controllers.HandleOAuthCallback)

	// Billing provider webhooks (no CSRF, signature-verified in controller)
	app.Post("/webhooks/stripe", controllers.HandleStripeWebhook)
}
