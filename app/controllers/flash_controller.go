package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/ManuelReschke/saaskit/internal/pkg/middleware"
)

const rateLimitMessage = "Too many attempts. Please wait a moment and try again."

// HandleRateLimitReached is the limiter's LimitReached handler. Browsers get the
// message flashed on the page they came from.
func HandleRateLimitReached(c *fiber.Ctx) error {
	if middleware.WantsJSON(c) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":   "rate_limited",
			"message": rateLimitMessage,
		})
	}
	back := c.Get(fiber.HeaderReferer, "/")
	fm := fiber.Map{
		"type":    "error",
		"message": rateLimitMessage,
	}
	return flash.WithError(c, fm).Redirect(back, fiber.StatusSeeOther)
}
