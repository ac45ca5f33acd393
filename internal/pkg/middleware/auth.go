package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"

	icuser "github.com/ManuelReschke/saaskit/internal/pkg/usercontext"
)

// SubscriptionRequiredMessage is flashed when the subscription guard redirects.
const SubscriptionRequiredMessage = "Active subscription required"

// IsXHR reports an XMLHttpRequest/fetch call that sets the usual header.
func IsXHR(c *fiber.Ctx) bool {
	return strings.EqualFold(c.Get("X-Requested-With"), "XMLHttpRequest")
}

// WantsJSON is true for API paths, XHR calls and clients accepting only JSON.
func WantsJSON(c *fiber.Ctx) bool {
	if strings.HasPrefix(c.Path(), "/api/") || IsXHR(c) {
		return true
	}
	accept := c.Get(fiber.HeaderAccept)
	return strings.Contains(accept, fiber.MIMEApplicationJSON) && !strings.Contains(accept, fiber.MIMETextHTML)
}

func loggedIn(c *fiber.Ctx) bool {
	b, ok := c.Locals(icuser.KeyFromProtected).(bool)
	return ok && b
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error":   "unauthorized",
		"message": "login required",
	})
}

// RequireAuth ensures a logged-in web session; redirects to /login if missing.
func RequireAuth(c *fiber.Ctx) error {
	if !loggedIn(c) {
		if WantsJSON(c) {
			return unauthorized(c)
		}
		return c.Redirect("/login", fiber.StatusSeeOther)
	}
	return c.Next()
}

// RequireAdmin ensures a logged-in admin; redirects otherwise.
func RequireAdmin(c *fiber.Ctx) error {
	if !loggedIn(c) {
		if WantsJSON(c) {
			return unauthorized(c)
		}
		return c.Redirect("/login", fiber.StatusSeeOther)
	}
	if isAdmin, ok := c.Locals(icuser.KeyIsAdmin).(bool); !ok || !isAdmin {
		if WantsJSON(c) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "admin only"})
		}
		return c.Redirect("/", fiber.StatusSeeOther)
	}
	return c.Next()
}

// RequireAPISessionAuth ensures a logged-in session for API routes and returns JSON 401 instead of redirect.
func RequireAPISessionAuth(c *fiber.Ctx) error {
	if !loggedIn(c) {
		return unauthorized(c)
	}
	return c.Next()
}

// RequireXHR rejects plain browser navigations.
func RequireXHR(c *fiber.Ctx) error {
	if !IsXHR(c) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "bad_request",
			"message": "XHR request expected",
		})
	}
	return c.Next()
}

// SubscriptionChecker answers whether a user currently holds an entitling plan.
type SubscriptionChecker interface {
	HasActiveSubscription(ctx context.Context, userID uint) (bool, error)
}

// RequireSubscription sends users without an entitling plan to /pricing.
// A disabled guard lets everyone through.
func RequireSubscription(enabled bool, checker SubscriptionChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !enabled {
			return c.Next()
		}
		userID := icuser.GetUserID(c)
		if userID == 0 {
			return RequireAuth(c)
		}
		ok, err := checker.HasActiveSubscription(c.UserContext(), userID)
		if err != nil {
			log.Errorf("[Billing] subscription check for user %d: %v", userID, err)
			return err
		}
		if ok {
			return c.Next()
		}
		if WantsJSON(c) {
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error":    "subscription_required",
				"message":  SubscriptionRequiredMessage,
				"redirect": "/pricing",
			})
		}
		return flash.WithError(c, fiber.Map{
			"type":    "error",
			"message": SubscriptionRequiredMessage,
		}).Redirect("/pricing", fiber.StatusSeeOther)
	}
}
