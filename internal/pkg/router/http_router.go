package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/saaskit/app/controllers"
	"github.com/ManuelReschke/saaskit/internal/pkg/cache"
	"github.com/ManuelReschke/saaskit/internal/pkg/middleware"
	"github.com/ManuelReschke/saaskit/internal/pkg/oauth"
	"github.com/ManuelReschke/saaskit/internal/pkg/session"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// init oauth providers
	oauth.Setup()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	h.registerPublicRoutes(app)
	h.registerRealtimeRoutes(app)
	h.registerCSRFProtectedRoutes(app)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

// clientKey keys rate limits by the real client address behind proxies.
func clientKey(c *fiber.Ctx) string {
	ipv4, ipv6 := controllers.GetClientIP(c)
	if ipv4 != "" {
		return ipv4
	}
	if ipv6 != "" {
		return ipv6
	}
	return c.IP()
}

// authLimiter throttles login, registration and password reset attempts.
func authLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:          10,
		Expiration:   time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string { return "auth:" + clientKey(c) },
		LimitReached: controllers.HandleRateLimitReached,
		Storage:      session.RedisStorage(cache.DBLimiter),
	})
}
