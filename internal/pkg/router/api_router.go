package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	apiv1 "github.com/ManuelReschke/saaskit/internal/api/v1"
	"github.com/ManuelReschke/saaskit/internal/pkg/cache"
	"github.com/ManuelReschke/saaskit/internal/pkg/database"
	"github.com/ManuelReschke/saaskit/internal/pkg/middleware"
	"github.com/ManuelReschke/saaskit/internal/pkg/services"
	"github.com/ManuelReschke/saaskit/internal/pkg/session"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:          60,
		Expiration:   time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string { return "api:" + clientKey(c) },
		Storage:      session.RedisStorage(cache.DBLimiter),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiServer := apiv1.NewAPIServer()
	apiv1.RegisterHandlers(v1, apiServer, middleware.APIKeyAuthMiddleware(database.GetDB(), services.Get().Repos.User))
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
