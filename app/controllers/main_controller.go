package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/saaskit/internal/pkg/env"
	"github.com/ManuelReschke/saaskit/internal/pkg/views"
)

func RenderHome(c *fiber.Ctx) error {
	return render(c, views.Home(env.SiteName(), flashMessage(c), isLoggedIn(c)))
}
