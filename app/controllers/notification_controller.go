package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/saaskit/internal/pkg/services"
	"github.com/ManuelReschke/saaskit/internal/pkg/usercontext"
)

func HandleNotificationList(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	res, err := services.Get().Notifications.List(c.UserContext(), usercontext.GetUserID(c), page)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func HandleNotificationMarkAllRead(c *fiber.Ctx) error {
	n, err := services.Get().Notifications.MarkAllRead(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"updated": n})
}

// HandleNotificationSetRead sets the read flag of one notification. read=false marks it unread again.
func HandleNotificationSetRead(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	read := c.FormValue("read", "true") != "false"
	if err := services.Get().Notifications.SetRead(c.UserContext(), id, usercontext.GetUserID(c), read); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"id": id, "is_read": read})
}
