package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext represents the complete user context for a request
type UserContext struct {
	UserID     uint   `json:"user_id"`
	Username   string `json:"username"`
	IsLoggedIn bool   `json:"is_logged_in"`
	IsAdmin    bool   `json:"is_admin"`
	Plan       string `json:"plan"`
}

// GetUserContext returns an anonymous context when the middleware did not run.
func GetUserContext(c *fiber.Ctx) UserContext {
	if uc, ok := c.Locals(LocalsKey).(UserContext); ok {
		return uc
	}
	return UserContext{}
}

func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

func IsAdmin(c *fiber.Ctx) bool {
	return GetUserContext(c).IsAdmin
}

// GetUserID returns 0 for anonymous requests.
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}

func GetUsername(c *fiber.Ctx) string {
	return GetUserContext(c).Username
}

func GetPlan(c *fiber.Ctx) string {
	return GetUserContext(c).Plan
}
