package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/saaskit/app/controllers"
)

// Pong is the body of GET /ping.
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer serves the public v1 API described in public/docs/v1/openapi.yml.
type APIServer struct{}

func NewAPIServer() *APIServer {
	return &APIServer{}
}

func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

// GetUserProfile returns account information for the API key's owner.
func (s *APIServer) GetUserProfile(c *fiber.Ctx) error {
	return controllers.HandleGetUserAccount(c)
}

// RegisterHandlers mounts the v1 operations. auth guards every operation that
// needs an API key.
func RegisterHandlers(router fiber.Router, s *APIServer, auth fiber.Handler) {
	router.Get("/ping", s.GetPing)
	router.Get("/user", auth, s.GetUserProfile)
}
