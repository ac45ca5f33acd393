package router

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/saaskit/app/controllers"
	"github.com/ManuelReschke/saaskit/internal/pkg/middleware"
)

func (h HttpRouter) registerRealtimeRoutes(app *fiber.App) {
	ws := app.Group("/ws", middleware.RequireAuth, controllers.HandleWebSocketUpgrade)
	ws.Get("/notifications", websocket.New(controllers.HandleNotificationSocket))
	ws.Get("/chat/:id", controllers.HandleChatSocketAuth, websocket.New(controllers.HandleChatSocket))
}
