package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/saaskit/app/controllers"
	"github.com/ManuelReschke/saaskit/internal/pkg/middleware"
)

func (h HttpRouter) registerAdminRoutes(router fiber.Router) {
	adminGroup := router.Group("/admin", middleware.RequireAdmin)
	adminGroup.Get("/", controllers.HandleAdminDashboard)

	// Queue monitor
	adminGroup.Get("/queues", controllers.HandleAdminQueues)
	adminGroup.Delete("/queues/:key", controllers.HandleAdminQueueDelete)

	// Billing operations
	adminGroup.Post("/billing/refund", controllers.HandleAdminRefund)
	adminGroup.Post("/billing/sync", controllers.HandleAdminCatalogSync)
}
