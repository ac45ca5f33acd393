package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/csrf"

	"github.com/ManuelReschke/saaskit/app/controllers"
	"github.com/ManuelReschke/saaskit/internal/pkg/env"
	"github.com/ManuelReschke/saaskit/internal/pkg/middleware"
	"github.com/ManuelReschke/saaskit/internal/pkg/services"
)

func (h HttpRouter) registerCSRFProtectedRoutes(app *fiber.App) {
	csrfConf := csrf.Config{
		KeyLookup:      "form:_csrf",
		ContextKey:     "csrf",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		Expiration:     1 * time.Hour,
		CookieSecure:   !env.IsDev(),
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/api/")
		},
	}

	group := app.Group("", cors.New(), csrf.New(csrfConf))
	group.Get("/", controllers.RenderHome)

	// Accounts
	limited := authLimiter()
	group.Get("/login", controllers.HandleAuthLoginPage)
	group.Post("/login", limited, controllers.HandleAuthLogin)
	group.Post("/login/otp", limited, controllers.HandleAuthLoginOTP)
	group.Post("/register", limited, controllers.HandleAuthRegister)
	group.Post("/password/reset", limited, controllers.HandlePasswordResetRequest)
	group.Get("/password/reset/confirm", controllers.HandlePasswordResetPage)
	group.Post("/password/reset/confirm", limited, controllers.HandlePasswordResetConfirm)

	user := group.Group("/user", middleware.RequireAuth)
	user.Get("/profile", controllers.HandleUserProfile)
	user.Post("/profile", controllers.HandleUserProfileUpdate)
	user.Post("/avatar", controllers.HandleUserAvatarUpload)
	user.Post("/password", controllers.HandlePasswordChange)
	user.Post("/api-key", controllers.HandleUserAPIKeyIssue)
	user.Post("/api-key/revoke", controllers.HandleUserAPIKeyRevoke)
	user.Post("/otp/generate", controllers.HandleOTPGenerate)
	user.Post("/otp/verify", controllers.HandleOTPVerify)
	user.Post("/otp/disable", controllers.HandleOTPDisable)

	// Billing
	billing := group.Group("/billing", middleware.RequireAuth)
	billing.Get("/schedule", controllers.HandleBillingSchedule)
	billing.Post("/cancel", controllers.HandleBillingCancel)
	billing.Post("/upgrade", controllers.HandleBillingUpgrade)
	billing.Post("/downgrade", controllers.HandleBillingDowngrade)
	billing.Post("/payment/setup", middleware.RequireXHR, controllers.HandleBillingPaymentSetup)
	billing.Post("/payment/confirm", middleware.RequireXHR, controllers.HandleBillingPaymentConfirm)
	billing.Post("/resync", controllers.HandleUserBillingResync)

	// Notifications
	notes := group.Group("/notifications", middleware.RequireAuth)
	notes.Get("/", controllers.HandleNotificationList)
	notes.Post("/read", controllers.HandleNotificationMarkAllRead)
	notes.Post("/:id/read", controllers.HandleNotificationSetRead)

	// Dashboard
	reg := services.Get()
	subscribed := middleware.RequireSubscription(reg.Billing.Config() != nil && reg.Billing.Config().Enabled, reg.Billing)
	dash := group.Group("/dashboard", middleware.RequireAuth)
	dash.Get("/", controllers.HandleDashboardList)
	dash.Post("/db", controllers.HandleDashboardCreateDatabase)
	dash.Post("/api", controllers.HandleDashboardCreateAPI)
	dash.Get("/:id", controllers.HandleDashboardShow)
	dash.Delete("/:id", controllers.HandleDashboardDelete)
	dash.Post("/:id/chat", subscribed, controllers.HandleDashboardChat)
	dash.Post("/:id/crawl", subscribed, controllers.HandleDashboardCrawl)

	h.registerAdminRoutes(group)
}
