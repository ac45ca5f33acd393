package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/saaskit/app/models"
	"github.com/ManuelReschke/saaskit/internal/pkg/database"
	"github.com/ManuelReschke/saaskit/internal/pkg/entitlements"
	"github.com/ManuelReschke/saaskit/internal/pkg/services"
	"github.com/ManuelReschke/saaskit/internal/pkg/usercontext"
)

// HandleGetUserAccount returns account information for the authenticated user (API key or session).
func HandleGetUserAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	reg := services.Get()
	account, err := reg.Repos.User.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	sources, err := reg.Repos.DataSource.ListByUser(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load data sources"})
	}

	db := database.GetDB()
	if db == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Database unavailable"})
	}
	settings, err := models.GetOrCreateUserSettings(db, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user settings"})
	}

	plan := settings.EffectivePlan()
	chatModels := make([]string, 0, 3)
	for _, m := range []string{"gpt-3", "gpt-4", "gemini"} {
		if entitlements.AllowsModel(plan, m) {
			chatModels = append(chatModels, m)
		}
	}

	return c.JSON(fiber.Map{
		"id":                   account.ID,
		"username":             account.Name,
		"email":                account.Email,
		"status":               account.Status,
		"plan":                 plan,
		"is_admin":             account.Role == models.ROLE_ADMIN,
		"otp_enabled":          account.RequiresOTP(),
		"created_at":           account.CreatedAt.UTC().Format(time.RFC3339),
		"last_login_at":        formatTimePtr(account.LastLoginAt),
		"paid_until":           formatTimePtr(account.PaidUntil),
		"api_key_last_used_at": formatTimePtr(settings.APIKeyLastUsedAt),
		"stats": fiber.Map{
			"data_sources": len(sources),
		},
		"limits": fiber.Map{
			"max_data_sources": entitlements.MaxDataSources(plan),
			"chat_models":      chatModels,
		},
	})
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
