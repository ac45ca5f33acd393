package controllers

import (
	"errors"

	"github.com/a-h/templ"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"gorm.io/gorm"

	"github.com/ManuelReschke/saaskit/app/models"
	"github.com/ManuelReschke/saaskit/internal/pkg/accounts"
	"github.com/ManuelReschke/saaskit/internal/pkg/avatar"
	"github.com/ManuelReschke/saaskit/internal/pkg/billing"
	"github.com/ManuelReschke/saaskit/internal/pkg/crawler"
	"github.com/ManuelReschke/saaskit/internal/pkg/dashboard"
	"github.com/ManuelReschke/saaskit/internal/pkg/env"
	"github.com/ManuelReschke/saaskit/internal/pkg/hcaptcha"
	"github.com/ManuelReschke/saaskit/internal/pkg/middleware"
	"github.com/ManuelReschke/saaskit/internal/pkg/otp"
	"github.com/ManuelReschke/saaskit/internal/pkg/views"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var fe *fiber.Error
	var ve validator.ValidationErrors
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.As(err, &ve):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, accounts.ErrInvalidCredentials),
		errors.Is(err, accounts.ErrOTPExpired),
		errors.Is(err, otp.ErrInvalidToken):
		return fiber.StatusUnauthorized
	case errors.Is(err, accounts.ErrInactive), errors.Is(err, accounts.ErrDisabled):
		return fiber.StatusForbidden
	case errors.Is(err, accounts.ErrEmailTaken):
		return fiber.StatusConflict
	case errors.Is(err, accounts.ErrPasswordMismatch),
		errors.Is(err, accounts.ErrInvalidToken),
		errors.Is(err, accounts.ErrOTPNotEnrolled),
		errors.Is(err, hcaptcha.ErrEmptyToken),
		errors.Is(err, avatar.ErrNotImage),
		errors.Is(err, dashboard.ErrCredentials),
		errors.Is(err, dashboard.ErrInvalidSpec),
		errors.Is(err, dashboard.ErrInvalidHeader),
		errors.Is(err, dashboard.ErrInvalidModel),
		errors.Is(err, crawler.ErrInvalidTarget),
		errors.Is(err, models.ErrInvalidSourceKind),
		errors.Is(err, billing.ErrInvalidRefund):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, avatar.ErrTooLarge):
		return fiber.StatusRequestEntityTooLarge
	case errors.Is(err, billing.ErrNoPaidSubscription),
		errors.Is(err, billing.ErrSamePlan),
		errors.Is(err, billing.ErrNoSchedule),
		errors.Is(err, billing.ErrOpenEndedPhase),
		errors.Is(err, billing.ErrNoCurrentPhase):
		return fiber.StatusConflict
	case errors.Is(err, billing.ErrInvalidSignature):
		return fiber.StatusUnauthorized
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler is the fiber error handler. JSON clients get {"error","message"},
// browsers get the HTML error page.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	message := err.Error()
	if code >= fiber.StatusInternalServerError {
		log.Errorf("[HTTP] %s %s: %v", c.Method(), c.OriginalURL(), err)
		message = "Internal Server Error"
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return c.Status(code).JSON(fiber.Map{
			"error":   code,
			"message": "validation failed",
			"fields":  dashboard.FieldErrors(ve),
		})
	}
	if middleware.WantsJSON(c) || c.Method() != fiber.MethodGet {
		return c.Status(code).JSON(fiber.Map{"error": code, "message": message})
	}

	page := code
	switch code {
	case fiber.StatusBadRequest, fiber.StatusForbidden, fiber.StatusNotFound:
	default:
		if code < fiber.StatusInternalServerError {
			page = fiber.StatusBadRequest
		} else {
			page = fiber.StatusInternalServerError
		}
	}
	handler := templ.Handler(views.ErrorPage(env.SiteName(), page, message), templ.WithStatus(code))
	return adaptor.HTTPHandler(handler)(c)
}
