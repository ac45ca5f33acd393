package controllers

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/saaskit/app/models"
	"github.com/ManuelReschke/saaskit/internal/pkg/accounts"
	"github.com/ManuelReschke/saaskit/internal/pkg/avatar"
	"github.com/ManuelReschke/saaskit/internal/pkg/services"
	"github.com/ManuelReschke/saaskit/internal/pkg/session"
	"github.com/ManuelReschke/saaskit/internal/pkg/usercontext"
)

func profileJSON(u *models.User) fiber.Map {
	return fiber.Map{
		"id":              u.ID,
		"name":            u.Name,
		"first_name":      u.FirstName,
		"last_name":       u.LastName,
		"display_name":    u.DisplayName(),
		"email":           u.Email,
		"avatar_url":      avatar.URLFor(u.AvatarURL, u.Email),
		"avatar_webp_url": u.AvatarWebPURL,
		"otp_enabled":     u.RequiresOTP(),
	}
}

func HandleUserProfile(c *fiber.Ctx) error {
	user, err := services.Get().Repos.User.GetByID(usercontext.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(profileJSON(user))
}

func HandleUserProfileUpdate(c *fiber.Ctx) error {
	var form accounts.ProfileForm
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid profile form")
	}
	user, err := services.Get().Accounts.UpdateProfile(c.UserContext(), usercontext.GetUserID(c), form)
	if err != nil {
		return err
	}
	return c.JSON(profileJSON(user))
}

// HandleUserAvatarUpload takes the "avatar" multipart file.
func HandleUserAvatarUpload(c *fiber.Ctx) error {
	fh, err := c.FormFile("avatar")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "avatar file is required")
	}
	if fh.Size > avatar.MaxUploadSize {
		return avatar.ErrTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, avatar.MaxUploadSize+1))
	if err != nil {
		return err
	}

	user, err := services.Get().Accounts.UpdateAvatar(c.UserContext(), usercontext.GetUserID(c), data)
	if err != nil {
		return err
	}
	return c.JSON(profileJSON(user))
}

// HandleUserAPIKeyIssue rotates the key. The raw key is only ever shown here.
func HandleUserAPIKeyIssue(c *fiber.Ctx) error {
	raw, us, err := services.Get().Accounts.IssueAPIKey(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"api_key":    raw,
		"prefix":     us.APIKeyPrefix,
		"created_at": formatTimePtr(us.APIKeyCreatedAt),
	})
}

func HandleUserAPIKeyRevoke(c *fiber.Ctx) error {
	if err := services.Get().Accounts.RevokeAPIKey(c.UserContext(), usercontext.GetUserID(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func HandleOTPGenerate(c *fiber.Ctx) error {
	enr, err := services.Get().Accounts.GenerateOTP(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(enr)
}

func HandleOTPVerify(c *fiber.Ctx) error {
	user, err := services.Get().Accounts.VerifyOTP(c.UserContext(), usercontext.GetUserID(c), c.FormValue("token"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"otp_enabled": user.OTPEnabled, "otp_verified": user.OTPVerified})
}

func HandleOTPDisable(c *fiber.Ctx) error {
	if err := services.Get().Accounts.DisableOTP(c.UserContext(), usercontext.GetUserID(c)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"otp_enabled": false, "otp_verified": false})
}

// refreshPlan re-reads the effective plan into the session after billing changes.
func refreshPlan(c *fiber.Ctx) {
	plan := services.Get().Accounts.Plan(usercontext.GetUserID(c))
	_ = session.SetSessionValue(c, usercontext.KeyPlan, plan)
}
