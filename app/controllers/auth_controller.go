package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"

	"github.com/ManuelReschke/saaskit/internal/pkg/accounts"
	"github.com/ManuelReschke/saaskit/internal/pkg/env"
	"github.com/ManuelReschke/saaskit/internal/pkg/middleware"
	"github.com/ManuelReschke/saaskit/internal/pkg/services"
	"github.com/ManuelReschke/saaskit/internal/pkg/session"
	"github.com/ManuelReschke/saaskit/internal/pkg/usercontext"
	"github.com/ManuelReschke/saaskit/internal/pkg/views"
)

// flashOrError answers JSON clients with err and sends browsers back to
// redirect with the message flashed. Server errors always go to ErrorHandler.
func flashOrError(c *fiber.Ctx, err error, redirect string) error {
	if middleware.WantsJSON(c) || statusFor(err) >= fiber.StatusInternalServerError {
		return err
	}
	fm := fiber.Map{
		"type":    "error",
		"message": err.Error(),
	}
	return flash.WithError(c, fm).Redirect(redirect, fiber.StatusSeeOther)
}

func flashOrJSON(c *fiber.Ctx, message, redirect string, body fiber.Map) error {
	if middleware.WantsJSON(c) {
		if body == nil {
			body = fiber.Map{}
		}
		body["message"] = message
		return c.JSON(body)
	}
	fm := fiber.Map{
		"type":    "success",
		"message": message,
	}
	return flash.WithSuccess(c, fm).Redirect(redirect, fiber.StatusSeeOther)
}

func HandleAuthLoginPage(c *fiber.Ctx) error {
	if isLoggedIn(c) {
		return c.Redirect("/", fiber.StatusSeeOther)
	}
	return render(c, views.Login(env.SiteName(), flashMessage(c), csrfToken(c)))
}

type loginForm struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// HandleAuthLogin checks the password. Accounts with a verified authenticator
// get a pending marker and must finish at /login/otp.
func HandleAuthLogin(c *fiber.Ctx) error {
	var form loginForm
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid login form")
	}

	user, err := services.Get().Accounts.Authenticate(c.UserContext(), form.Email, form.Password)
	if err != nil {
		return flashOrError(c, err, "/login")
	}

	if user.RequiresOTP() {
		sess, err := session.GetSessionStore().Get(c)
		if err != nil {
			return err
		}
		sess.Set(usercontext.KeyOTPPendingUserID, user.ID)
		sess.Set(usercontext.KeyOTPPendingAt, time.Now().Unix())
		if err := sess.Save(); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"otp_required": true})
	}

	if err := startSession(c, user); err != nil {
		return err
	}
	return flashOrJSON(c, "Welcome back!", "/", fiber.Map{"otp_required": false, "redirect": "/"})
}

// HandleAuthLoginOTP completes a login that is waiting for the second factor.
func HandleAuthLoginOTP(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return err
	}
	userID, _ := sess.Get(usercontext.KeyOTPPendingUserID).(uint)
	pendingUnix, _ := sess.Get(usercontext.KeyOTPPendingAt).(int64)
	var pendingAt time.Time
	if pendingUnix > 0 {
		pendingAt = time.Unix(pendingUnix, 0)
	}

	user, err := services.Get().Accounts.CompleteOTPLogin(c.UserContext(), userID, pendingAt, c.FormValue("token"))
	if err != nil {
		if errors.Is(err, accounts.ErrOTPExpired) {
			sess.Delete(usercontext.KeyOTPPendingUserID)
			sess.Delete(usercontext.KeyOTPPendingAt)
			_ = sess.Save()
		}
		return err
	}
	if err := startSession(c, user); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"redirect": "/"})
}

func HandleAuthLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err == nil {
		if err := sess.Destroy(); err != nil {
			return err
		}
	}
	c.Locals(usercontext.KeyFromProtected, false)
	return flashOrJSON(c, "You have been logged out.", "/login", nil)
}

// HandleAuthRegister creates the account and queues the activation mail.
func HandleAuthRegister(c *fiber.Ctx) error {
	reg := services.Get()
	if err := reg.Captcha.Verify(c.UserContext(), c.FormValue("h-captcha-response")); err != nil {
		log.Warnf("[Accounts] captcha rejected from %s: %v", c.IP(), err)
		return flashOrError(c, fiber.NewError(fiber.StatusBadRequest, "captcha verification failed"), "/")
	}

	var form accounts.RegisterForm
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid registration form")
	}
	user, err := reg.Accounts.Register(c.UserContext(), form)
	if err != nil {
		return err
	}

	msg := "Thanks for signing up! Please check your email to activate your account."
	if middleware.WantsJSON(c) {
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": user.ID, "message": msg})
	}
	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": msg}).Redirect("/", fiber.StatusSeeOther)
}

func HandleAuthActivate(c *fiber.Ctx) error {
	if _, err := services.Get().Accounts.Activate(c.UserContext(), c.Query("token")); err != nil {
		return flashOrError(c, err, "/")
	}
	return flashOrJSON(c, "Your account is active. You can log in now.", "/login", nil)
}

// HandlePasswordResetRequest answers the same way whether or not the email exists.
func HandlePasswordResetRequest(c *fiber.Ctx) error {
	if err := services.Get().Accounts.RequestPasswordReset(c.UserContext(), c.FormValue("email")); err != nil {
		log.Errorf("[Accounts] password reset request: %v", err)
	}
	return c.JSON(fiber.Map{"message": "If the address is registered, a reset link is on its way."})
}

func HandlePasswordResetPage(c *fiber.Ctx) error {
	return render(c, views.ResetPassword(env.SiteName(), csrfToken(c), c.Query("token")))
}

func HandlePasswordResetConfirm(c *fiber.Ctx) error {
	var form accounts.PasswordForm
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid password form")
	}
	if err := services.Get().Accounts.ResetPassword(c.UserContext(), c.FormValue("token"), form); err != nil {
		return flashOrError(c, err, "/login")
	}
	return flashOrJSON(c, "Your password has been changed.", "/login", nil)
}

// HandlePasswordChange verifies the old password. The session ends afterwards
// when LOGOUT_ON_PASSWORD_CHANGE is set.
func HandlePasswordChange(c *fiber.Ctx) error {
	var form accounts.PasswordForm
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid password form")
	}
	svc := services.Get().Accounts
	if err := svc.ChangePassword(c.UserContext(), usercontext.GetUserID(c), c.FormValue("old_password"), form); err != nil {
		return err
	}

	loggedOut := false
	if svc.Config().LogoutOnPasswordChange {
		if sess, err := session.GetSessionStore().Get(c); err == nil {
			if err := sess.Destroy(); err != nil {
				return err
			}
			loggedOut = true
		}
	}
	return c.JSON(fiber.Map{"message": "Password changed.", "logged_out": loggedOut})
}
