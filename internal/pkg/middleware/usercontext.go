package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/saaskit/app/models"
	"github.com/ManuelReschke/saaskit/internal/pkg/database"
	"github.com/ManuelReschke/saaskit/internal/pkg/session"
	"github.com/ManuelReschke/saaskit/internal/pkg/usercontext"
)

func setAnonymous(c *fiber.Ctx) {
	c.Locals(usercontext.LocalsKey, usercontext.UserContext{})
	c.Locals(usercontext.KeyFromProtected, false)
	c.Locals(usercontext.KeyIsAdmin, false)
}

// UserContextMiddleware resolves the session into a UserContext for every request.
func UserContextMiddleware(c *fiber.Ctx) error {
	// goth keeps its own session on /auth/*, ours must not collide with it
	if strings.HasPrefix(c.Path(), "/auth/") {
		return c.Next()
	}
	store := session.GetSessionStore()
	if store == nil {
		setAnonymous(c)
		return c.Next()
	}
	sess, err := store.Get(c)
	if err != nil {
		setAnonymous(c)
		return c.Next()
	}

	userID, ok := sess.Get(usercontext.KeyUserID).(uint)
	if !ok || userID == 0 {
		setAnonymous(c)
		return c.Next()
	}

	username, _ := sess.Get(usercontext.KeyUsername).(string)
	isAdmin, _ := sess.Get(usercontext.KeyIsAdmin).(bool)

	// plan is cached in the session, the DB is only asked once per session
	plan, _ := sess.Get(usercontext.KeyPlan).(string)
	if plan == "" {
		plan = models.PlanFree
		if db := database.GetDB(); db != nil {
			if us, err := models.GetOrCreateUserSettings(db, userID); err == nil {
				plan = us.EffectivePlan()
			}
		}
		sess.Set(usercontext.KeyPlan, plan)
		_ = sess.Save()
	}

	userCtx := usercontext.UserContext{
		UserID:     userID,
		Username:   username,
		IsLoggedIn: true,
		IsAdmin:    isAdmin,
		Plan:       plan,
	}
	c.Locals(usercontext.LocalsKey, userCtx)
	c.Locals(usercontext.KeyFromProtected, true)
	c.Locals(usercontext.KeyUsername, username)
	c.Locals(usercontext.KeyUserID, userID)
	c.Locals(usercontext.KeyIsAdmin, isAdmin)

	return c.Next()
}
