package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	fibersession "github.com/gofiber/fiber/v2/middleware/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/saaskit/app/models"
	"github.com/ManuelReschke/saaskit/app/repository"
	"github.com/ManuelReschke/saaskit/internal/pkg/session"
	"github.com/ManuelReschke/saaskit/internal/pkg/testutil"
	"github.com/ManuelReschke/saaskit/internal/pkg/usercontext"
)

func withUser(userID uint, admin bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(usercontext.LocalsKey, usercontext.UserContext{UserID: userID, IsLoggedIn: true, IsAdmin: admin})
		c.Locals(usercontext.KeyFromProtected, true)
		c.Locals(usercontext.KeyIsAdmin, admin)
		return c.Next()
	}
}

func ok(c *fiber.Ctx) error { return c.SendString("ok") }

func TestRequireAuth(t *testing.T) {
	app := fiber.New()
	app.Get("/anon", RequireAuth, ok)
	app.Get("/user", withUser(1, false), RequireAuth, ok)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/anon", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	req := httptest.NewRequest(http.MethodGet, "/anon", nil)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/user", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireAdmin(t *testing.T) {
	app := fiber.New()
	app.Get("/user", withUser(1, false), RequireAdmin, ok)
	app.Get("/admin", withUser(2, true), RequireAdmin, ok)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/user", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireXHR(t *testing.T) {
	app := fiber.New()
	app.Post("/confirm", RequireXHR, ok)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/confirm", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/confirm", nil)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

type stubChecker struct {
	active bool
	err    error
}

func (s stubChecker) HasActiveSubscription(ctx context.Context, userID uint) (bool, error) {
	return s.active, s.err
}

func TestRequireSubscription(t *testing.T) {
	tests := []struct {
		name     string
		enabled  bool
		checker  stubChecker
		xhr      bool
		want     int
		location string
	}{
		{name: "guard disabled", enabled: false, want: fiber.StatusOK},
		{name: "active plan", enabled: true, checker: stubChecker{active: true}, want: fiber.StatusOK},
		{name: "no plan redirects", enabled: true, want: fiber.StatusSeeOther, location: "/pricing"},
		{name: "no plan over xhr", enabled: true, xhr: true, want: fiber.StatusPaymentRequired},
		{name: "checker error", enabled: true, checker: stubChecker{err: errors.New("db down")}, want: fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/chat", withUser(7, false), RequireSubscription(tt.enabled, tt.checker), ok)

			req := httptest.NewRequest(http.MethodGet, "/chat", nil)
			if tt.xhr {
				req.Header.Set("X-Requested-With", "XMLHttpRequest")
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
			if tt.location != "" {
				assert.Equal(t, tt.location, resp.Header.Get("Location"))
			}
		})
	}
}

func TestUserContextMiddleware(t *testing.T) {
	store := fibersession.New()
	session.SetStore(store)
	t.Cleanup(func() { session.SetStore(nil) })

	app := fiber.New()
	app.Use(UserContextMiddleware)
	app.Get("/login", func(c *fiber.Ctx) error {
		sess, err := store.Get(c)
		if err != nil {
			return err
		}
		sess.Set(usercontext.KeyUserID, uint(42))
		sess.Set(usercontext.KeyUsername, "alice")
		sess.Set(usercontext.KeyIsAdmin, true)
		sess.Set(usercontext.KeyPlan, "pro")
		return sess.Save()
	})
	app.Get("/me", func(c *fiber.Ctx) error {
		return c.JSON(usercontext.GetUserContext(c))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/me", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"is_logged_in":false`)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/login", nil))
	require.NoError(t, err)
	cookies := resp.Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	resp, err = app.Test(req)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"user_id":42,"username":"alice","is_logged_in":true,"is_admin":true,"plan":"pro"}`, string(body))
}

func TestAPIKeyAuthMiddleware(t *testing.T) {
	db := testutil.NewDB(t)
	users := repository.NewUserRepository(db)

	u, err := models.CreateUser("apiuser", "api@example.com", "secret123")
	require.NoError(t, err)
	u.Activate()
	require.NoError(t, users.Create(u))
	us, err := models.GetOrCreateUserSettings(db, u.ID)
	require.NoError(t, err)
	raw, err := us.IssueAPIKey()
	require.NoError(t, err)
	require.NoError(t, db.Save(us).Error)

	app := fiber.New()
	app.Get("/api/v1/user", APIKeyAuthMiddleware(db, users), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"id": usercontext.GetUserID(c)})
	})

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", fiber.StatusUnauthorized},
		{"invalid", "X-API-Key", "nope", fiber.StatusUnauthorized},
		{"header key", "X-API-Key", raw, fiber.StatusOK},
		{"bearer", "Authorization", "Bearer " + raw, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/user", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	var reloaded models.UserSettings
	require.NoError(t, db.First(&reloaded, us.ID).Error)
	assert.NotNil(t, reloaded.APIKeyLastUsedAt)
}
