package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	fibersession "github.com/gofiber/fiber/v2/middleware/session"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/saaskit/app/models"
	"github.com/ManuelReschke/saaskit/app/repository"
	"github.com/ManuelReschke/saaskit/internal/pkg/accounts"
	"github.com/ManuelReschke/saaskit/internal/pkg/agent"
	"github.com/ManuelReschke/saaskit/internal/pkg/billing"
	"github.com/ManuelReschke/saaskit/internal/pkg/dashboard"
	"github.com/ManuelReschke/saaskit/internal/pkg/hcaptcha"
	"github.com/ManuelReschke/saaskit/internal/pkg/jobqueue"
	"github.com/ManuelReschke/saaskit/internal/pkg/notifications"
	"github.com/ManuelReschke/saaskit/internal/pkg/otp"
	"github.com/ManuelReschke/saaskit/internal/pkg/realtime"
	"github.com/ManuelReschke/saaskit/internal/pkg/secrets"
	"github.com/ManuelReschke/saaskit/internal/pkg/services"
	"github.com/ManuelReschke/saaskit/internal/pkg/session"
	"github.com/ManuelReschke/saaskit/internal/pkg/testutil"
	"github.com/ManuelReschke/saaskit/internal/pkg/usercontext"
)

const testWebhookSecret = "whsec_controller_test"

type memSecrets struct {
	stored map[string]secrets.Credentials
}

func (m *memSecrets) Name(identifier string) string { return "test/" + identifier }

func (m *memSecrets) Create(_ context.Context, identifier string, creds secrets.Credentials) (string, error) {
	m.stored[identifier] = creds
	return "arn:" + identifier, nil
}

func (m *memSecrets) Get(_ context.Context, identifier string) (*secrets.Credentials, error) {
	c, ok := m.stored[identifier]
	if !ok {
		return nil, secrets.ErrNotFound
	}
	return &c, nil
}

func (m *memSecrets) Delete(_ context.Context, identifier string, _ bool, _ int64) error {
	delete(m.stored, identifier)
	return nil
}

type enqueued struct {
	jobType jobqueue.JobType
	payload interface{}
}

type testEnv struct {
	db     *gorm.DB
	repos  *repository.Repositories
	reg    *services.Registry
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	broker *realtime.Broker
	user   *models.User
	jobs   []enqueued
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	repos := repository.NewRepositories(db)
	mr, rdb := testutil.NewRedis(t)
	broker := realtime.NewBroker(rdb)
	agents := agent.NewCache(time.Minute)
	t.Cleanup(agents.Close)

	reg := &services.Registry{
		Repos: repos,
		Accounts: accounts.NewService(db, repos, &accounts.Config{LogoutOnPasswordChange: true},
			&otp.Config{Issuer: "SaaSKit", PendingLifetime: 5 * time.Minute}, nil),
		Billing: billing.NewServiceFromDB(db, nil, &billing.Config{WebhookSecret: testWebhookSecret}),
		Dashboard: dashboard.NewService(repos, &memSecrets{stored: map[string]secrets.Credentials{}}, agents, nil, broker,
			dashboard.WithIntrospector(func(context.Context, string, string, []string) (string, error) {
				return "\norders|id(integer)-pk", nil
			}),
			dashboard.WithSpecLoader(func(context.Context, string) error { return nil }),
		),
		Notifications: notifications.NewService(repos.Notification, broker),
		Broker:        broker,
		Agents:        agents,
		Captcha:       &hcaptcha.Verifier{},
		Jobs:          repository.NewQueueRepository(rdb),
	}
	services.Set(reg)
	session.SetStore(fibersession.New())

	env := &testEnv{db: db, repos: repos, reg: reg, mr: mr, rdb: rdb, broker: broker}

	u, err := models.CreateUser("ann", "ann@example.com", "secret123")
	require.NoError(t, err)
	u.Activate()
	require.NoError(t, repos.User.Create(u))
	env.user = u

	prev := enqueue
	enqueue = func(jobType jobqueue.JobType, payload interface{}) (*jobqueue.Job, error) {
		env.jobs = append(env.jobs, enqueued{jobType: jobType, payload: payload})
		return &jobqueue.Job{ID: "job-1", Type: jobType, Status: jobqueue.JobStatusPending}, nil
	}
	t.Cleanup(func() { enqueue = prev })
	return env
}

func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
}

func asUser(userID uint, plan string, admin bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(usercontext.LocalsKey, usercontext.UserContext{UserID: userID, IsLoggedIn: true, IsAdmin: admin, Plan: plan})
		return c.Next()
	}
}

func formRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	req.Header.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	return req
}

func jsonRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}
