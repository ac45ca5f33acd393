package dashboard

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/saaskit/app/models"
	"github.com/ManuelReschke/saaskit/app/repository"
	"github.com/ManuelReschke/saaskit/internal/pkg/agent"
	"github.com/ManuelReschke/saaskit/internal/pkg/crawler"
	"github.com/ManuelReschke/saaskit/internal/pkg/realtime"
	"github.com/ManuelReschke/saaskit/internal/pkg/secrets"
	"github.com/ManuelReschke/saaskit/internal/pkg/testutil"
)

type fakeSecrets struct {
	stored    map[string]secrets.Credentials
	deleted   []string
	createErr error
}

func (f *fakeSecrets) Name(identifier string) string { return "saaskit/" + identifier }

func (f *fakeSecrets) Create(_ context.Context, identifier string, creds secrets.Credentials) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.stored[identifier] = creds
	return "arn:" + identifier, nil
}

func (f *fakeSecrets) Get(_ context.Context, identifier string) (*secrets.Credentials, error) {
	c, ok := f.stored[identifier]
	if !ok {
		return nil, secrets.ErrNotFound
	}
	return &c, nil
}

func (f *fakeSecrets) Delete(_ context.Context, identifier string, withoutRecovery bool, _ int64) error {
	if !withoutRecovery {
		return errors.New("expected force delete")
	}
	f.deleted = append(f.deleted, identifier)
	delete(f.stored, identifier)
	return nil
}

type stubAgent struct {
	answer *agent.Answer
	err    error
	closed atomic.Bool
}

func (s *stubAgent) Run(context.Context, string) (*agent.Answer, error) { return s.answer, s.err }
func (s *stubAgent) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeBuilder struct {
	agent     *stubAgent
	builds    int
	lastCreds *secrets.Credentials
}

func (f *fakeBuilder) Build(_ context.Context, _ *models.DataSource, creds *secrets.Credentials, _ string) (agent.Agent, error) {
	f.builds++
	f.lastCreds = creds
	return f.agent, nil
}

type fakePublisher struct {
	events []realtime.Event
	groups []string
}

func (f *fakePublisher) Publish(_ context.Context, group string, ev realtime.Event) error {
	f.groups = append(f.groups, group)
	f.events = append(f.events, ev)
	return nil
}

type fixture struct {
	svc     *Service
	repos   *repository.Repositories
	secrets *fakeSecrets
	builder *fakeBuilder
	pub     *fakePublisher
	cache   *agent.Cache
	userID  uint
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	repos := repository.NewRepositories(testutil.NewDB(t))
	u, err := models.CreateUser("ann", "ann@example.com", "secret123")
	require.NoError(t, err)
	require.NoError(t, repos.User.Create(u))

	f := &fixture{
		repos:   repos,
		secrets: &fakeSecrets{stored: map[string]secrets.Credentials{}},
		builder: &fakeBuilder{agent: &stubAgent{answer: &agent.Answer{Result: "42 orders", Query: "SELECT count(*) FROM orders"}}},
		pub:     &fakePublisher{},
		cache:   agent.NewCache(time.Minute),
		userID:  u.ID,
	}
	t.Cleanup(f.cache.Close)
	base := []Option{
		WithIntrospector(func(context.Context, string, string, []string) (string, error) {
			return "\norders|id(integer)-pk", nil
		}),
		WithSpecLoader(func(context.Context, string) error { return nil }),
	}
	f.svc = NewService(repos, f.secrets, f.cache, f.builder, f.pub, append(base, opts...)...)
	return f
}

func dbForm() DatabaseSourceForm {
	return DatabaseSourceForm{
		Title: "Shop", Protocol: models.ProtocolPostgreSQL, Host: "db.internal", Port: "5432",
		DBName: "shop", Username: "reader", Password: "pw",
	}
}

func TestCreateDatabaseSource(t *testing.T) {
	f := newFixture(t)

	ds, err := f.svc.CreateDatabaseSource(context.Background(), f.userID, dbForm())
	require.NoError(t, err)
	assert.True(t, ds.IsDB)
	assert.Equal(t, "\norders|id(integer)-pk", ds.Schema)
	assert.Equal(t, secrets.Credentials{Username: "reader", Password: "pw"}, f.secrets.stored[ds.Identifier()])
}

func TestCreateDatabaseSourceBadCredentials(t *testing.T) {
	f := newFixture(t, WithIntrospector(func(context.Context, string, string, []string) (string, error) {
		return "", errors.New("password authentication failed")
	}))

	_, err := f.svc.CreateDatabaseSource(context.Background(), f.userID, dbForm())
	assert.ErrorIs(t, err, ErrCredentials)

	list, err := f.svc.List(f.userID)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.secrets.stored)
}

func TestCreateDatabaseSourceRollsBackOnSecretFailure(t *testing.T) {
	f := newFixture(t)
	f.secrets.createErr = errors.New("throttled")

	_, err := f.svc.CreateDatabaseSource(context.Background(), f.userID, dbForm())
	require.Error(t, err)

	list, err := f.svc.List(f.userID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateDatabaseSourceValidation(t *testing.T) {
	f := newFixture(t)
	form := dbForm()
	form.Protocol = "oracle"
	form.Password = ""

	_, err := f.svc.CreateDatabaseSource(context.Background(), f.userID, form)
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	fields := FieldErrors(err)
	assert.Equal(t, "oneof", fields["protocol"])
	assert.Equal(t, "required", fields["password"])
}

func TestCreateAPISource(t *testing.T) {
	f := newFixture(t)

	ds, err := f.svc.CreateAPISource(context.Background(), f.userID, APISourceForm{
		Title: "Pets", SpecURL: "https://pets.example.com/openapi.yaml", Header: `{"Authorization":"Bearer x"}`,
	})
	require.NoError(t, err)
	assert.True(t, ds.IsAPI)
	assert.False(t, ds.IsDB)
	assert.JSONEq(t, `{"Authorization":"Bearer x"}`, string(ds.Header))
	assert.True(t, strings.HasSuffix(ds.Identifier(), "_api"))
}

func TestCreateAPISourceErrors(t *testing.T) {
	f := newFixture(t, WithSpecLoader(func(context.Context, string) error { return errors.New("404") }))

	_, err := f.svc.CreateAPISource(context.Background(), f.userID, APISourceForm{
		Title: "Pets", SpecURL: "https://pets.example.com/openapi.yaml", Header: `["not","an","object"]`,
	})
	assert.ErrorIs(t, err, ErrInvalidHeader)

	_, err = f.svc.CreateAPISource(context.Background(), f.userID, APISourceForm{
		Title: "Pets", SpecURL: "https://pets.example.com/openapi.yaml",
	})
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestDeleteRemovesSecretAndAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ds, err := f.svc.CreateDatabaseSource(ctx, f.userID, dbForm())
	require.NoError(t, err)

	_, err = f.svc.RunQuery(ctx, QueryRequest{DataSourceID: ds.ID, UserID: f.userID, Model: agent.ModelGPT4, Question: "orders?"})
	require.NoError(t, err)
	require.Equal(t, 1, f.cache.Len())

	require.NoError(t, f.svc.Delete(ctx, ds.ID, f.userID))
	assert.Equal(t, []string{ds.Identifier()}, f.secrets.deleted)
	assert.Equal(t, 0, f.cache.Len())
	assert.True(t, f.builder.agent.closed.Load())

	_, _, err = f.svc.Get(ds.ID, f.userID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDeleteOtherUsersSource(t *testing.T) {
	f := newFixture(t)
	ds, err := f.svc.CreateDatabaseSource(context.Background(), f.userID, dbForm())
	require.NoError(t, err)

	err = f.svc.Delete(context.Background(), ds.ID, f.userID+1)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Empty(t, f.secrets.deleted)
}

func TestPostMessageAndRunQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ds, err := f.svc.CreateDatabaseSource(ctx, f.userID, dbForm())
	require.NoError(t, err)

	msg, err := f.svc.PostMessage(ctx, ds.ID, f.userID, ChatForm{Model: agent.ModelGPT3, Message: " how many orders? "})
	require.NoError(t, err)
	assert.Equal(t, "how many orders?", msg.Text)
	assert.False(t, msg.IsAI)

	reply, err := f.svc.RunQuery(ctx, QueryRequest{DataSourceID: ds.ID, UserID: f.userID, MessageID: msg.ID, Model: agent.ModelGPT3, Question: msg.Text})
	require.NoError(t, err)
	assert.True(t, reply.IsAI)
	assert.Equal(t, "42 orders", reply.Text)
	assert.Equal(t, "SELECT count(*) FROM orders", reply.SQLQuery)
	assert.Equal(t, "reader", f.builder.lastCreds.Username)

	require.Len(t, f.pub.events, 2)
	assert.Equal(t, realtime.ChatGroup(ds.ID), f.pub.groups[0])
	assert.Equal(t, msg.ID, f.pub.events[0].MsgID)
	assert.Equal(t, reply.ID, f.pub.events[1].MsgID)

	_, history, err := f.svc.Get(ds.ID, f.userID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, msg.ID, history[0].ID)

	// second question reuses the cached agent
	_, err = f.svc.RunQuery(ctx, QueryRequest{DataSourceID: ds.ID, UserID: f.userID, Model: agent.ModelGPT3, Question: "again"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.builder.builds)
}

func TestPostMessageTooLong(t *testing.T) {
	f := newFixture(t)
	ds, err := f.svc.CreateDatabaseSource(context.Background(), f.userID, dbForm())
	require.NoError(t, err)

	_, err = f.svc.PostMessage(context.Background(), ds.ID, f.userID, ChatForm{Model: agent.ModelGPT3, Message: strings.Repeat("a", models.MaxUserMessageLength+1)})
	assert.Equal(t, "max", FieldErrors(err)["message"])
}

func TestRunQueryFailuresBecomeMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"forbidden", agent.ErrForbiddenStatement, "read-only"},
		{"generic", errors.New("connection reset"), "connection reset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.builder.agent = &stubAgent{answer: &agent.Answer{Query: "DELETE FROM orders"}, err: tt.err}
			ds, err := f.svc.CreateDatabaseSource(context.Background(), f.userID, dbForm())
			require.NoError(t, err)

			reply, err := f.svc.RunQuery(context.Background(), QueryRequest{DataSourceID: ds.ID, UserID: f.userID, Model: agent.ModelGemini, Question: "q"})
			require.NoError(t, err)
			assert.True(t, reply.IsAI)
			assert.Contains(t, reply.Text, tt.want)
			assert.Equal(t, "DELETE FROM orders", reply.SQLQuery)
		})
	}
}

func TestRunQueryMissingSecret(t *testing.T) {
	f := newFixture(t)
	ds, err := f.svc.CreateDatabaseSource(context.Background(), f.userID, dbForm())
	require.NoError(t, err)
	delete(f.secrets.stored, ds.Identifier())

	reply, err := f.svc.RunQuery(context.Background(), QueryRequest{DataSourceID: ds.ID, UserID: f.userID, Model: agent.ModelGPT3, Question: "q"})
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "secret not found")
	assert.Zero(t, f.builder.builds)
}

func TestPrepareCrawl(t *testing.T) {
	f := newFixture(t)
	ds, err := f.svc.CreateDatabaseSource(context.Background(), f.userID, dbForm())
	require.NoError(t, err)

	job, err := f.svc.PrepareCrawl(ds.ID, f.userID, CrawlForm{TargetType: crawler.TargetJDBC, Path: "shop/%"})
	require.NoError(t, err)
	assert.Equal(t, "jdbc:postgresql://db.internal:5432/shop", job.Request.JDBCURI)
	assert.Equal(t, "saaskit/"+ds.Identifier(), job.Request.SecretID)

	_, err = f.svc.PrepareCrawl(ds.ID, f.userID, CrawlForm{TargetType: crawler.TargetS3, Path: "bucket/key"})
	assert.ErrorIs(t, err, crawler.ErrInvalidTarget)
}

type fakeRunner struct{ err error }

func (r fakeRunner) Run(_ context.Context, req crawler.Request) (*crawler.Result, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &crawler.Result{DatabaseName: crawler.DatabaseName(req.Identifier), CrawlerName: crawler.CrawlerName(req.Identifier)}, nil
}

type fakeNotifier struct{ contents []string }

func (n *fakeNotifier) Create(_ context.Context, userID uint, kind, content string, _ map[string]interface{}) (*models.Notification, error) {
	n.contents = append(n.contents, content)
	return &models.Notification{UserID: userID, Type: kind, Content: content}, nil
}

func TestRunCrawlNotifies(t *testing.T) {
	job := CrawlJob{UserID: 1, DataSourceID: 2, Request: crawler.Request{Identifier: "1_2_mysql", TargetType: crawler.TargetS3, Path: "s3://b/p"}}

	n := &fakeNotifier{}
	require.NoError(t, RunCrawl(context.Background(), fakeRunner{}, n, job))
	require.Len(t, n.contents, 1)
	assert.Contains(t, n.contents[0], "1_2_mysql-crawler")

	n = &fakeNotifier{}
	err := RunCrawl(context.Background(), fakeRunner{err: errors.New("access denied")}, n, job)
	require.Error(t, err)
	assert.Contains(t, n.contents[0], "access denied")
}
