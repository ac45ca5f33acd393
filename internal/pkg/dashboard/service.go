// Package dashboard manages a user's data sources and the chat that queries them.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"

	"github.com/ManuelReschke/saaskit/app/models"
	"github.com/ManuelReschke/saaskit/app/repository"
	"github.com/ManuelReschke/saaskit/internal/pkg/agent"
	"github.com/ManuelReschke/saaskit/internal/pkg/metrics"
	"github.com/ManuelReschke/saaskit/internal/pkg/realtime"
	"github.com/ManuelReschke/saaskit/internal/pkg/secrets"
)

var (
	ErrCredentials   = errors.New("could not connect with the given credentials")
	ErrInvalidSpec   = errors.New("could not load the openapi spec")
	ErrInvalidHeader = errors.New("header must be a JSON object of strings")
	ErrInvalidModel  = errors.New("unsupported model")
)

// HistoryLimit caps the messages shown on a source page.
const HistoryLimit = 100

type SecretStore interface {
	Name(identifier string) string
	Create(ctx context.Context, identifier string, creds secrets.Credentials) (string, error)
	Get(ctx context.Context, identifier string) (*secrets.Credentials, error)
	Delete(ctx context.Context, identifier string, withoutRecovery bool, recoveryDays int64) error
}

type AgentBuilder interface {
	Build(ctx context.Context, ds *models.DataSource, creds *secrets.Credentials, model string) (agent.Agent, error)
}

type Service struct {
	sources    repository.DataSourceRepository
	messages   repository.MessageRepository
	secrets    SecretStore
	agents     *agent.Cache
	builder    AgentBuilder
	publisher  realtime.Publisher
	introspect Introspector
	loadSpec   func(ctx context.Context, specURL string) error
}

type Option func(*Service)

func WithIntrospector(fn Introspector) Option {
	return func(s *Service) { s.introspect = fn }
}

func WithSpecLoader(fn func(ctx context.Context, specURL string) error) Option {
	return func(s *Service) { s.loadSpec = fn }
}

func NewService(repos *repository.Repositories, store SecretStore, agents *agent.Cache, builder AgentBuilder, pub realtime.Publisher, opts ...Option) *Service {
	s := &Service{
		sources:    repos.DataSource,
		messages:   repos.Message,
		secrets:    store,
		agents:     agents,
		builder:    builder,
		publisher:  pub,
		introspect: Introspect,
		loadSpec: func(ctx context.Context, specURL string) error {
			_, err := agent.LoadSpec(ctx, specURL)
			return err
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateDatabaseSource verifies the credentials by introspecting the schema,
// persists the source and stores the credentials under its identifier.
func (s *Service) CreateDatabaseSource(ctx context.Context, userID uint, form DatabaseSourceForm) (*models.DataSource, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	ds := &models.DataSource{
		UserID:   userID,
		Title:    form.Title,
		Protocol: form.Protocol,
		Host:     form.Host,
		Port:     form.Port,
		DBName:   form.DBName,
		Tables:   form.Tables,
		IsDB:     true,
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	conn, err := ds.ConnectionString(form.Username, form.Password)
	if err != nil {
		return nil, err
	}
	schema, err := s.introspect(ctx, ds.Protocol, conn, ds.TableList())
	if err != nil {
		log.Warnf("[Dashboard] introspection failed for user %d: %v", userID, err)
		return nil, fmt.Errorf("%w: %v", ErrCredentials, err)
	}
	ds.Schema = schema

	if err := s.sources.Create(ds); err != nil {
		return nil, err
	}
	creds := secrets.Credentials{Username: form.Username, Password: form.Password}
	if _, err := s.secrets.Create(ctx, ds.Identifier(), creds); err != nil {
		if derr := s.sources.Delete(ds.ID); derr != nil {
			log.Errorf("[Dashboard] rollback of source %d failed: %v", ds.ID, derr)
		}
		return nil, fmt.Errorf("store credentials: %w", err)
	}
	return ds, nil
}

func (s *Service) CreateAPISource(ctx context.Context, userID uint, form APISourceForm) (*models.DataSource, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	header, err := form.HeaderJSON()
	if err != nil {
		return nil, err
	}
	if err := s.loadSpec(ctx, form.SpecURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	ds := &models.DataSource{
		UserID:  userID,
		Title:   form.Title,
		SpecURL: form.SpecURL,
		Header:  datatypes.JSON(header),
		IsAPI:   true,
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	if err := s.sources.Create(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

func (s *Service) List(userID uint) ([]models.DataSource, error) {
	return s.sources.ListByUser(userID)
}

// Get returns an owned source together with its recent history.
func (s *Service) Get(id, userID uint) (*models.DataSource, []models.Message, error) {
	ds, err := s.sources.GetByIDForUser(id, userID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.messages.ListByDataSource(ds.ID, HistoryLimit)
	if err != nil {
		return nil, nil, err
	}
	return ds, msgs, nil
}

// Delete force-deletes the stored credentials, evicts cached agents and removes the source.
func (s *Service) Delete(ctx context.Context, id, userID uint) error {
	ds, err := s.sources.GetByIDForUser(id, userID)
	if err != nil {
		return err
	}
	identifier := ds.Identifier()
	if ds.IsDB {
		if err := s.secrets.Delete(ctx, identifier, true, 0); err != nil && !errors.Is(err, secrets.ErrNotFound) {
			return err
		}
	}
	s.agents.Evict(identifier)
	return s.sources.Delete(ds.ID)
}

// PostMessage stores the user's chat message and pushes it to the chat group.
func (s *Service) PostMessage(ctx context.Context, id, userID uint, form ChatForm) (*models.Message, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	ds, err := s.sources.GetByIDForUser(id, userID)
	if err != nil {
		return nil, err
	}
	msg := &models.Message{DataSourceID: ds.ID, Text: form.Message, Model: form.Model}
	if err := s.messages.Create(msg); err != nil {
		return nil, err
	}
	s.push(ctx, ds.ID, msg.ID)
	return msg, nil
}

// QueryRequest is the payload of an agent query job.
type QueryRequest struct {
	DataSourceID uint   `json:"data_source_id"`
	UserID       uint   `json:"user_id"`
	MessageID    uint   `json:"message_id"`
	Model        string `json:"model"`
	Question     string `json:"question"`
}

// RunQuery answers a question with the cached agent for the source and model.
// Agent failures are stored as an AI message rather than returned.
func (s *Service) RunQuery(ctx context.Context, req QueryRequest) (*models.Message, error) {
	if !agent.ValidModel(req.Model) {
		return nil, ErrInvalidModel
	}
	ds, err := s.sources.GetByIDForUser(req.DataSourceID, req.UserID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	answer, runErr := s.ask(ctx, ds, req)
	kind := ds.Protocol
	if ds.IsAPI {
		kind = "api"
	}

	reply := &models.Message{DataSourceID: ds.ID, IsAI: true, Model: req.Model}
	switch {
	case runErr == nil:
		metrics.RecordAgentQuery(kind, "ok", time.Since(start))
		reply.Text = answer.Result
		reply.SQLQuery = answer.Query
	case errors.Is(runErr, agent.ErrForbiddenStatement):
		metrics.RecordAgentQuery(kind, "forbidden", time.Since(start))
		reply.Text = "I can only run read-only queries against this source."
		if answer != nil {
			reply.SQLQuery = answer.Query
		}
	default:
		metrics.RecordAgentQuery(kind, "error", time.Since(start))
		log.Warnf("[Agent] query on %s failed: %v", ds.Identifier(), runErr)
		reply.Text = fmt.Sprintf("Sorry, I could not answer that: %v", runErr)
		if answer != nil {
			reply.SQLQuery = answer.Query
		}
	}
	if reply.Text == "" {
		reply.Text = agent.DontKnow
	}

	if err := s.messages.Create(reply); err != nil {
		return nil, err
	}
	s.push(ctx, ds.ID, reply.ID)
	return reply, nil
}

func (s *Service) ask(ctx context.Context, ds *models.DataSource, req QueryRequest) (*agent.Answer, error) {
	identifier := ds.Identifier()
	a, err := s.agents.Get(ctx, identifier, req.Model, func(ctx context.Context) (agent.Agent, error) {
		var creds *secrets.Credentials
		if ds.IsDB {
			c, err := s.secrets.Get(ctx, identifier)
			if err != nil {
				return nil, err
			}
			creds = c
		}
		return s.builder.Build(ctx, ds, creds, req.Model)
	})
	if err != nil {
		return nil, err
	}
	return a.Run(ctx, req.Question)
}

// Message loads a message that belongs to the source.
func (s *Service) Message(dataSourceID, msgID uint) (*models.Message, error) {
	return s.messages.GetByIDForDataSource(msgID, dataSourceID)
}

func (s *Service) push(ctx context.Context, dataSourceID, msgID uint) {
	if s.publisher == nil {
		return
	}
	ev := realtime.Event{Type: realtime.EventChatMessage, MsgID: msgID}
	if err := s.publisher.Publish(ctx, realtime.ChatGroup(dataSourceID), ev); err != nil {
		log.Warnf("[Realtime] push of message %d failed: %v", msgID, err)
	}
}
