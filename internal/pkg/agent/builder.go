package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ManuelReschke/saaskit/app/models"
	"github.com/ManuelReschke/saaskit/internal/pkg/secrets"
)

// Builder assembles the right agent for a data source.
type Builder struct {
	Config *Config
	// overridable in tests
	NewChat func(ctx context.Context, cfg *Config, model string) (ChatModel, error)
	OpenSQL func(protocol, dsn string) (SQLDatabase, error)
}

func NewBuilder(cfg *Config) *Builder {
	return &Builder{Config: cfg, NewChat: NewChatModel, OpenSQL: OpenSQLDatabase}
}

// Build picks the agent by source kind: OpenAPI for API sources, Elasticsearch
// or SQL for database sources. creds may be nil for API sources.
func (b *Builder) Build(ctx context.Context, ds *models.DataSource, creds *secrets.Credentials, model string) (a Agent, err error) {
	if ds.IsDB && creds == nil {
		return nil, fmt.Errorf("missing credentials for %s", ds.Identifier())
	}
	if ds.IsDB {
		if _, err := dialectFor(ds.Protocol); err != nil && ds.Protocol != models.ProtocolElasticsearch {
			return nil, err
		}
	}

	llm, err := b.NewChat(ctx, b.Config, model)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if c, ok := llm.(interface{ Close() error }); ok {
				_ = c.Close()
			}
		}
	}()

	switch {
	case ds.IsAPI:
		header := map[string]string{}
		if len(ds.Header) > 0 {
			if err := json.Unmarshal(ds.Header, &header); err != nil {
				return nil, fmt.Errorf("decode header: %w", err)
			}
		}
		doc, err := LoadSpec(ctx, ds.SpecURL)
		if err != nil {
			return nil, err
		}
		return NewAPIAgent(doc, ds.SpecURL, header, llm)

	case ds.Protocol == models.ProtocolElasticsearch:
		conn, err := ds.ConnectionString(creds.Username, creds.Password)
		if err != nil {
			return nil, err
		}
		client, err := NewESClient(conn)
		if err != nil {
			return nil, err
		}
		return NewESAgent(client, llm, ds.TableList()), nil

	default:
		dsn, err := ds.ConnectionString(creds.Username, creds.Password)
		if err != nil {
			return nil, err
		}
		db, err := b.OpenSQL(ds.Protocol, dsn)
		if err != nil {
			return nil, err
		}
		return NewSQLAgent(db, llm, ds.Protocol, ds.TableList()), nil
	}
}
