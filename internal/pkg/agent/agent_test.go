package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedChat struct {
	mu      sync.Mutex
	replies []string
	prompts []string
}

func (s *scriptedChat) Complete(_ context.Context, system, user string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, system+"\n---\n"+user)
	if len(s.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

type fakeDB struct {
	queries []string
	fail    map[string]error
	closed  bool
}

func (f *fakeDB) Dialect() string { return "pgx" }

func (f *fakeDB) TableInfo(_ context.Context, tables []string) (string, error) {
	return "CREATE TABLE orders (id int, total numeric)", nil
}

func (f *fakeDB) Query(_ context.Context, q string) (string, error) {
	f.queries = append(f.queries, q)
	if err := f.fail[q]; err != nil {
		return "", err
	}
	return "count\n42", nil
}

func (f *fakeDB) Close() error {
	f.closed = true
	return nil
}

func TestCheckReadOnly(t *testing.T) {
	tests := []struct {
		query string
		ok    bool
	}{
		{"SELECT id FROM orders LIMIT 10", true},
		{"select name from users where note = 'please delete me'", true},
		{"DELETE FROM orders", false},
		{"update orders set total = 0", false},
		{"SELECT 1; DROP TABLE orders", false},
		{"SELECT 1;", true},
		{"TRUNCATE orders", false},
		{"WITH recent AS (SELECT id FROM orders) SELECT count(*) FROM recent", true},
		{"SHOW TABLES", true},
		{"EXPLAIN SELECT id FROM orders", true},
		{"DESCRIBE orders", true},
		{"SELECT id FROM orders -- latest first\nORDER BY id DESC", true},
		{"SELECT 'it''s' AS note", true},
		{"DO 'BEGIN DELETE FROM users; END'", false},
		{"DO $$ BEGIN DELETE FROM users; END $$", false},
		{"COPY users TO PROGRAM 'curl evil'", false},
		{"SELECT * INTO backup_users FROM users", false},
		{"SELECT * FROM users INTO OUTFILE '/tmp/users'", false},
		{"SET search_path = evil", false},
		{"LOCK TABLE orders", false},
		{"CALL cleanup()", false},
		{"WITH gone AS (DELETE FROM orders RETURNING id) SELECT * FROM gone", false},
		{"EXPLAIN ANALYZE DELETE FROM orders", false},
		{"/* report */ DELETE FROM orders", false},
		{"SELECT 1 /*! ; DELETE FROM orders */", false},
		{"SELECT 'a\\'; DELETE FROM orders; --'", false},
		{"SELECT pg_read_file('/etc/passwd')", false},
		{"SELECT 'unterminated", false},
		{"VALUES (1)", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			err := CheckReadOnly(tt.query)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbiddenStatement)
			}
		})
	}
}

func TestReadOnlyDSN(t *testing.T) {
	pg, err := readOnlyDSN("postgresql", "postgres://reader:pw@db.internal:5432/shop")
	require.NoError(t, err)
	assert.Equal(t, "postgres://reader:pw@db.internal:5432/shop?default_transaction_read_only=on", pg)

	my, err := readOnlyDSN("mysql", "reader:pw@tcp(db.internal:3306)/shop?parseTime=true")
	require.NoError(t, err)
	cfg, err := mysql.ParseDSN(my)
	require.NoError(t, err)
	assert.Equal(t, "1", cfg.Params["transaction_read_only"])
	assert.True(t, cfg.ParseTime)

	rs, err := readOnlyDSN("redshift", "postgres://reader:pw@cluster:5439/dw")
	require.NoError(t, err)
	assert.Equal(t, "postgres://reader:pw@cluster:5439/dw", rs)
}

func TestSQLAgentRun(t *testing.T) {
	llm := &scriptedChat{replies: []string{"```sql\nSELECT count(*) FROM orders\n```", "There are 42 orders."}}
	db := &fakeDB{}
	a := NewSQLAgent(db, llm, "postgresql", []string{"orders"})

	ans, err := a.Run(context.Background(), "how many orders?")
	require.NoError(t, err)
	assert.Equal(t, "There are 42 orders.", ans.Result)
	assert.Equal(t, "SELECT count(*) FROM orders", ans.Query)
	assert.Equal(t, []string{"SELECT count(*) FROM orders"}, db.queries)
	assert.Contains(t, llm.prompts[0], "PostgreSQL")
	assert.Contains(t, llm.prompts[0], "at most 10 rows")
}

func TestSQLAgentDontKnow(t *testing.T) {
	llm := &scriptedChat{replies: []string{"I don't know."}}
	db := &fakeDB{}
	ans, err := NewSQLAgent(db, llm, "mysql", nil).Run(context.Background(), "what's the weather?")
	require.NoError(t, err)
	assert.Equal(t, DontKnow, ans.Result)
	assert.Empty(t, db.queries)
}

func TestSQLAgentRejectsDML(t *testing.T) {
	llm := &scriptedChat{replies: []string{"DELETE FROM orders"}}
	db := &fakeDB{}
	ans, err := NewSQLAgent(db, llm, "postgresql", nil).Run(context.Background(), "remove orders")
	assert.ErrorIs(t, err, ErrForbiddenStatement)
	assert.Equal(t, "DELETE FROM orders", ans.Query)
	assert.Empty(t, db.queries)
}

func TestSQLAgentRewritesOnce(t *testing.T) {
	llm := &scriptedChat{replies: []string{"SELECT cnt FROM orders", "SELECT count(*) FROM orders", "42"}}
	db := &fakeDB{fail: map[string]error{"SELECT cnt FROM orders": errors.New("column cnt does not exist")}}

	ans, err := NewSQLAgent(db, llm, "redshift", nil).Run(context.Background(), "how many orders?")
	require.NoError(t, err)
	assert.Equal(t, "SELECT count(*) FROM orders", ans.Query)
	assert.Len(t, db.queries, 2)
	assert.Contains(t, llm.prompts[1], "column cnt does not exist")
}

func TestSQLAgentGivesUpAfterRewrite(t *testing.T) {
	boom := errors.New("syntax error")
	llm := &scriptedChat{replies: []string{"SELECT 1 FRM orders", "SELECT 2 FRM orders"}}
	db := &fakeDB{fail: map[string]error{"SELECT 1 FRM orders": boom, "SELECT 2 FRM orders": boom}}

	_, err := NewSQLAgent(db, llm, "postgresql", nil).Run(context.Background(), "q")
	assert.ErrorIs(t, err, boom)
	assert.Len(t, db.queries, 2)
}

func TestSQLAgentCloseClosesDB(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, NewSQLAgent(db, &scriptedChat{}, "mysql", nil).Close())
	assert.True(t, db.closed)
}

func TestDialectFor(t *testing.T) {
	d, err := dialectFor("redshift")
	require.NoError(t, err)
	assert.Equal(t, "pgx", d)

	_, err = dialectFor("oracle")
	assert.ErrorIs(t, err, ErrUnsupportedProtocol)
}

type countingAgent struct {
	closed atomic.Bool
}

func (c *countingAgent) Run(context.Context, string) (*Answer, error) { return &Answer{}, nil }
func (c *countingAgent) Close() error {
	c.closed.Store(true)
	return nil
}

func TestCacheSharesConcurrentBuilds(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Close()

	var builds atomic.Int32
	build := func(context.Context) (Agent, error) {
		builds.Add(1)
		time.Sleep(20 * time.Millisecond)
		return &countingAgent{}, nil
	}

	var wg sync.WaitGroup
	results := make([]Agent, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := c.Get(context.Background(), "1_2_mysql", ModelGPT4, build)
			assert.NoError(t, err)
			results[i] = a
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	for _, a := range results {
		assert.Same(t, results[0], a)
	}
}

func TestCacheKeysByModel(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Close()
	build := func(context.Context) (Agent, error) { return &countingAgent{}, nil }

	a, _ := c.Get(context.Background(), "1_2_mysql", ModelGPT3, build)
	b, _ := c.Get(context.Background(), "1_2_mysql", ModelGemini, build)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, c.Len())

	c.Evict("1_2_mysql")
	assert.Equal(t, 0, c.Len())
	assert.True(t, a.(*countingAgent).closed.Load())
	assert.True(t, b.(*countingAgent).closed.Load())
}

func TestCacheBuildErrorNotCached(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Close()

	_, err := c.Get(context.Background(), "x", ModelGPT3, func(context.Context) (Agent, error) {
		return nil, errors.New("bad credentials")
	})
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestCacheSweepIdle(t *testing.T) {
	c := NewCache(30 * time.Minute)
	defer c.Close()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	build := func(context.Context) (Agent, error) { return &countingAgent{}, nil }
	stale, _ := c.Get(context.Background(), "a", ModelGPT3, build)
	now = now.Add(20 * time.Minute)
	fresh, _ := c.Get(context.Background(), "b", ModelGPT3, build)

	now = now.Add(15 * time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.True(t, stale.(*countingAgent).closed.Load())
	assert.False(t, fresh.(*countingAgent).closed.Load())
	assert.Equal(t, 1, c.Len())
}

func TestCacheEvictDuringBuild(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	built := &countingAgent{}
	done := make(chan error, 1)
	go func() {
		_, err := c.Get(context.Background(), "1_2_mysql", ModelGPT3, func(context.Context) (Agent, error) {
			close(started)
			<-release
			return built, nil
		})
		done <- err
	}()

	<-started
	c.Evict("1_2_mysql")
	close(release)

	assert.ErrorIs(t, <-done, ErrEvicted)
	assert.Equal(t, 0, c.Len())
	assert.True(t, built.closed.Load())

	fresh, err := c.Get(context.Background(), "1_2_mysql", ModelGPT3, func(context.Context) (Agent, error) {
		return &countingAgent{}, nil
	})
	require.NoError(t, err)
	assert.NotSame(t, built, fresh)
	assert.Equal(t, 1, c.Len())
}

const petSpec = `openapi: 3.0.0
info:
  title: Pets
  version: "1.0"
servers:
  - url: /api
paths:
  /pets:
    get:
      summary: List pets
      parameters:
        - name: species
          in: query
          schema:
            type: string
      responses:
        "200":
          description: ok
`

func TestAPIAgentRun(t *testing.T) {
	var gotAuth, gotSpecies string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/openapi.yaml":
			w.Header().Set("Content-Type", "application/yaml")
			fmt.Fprint(w, petSpec)
		case "/api/pets":
			gotAuth = r.Header.Get("Authorization")
			gotSpecies = r.URL.Query().Get("species")
			fmt.Fprint(w, `[{"name":"Rex"},{"name":"Bello"}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	specURL := srv.URL + "/openapi.yaml"
	doc, err := LoadSpec(context.Background(), specURL)
	require.NoError(t, err)

	llm := &scriptedChat{replies: []string{
		`{"method":"GET","path":"/pets","query":{"species":"dog"}}`,
		"Two dogs: Rex and Bello.",
	}}
	a, err := NewAPIAgent(doc, specURL, map[string]string{"Authorization": "Bearer t"}, llm)
	require.NoError(t, err)
	assert.Equal(t, []string{"GET /pets - List pets [query species]"}, a.Operations())

	ans, err := a.Run(context.Background(), "which dogs are there?")
	require.NoError(t, err)
	assert.Equal(t, "Two dogs: Rex and Bello.", ans.Result)
	assert.True(t, strings.HasPrefix(ans.Query, "GET "+srv.URL+"/api/pets"))
	assert.Equal(t, "Bearer t", gotAuth)
	assert.Equal(t, "dog", gotSpecies)
}

func TestAPIAgentRejectsWrites(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, petSpec)
	}))
	defer srv.Close()

	doc, err := LoadSpec(context.Background(), srv.URL+"/openapi.yaml")
	require.NoError(t, err)
	llm := &scriptedChat{replies: []string{`{"method":"DELETE","path":"/pets/1"}`}}
	a, err := NewAPIAgent(doc, srv.URL+"/openapi.yaml", nil, llm)
	require.NoError(t, err)

	_, err = a.Run(context.Background(), "delete pet 1")
	assert.ErrorIs(t, err, ErrForbiddenStatement)
}

func TestESAgentRun(t *testing.T) {
	var searchedIndex string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/_mapping"):
			fmt.Fprint(w, `{"logs":{"mappings":{"properties":{"level":{"type":"keyword"}}}}}`)
		case strings.HasSuffix(r.URL.Path, "/_search"):
			searchedIndex = strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")[0]
			fmt.Fprint(w, `{"hits":{"total":{"value":3},"hits":[]}}`)
		default:
			fmt.Fprint(w, `{}`)
		}
	}))
	defer srv.Close()

	client, err := NewESClient(strings.Replace(srv.URL, "http://", "http://elastic:secret@", 1))
	require.NoError(t, err)

	llm := &scriptedChat{replies: []string{
		`{"index":"logs","body":{"query":{"term":{"level":"error"}},"size":10}}`,
		"3 error logs.",
	}}
	ans, err := NewESAgent(client, llm, []string{"logs"}).Run(context.Background(), "how many errors?")
	require.NoError(t, err)
	assert.Equal(t, "3 error logs.", ans.Result)
	assert.Equal(t, "logs", searchedIndex)
	assert.Contains(t, llm.prompts[0], `"level"`)
}

func TestValidModel(t *testing.T) {
	assert.True(t, ValidModel("gpt-3"))
	assert.True(t, ValidModel("gemini"))
	assert.False(t, ValidModel("claude"))
}

func TestNewChatModelUnsupported(t *testing.T) {
	_, err := NewChatModel(context.Background(), &Config{}, "llama")
	assert.ErrorIs(t, err, ErrUnsupportedModel)
}
