package agent

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/tmc/langchaingo/tools/sqldatabase"
	_ "github.com/tmc/langchaingo/tools/sqldatabase/mysql"
	_ "github.com/tmc/langchaingo/tools/sqldatabase/postgresql"

	"github.com/ManuelReschke/saaskit/app/models"
)

const topK = 10

// SQLDatabase is the subset of sqldatabase.SQLDatabase the agent needs.
type SQLDatabase interface {
	Dialect() string
	TableInfo(ctx context.Context, tables []string) (string, error)
	Query(ctx context.Context, query string) (string, error)
	Close() error
}

var (
	leadingPattern      = regexp.MustCompile(`(?i)^[\s(]*(select|with|show|explain|describe|desc)\b`)
	forbiddenPattern    = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|truncate|create|grant|revoke|merge|rename|call|exec|execute|into|copy|do|set|lock|load|handler|prepare|vacuum|pg_read_file|pg_read_binary_file|lo_import|lo_export|dblink\w*|load_file|pg_sleep|sleep|benchmark)\b`)
	blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineCommentPattern  = regexp.MustCompile(`--(?:\s[^\n]*|$)`)
	// dollar quoting and MySQL executable comments hide text from the checks below
	opaquePattern = regexp.MustCompile(`\$[A-Za-z_]*\$|/\*[!+]`)

	// MySQL treats a backslash as an escape inside literals, PostgreSQL does not.
	// A query has to pass under both readings.
	literalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`'(?:[^']|'')*'|"(?:[^"]|"")*"|` + "`[^`]*`"),
		regexp.MustCompile(`'(?:[^'\\]|\\.|'')*'|"(?:[^"\\]|\\.|"")*"|` + "`[^`]*`"),
	}
)

const sqlSystemPrompt = `You are a %s expert. Given an input question, create a syntactically correct %s query to run.
Unless the user specifies a number of results, limit the query to at most %d rows.
Never query all columns of a table, only the columns needed to answer the question.
Only use the tables and columns listed below. Pay attention to which column is in which table.
Never write statements that modify data (INSERT, UPDATE, DELETE, DROP, ALTER, TRUNCATE, CREATE).
If the question is not related to the database, answer exactly "I don't know".
Respond with the SQL query only, without explanation or formatting.

Schema:
%s`

const sqlRewritePrompt = `The query
%s
failed with the error
%s
Rewrite the query so it answers the original question: %s`

const answerSystemPrompt = `You answer questions about the result of a query. Be concise. If the result is empty say so.`

type SQLAgent struct {
	db       SQLDatabase
	llm      ChatModel
	tables   []string
	protocol string
}

// dialectFor maps a protocol to the registered langchaingo engine.
func dialectFor(protocol string) (string, error) {
	switch protocol {
	case models.ProtocolPostgreSQL, models.ProtocolRedshift:
		return "pgx", nil
	case models.ProtocolMySQL:
		return "mysql", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedProtocol, protocol)
	}
}

// OpenSQLDatabase connects through langchaingo's engine registry.
func OpenSQLDatabase(protocol, dsn string) (SQLDatabase, error) {
	dialect, err := dialectFor(protocol)
	if err != nil {
		return nil, err
	}
	dsn, err = readOnlyDSN(protocol, dsn)
	if err != nil {
		return nil, fmt.Errorf("read-only dsn: %w", err)
	}
	db, err := sqldatabase.NewSQLDatabaseWithDSN(dialect, dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", protocol, err)
	}
	return db, nil
}

func NewSQLAgent(db SQLDatabase, llm ChatModel, protocol string, tables []string) *SQLAgent {
	return &SQLAgent{db: db, llm: llm, tables: tables, protocol: protocol}
}

func (a *SQLAgent) dialectName() string {
	switch a.protocol {
	case models.ProtocolMySQL:
		return "MySQL"
	case models.ProtocolRedshift:
		return "Amazon Redshift"
	default:
		return "PostgreSQL"
	}
}

func (a *SQLAgent) Run(ctx context.Context, question string) (*Answer, error) {
	info, err := a.db.TableInfo(ctx, a.tables)
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	dialect := a.dialectName()
	system := fmt.Sprintf(sqlSystemPrompt, dialect, dialect, topK, info)

	raw, err := a.llm.Complete(ctx, system, question)
	if err != nil {
		return nil, err
	}
	query := stripFences(raw)
	if isDontKnow(query) {
		return &Answer{Result: DontKnow}, nil
	}
	if err := CheckReadOnly(query); err != nil {
		return &Answer{Query: query}, err
	}

	result, err := a.db.Query(ctx, query)
	if err != nil {
		// one rewrite attempt
		raw, rerr := a.llm.Complete(ctx, system, fmt.Sprintf(sqlRewritePrompt, query, err.Error(), question))
		if rerr != nil {
			return &Answer{Query: query}, fmt.Errorf("query failed: %w", err)
		}
		query = stripFences(raw)
		if err := CheckReadOnly(query); err != nil {
			return &Answer{Query: query}, err
		}
		if result, err = a.db.Query(ctx, query); err != nil {
			return &Answer{Query: query}, fmt.Errorf("query failed: %w", err)
		}
	}

	text, err := a.llm.Complete(ctx, answerSystemPrompt,
		fmt.Sprintf("Question: %s\nSQL: %s\nResult:\n%s", question, query, truncate(result, 4000)))
	if err != nil {
		return &Answer{Query: query}, err
	}
	return &Answer{Result: strings.TrimSpace(text), Query: query}, nil
}

func (a *SQLAgent) Close() error {
	if c, ok := a.llm.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	return a.db.Close()
}

// CheckReadOnly accepts a single SELECT, WITH, SHOW, EXPLAIN or DESCRIBE
// statement and rejects anything that writes, changes schema or session
// state, or reaches outside the database.
func CheckReadOnly(query string) error {
	if opaquePattern.MatchString(query) {
		return ErrForbiddenStatement
	}
	for _, literal := range literalPatterns {
		if !readOnly(literal, query) {
			return ErrForbiddenStatement
		}
	}
	return nil
}

func readOnly(literal *regexp.Regexp, query string) bool {
	stripped := blockCommentPattern.ReplaceAllString(query, " ")
	stripped = literal.ReplaceAllString(stripped, " 0 ")
	stripped = lineCommentPattern.ReplaceAllString(stripped, " ")
	stripped = strings.TrimSpace(stripped)

	if !leadingPattern.MatchString(stripped) {
		return false
	}
	if forbiddenPattern.MatchString(stripped) {
		return false
	}
	if strings.ContainsAny(stripped, "'\"`") {
		// unterminated literal
		return false
	}
	return !strings.Contains(strings.TrimRight(stripped, "; \t\n"), ";")
}

// readOnlyDSN asks the server to open every transaction of the agent's
// connections read only. Redshift rejects unknown startup parameters, so it
// relies on CheckReadOnly alone.
func readOnlyDSN(protocol, dsn string) (string, error) {
	switch protocol {
	case models.ProtocolPostgreSQL:
		u, err := url.Parse(dsn)
		if err != nil {
			return "", err
		}
		q := u.Query()
		q.Set("default_transaction_read_only", "on")
		u.RawQuery = q.Encode()
		return u.String(), nil
	case models.ProtocolMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", err
		}
		if cfg.Params == nil {
			cfg.Params = map[string]string{}
		}
		cfg.Params["transaction_read_only"] = "1"
		return cfg.FormatDSN(), nil
	default:
		return dsn, nil
	}
}
