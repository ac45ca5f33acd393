package dashboard

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ManuelReschke/saaskit/app/models"
	"github.com/ManuelReschke/saaskit/internal/pkg/agent"
)

// Column is one introspected column.
type Column struct {
	Table      string
	Name       string
	Type       string
	PrimaryKey bool
	References string
}

func (c Column) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s|%s(%s)", c.Table, c.Name, c.Type)
	if c.PrimaryKey {
		sb.WriteString("-pk")
	}
	if c.References != "" {
		fmt.Fprintf(&sb, "-fk(%s)", c.References)
	}
	return sb.String()
}

// FormatSchema renders columns one per line, ordered by table.
func FormatSchema(cols []Column) string {
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Table < cols[j].Table })
	var sb strings.Builder
	for _, c := range cols {
		sb.WriteString("\n")
		sb.WriteString(c.String())
	}
	return sb.String()
}

const pgColumns = `
SELECT c.table_name, c.column_name, c.data_type
FROM information_schema.columns c
WHERE c.table_schema = current_schema()
ORDER BY c.table_name, c.ordinal_position`

const pgKeys = `
SELECT kcu.table_name, kcu.column_name, tc.constraint_type, COALESCE(ccu.table_name, '')
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
LEFT JOIN information_schema.constraint_column_usage ccu
  ON tc.constraint_type = 'FOREIGN KEY' AND ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
WHERE tc.table_schema = current_schema() AND tc.constraint_type IN ('PRIMARY KEY', 'FOREIGN KEY')`

const mysqlColumns = `
SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema = DATABASE()
ORDER BY table_name, ordinal_position`

const mysqlKeys = `
SELECT kcu.table_name, kcu.column_name,
  CASE WHEN kcu.constraint_name = 'PRIMARY' THEN 'PRIMARY KEY' ELSE 'FOREIGN KEY' END,
  COALESCE(kcu.referenced_table_name, '')
FROM information_schema.key_column_usage kcu
WHERE kcu.table_schema = DATABASE()
  AND (kcu.constraint_name = 'PRIMARY' OR kcu.referenced_table_name IS NOT NULL)`

// Introspector describes a data source schema, verifying the credentials on the way.
type Introspector func(ctx context.Context, protocol, conn string, tables []string) (string, error)

// Introspect connects with the given connection string and lists columns.
func Introspect(ctx context.Context, protocol, conn string, tables []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var driver, colQuery, keyQuery string
	switch protocol {
	case models.ProtocolPostgreSQL, models.ProtocolRedshift:
		driver, colQuery, keyQuery = "pgx", pgColumns, pgKeys
	case models.ProtocolMySQL:
		driver, colQuery, keyQuery = "mysql", mysqlColumns, mysqlKeys
	case models.ProtocolElasticsearch:
		return introspectElasticsearch(ctx, conn, tables)
	default:
		return "", fmt.Errorf("%w: %s", agent.ErrUnsupportedProtocol, protocol)
	}

	db, err := sql.Open(driver, conn)
	if err != nil {
		return "", err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return "", err
	}

	cols, err := readColumns(ctx, db, colQuery, tables)
	if err != nil {
		return "", err
	}
	if err := applyKeys(ctx, db, keyQuery, cols); err != nil {
		return "", err
	}
	return FormatSchema(cols), nil
}

func readColumns(ctx context.Context, db *sql.DB, query string, tables []string) ([]Column, error) {
	want := map[string]bool{}
	for _, t := range tables {
		want[strings.ToLower(t)] = true
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Table, &c.Name, &c.Type); err != nil {
			return nil, err
		}
		if len(want) > 0 && !want[strings.ToLower(c.Table)] {
			continue
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func applyKeys(ctx context.Context, db *sql.DB, query string, cols []Column) error {
	index := make(map[string]*Column, len(cols))
	for i := range cols {
		index[cols[i].Table+"."+cols[i].Name] = &cols[i]
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var table, column, kind, ref string
		if err := rows.Scan(&table, &column, &kind, &ref); err != nil {
			return err
		}
		c, ok := index[table+"."+column]
		if !ok {
			continue
		}
		if kind == "PRIMARY KEY" {
			c.PrimaryKey = true
		} else if ref != "" {
			c.References = ref
		}
	}
	return rows.Err()
}

func introspectElasticsearch(ctx context.Context, conn string, indices []string) (string, error) {
	client, err := agent.NewESClient(conn)
	if err != nil {
		return "", err
	}
	opts := []func(*esapi.IndicesGetMappingRequest){client.Indices.GetMapping.WithContext(ctx)}
	if len(indices) > 0 {
		opts = append(opts, client.Indices.GetMapping.WithIndex(indices...))
	}
	res, err := client.Indices.GetMapping(opts...)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	if res.IsError() {
		return "", fmt.Errorf("elasticsearch: %s", res.Status())
	}
	return formatMappings(body)
}

type esMapping map[string]struct {
	Mappings struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
	} `json:"mappings"`
}

func formatMappings(body []byte) (string, error) {
	var m esMapping
	if err := json.Unmarshal(body, &m); err != nil {
		return "", fmt.Errorf("decode mapping: %w", err)
	}
	var cols []Column
	for index, def := range m {
		names := make([]string, 0, len(def.Mappings.Properties))
		for name := range def.Mappings.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			typ := def.Mappings.Properties[name].Type
			if typ == "" {
				typ = "object"
			}
			cols = append(cols, Column{Table: index, Name: name, Type: typ})
		}
	}
	return FormatSchema(cols), nil
}
