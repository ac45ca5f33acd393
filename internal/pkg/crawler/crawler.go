// Package crawler catalogs a data source with an AWS Glue crawler.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/saaskit/internal/pkg/env"
)

// Target kinds accepted by the crawl form.
const (
	TargetS3       = "s3"
	TargetJDBC     = "jdbc"
	TargetMongoDB  = "mongodb"
	TargetDynamoDB = "dynamodb"
	TargetDelta    = "delta"
	TargetIceberg  = "iceberg"
	TargetHudi     = "hudi"
)

var TargetTypes = []string{TargetS3, TargetJDBC, TargetMongoDB, TargetDynamoDB, TargetDelta, TargetIceberg, TargetHudi}

var (
	ErrInvalidTarget = errors.New("invalid crawl target")
	s3PathPattern    = regexp.MustCompile(`^s3://([^/]+)/`)
)

const defaultPollInterval = 5 * time.Second

// MaxRunTime bounds a single crawl, from database creation until READY.
const MaxRunTime = 2 * time.Hour

// GlueClient is the subset of the Glue API used here.
type GlueClient interface {
	CreateDatabase(ctx context.Context, params *glue.CreateDatabaseInput, optFns ...func(*glue.Options)) (*glue.CreateDatabaseOutput, error)
	CreateConnection(ctx context.Context, params *glue.CreateConnectionInput, optFns ...func(*glue.Options)) (*glue.CreateConnectionOutput, error)
	CreateCrawler(ctx context.Context, params *glue.CreateCrawlerInput, optFns ...func(*glue.Options)) (*glue.CreateCrawlerOutput, error)
	StartCrawler(ctx context.Context, params *glue.StartCrawlerInput, optFns ...func(*glue.Options)) (*glue.StartCrawlerOutput, error)
	GetCrawler(ctx context.Context, params *glue.GetCrawlerInput, optFns ...func(*glue.Options)) (*glue.GetCrawlerOutput, error)
}

// Request describes one crawl of a data source.
type Request struct {
	Identifier     string
	TargetType     string
	Path           string
	ConnectionName string
	// used to create a JDBC connection when ConnectionName is empty
	JDBCURI  string
	SecretID string
}

// Result names the Glue resources that were used.
type Result struct {
	DatabaseName   string
	CrawlerName    string
	ConnectionName string
	Duration       time.Duration
}

type Crawler struct {
	client       GlueClient
	roleARN      string
	pollInterval time.Duration
	maxRunTime   time.Duration
}

func New(client GlueClient, roleARN string) *Crawler {
	return &Crawler{client: client, roleARN: roleARN, pollInterval: defaultPollInterval, maxRunTime: MaxRunTime}
}

func NewFromConfig(awsCfg aws.Config) *Crawler {
	return New(glue.NewFromConfig(awsCfg), env.GetEnv("GLUE_ROLE_ARN", ""))
}

func DatabaseName(identifier string) string { return identifier + "-db" }
func CrawlerName(identifier string) string  { return identifier + "-crawler" }

// Validate checks the target type and, for S3, the path shape.
func (r Request) Validate() error {
	switch r.TargetType {
	case TargetS3:
		if !s3PathPattern.MatchString(r.Path) {
			return fmt.Errorf("%w: s3 path must look like s3://bucket/prefix", ErrInvalidTarget)
		}
	case TargetJDBC:
		if r.ConnectionName == "" && r.JDBCURI == "" {
			return fmt.Errorf("%w: jdbc needs a connection name or a database source", ErrInvalidTarget)
		}
	case TargetMongoDB, TargetDynamoDB, TargetDelta, TargetIceberg, TargetHudi:
	default:
		return fmt.Errorf("%w: unknown target type %q", ErrInvalidTarget, r.TargetType)
	}
	if r.Path == "" && r.TargetType != TargetJDBC {
		return fmt.Errorf("%w: path is required", ErrInvalidTarget)
	}
	return nil
}

// Run creates database, connection and crawler as needed, starts the crawler
// and blocks until Glue reports it READY again.
func (c *Crawler) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.maxRunTime)
	defer cancel()

	started := time.Now()
	res := &Result{
		DatabaseName:   DatabaseName(req.Identifier),
		CrawlerName:    CrawlerName(req.Identifier),
		ConnectionName: req.ConnectionName,
	}

	_, err := c.client.CreateDatabase(ctx, &glue.CreateDatabaseInput{
		DatabaseInput: &types.DatabaseInput{Name: aws.String(res.DatabaseName)},
	})
	if err != nil && !isAlreadyExists(err) {
		return nil, fmt.Errorf("create glue database: %w", err)
	}

	if req.TargetType == TargetJDBC && res.ConnectionName == "" {
		name, err := c.EnsureJDBCConnection(ctx, req.Identifier, req.JDBCURI, req.SecretID)
		if err != nil {
			return nil, err
		}
		res.ConnectionName = name
	}

	_, err = c.client.CreateCrawler(ctx, &glue.CreateCrawlerInput{
		Name:         aws.String(res.CrawlerName),
		Role:         aws.String(c.roleARN),
		DatabaseName: aws.String(res.DatabaseName),
		Targets:      buildTargets(req.TargetType, req.Path, res.ConnectionName),
	})
	if err != nil {
		if !isAlreadyExists(err) {
			return nil, fmt.Errorf("create crawler: %w", err)
		}
		log.Infof("[Crawler] %s already exists, reusing it", res.CrawlerName)
	}

	if _, err := c.client.StartCrawler(ctx, &glue.StartCrawlerInput{Name: aws.String(res.CrawlerName)}); err != nil {
		return nil, fmt.Errorf("start crawler: %w", err)
	}
	log.Infof("[Crawler] started %s", res.CrawlerName)

	if err := c.waitReady(ctx, res.CrawlerName); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("crawler %s not ready after %s: %w", res.CrawlerName, c.maxRunTime, err)
		}
		return nil, err
	}
	res.Duration = time.Since(started)
	log.Infof("[Crawler] %s finished after %s", res.CrawlerName, res.Duration.Round(time.Second))
	return res, nil
}

// EnsureJDBCConnection creates the connection named after identifier; an existing one is reused.
func (c *Crawler) EnsureJDBCConnection(ctx context.Context, identifier, jdbcURI, secretID string) (string, error) {
	_, err := c.client.CreateConnection(ctx, &glue.CreateConnectionInput{
		ConnectionInput: &types.ConnectionInput{
			Name:           aws.String(identifier),
			ConnectionType: types.ConnectionTypeJdbc,
			ConnectionProperties: map[string]string{
				"JDBC_CONNECTION_URL": jdbcURI,
				"SECRET_ID":           secretID,
			},
		},
	})
	if err != nil && !isAlreadyExists(err) {
		return "", fmt.Errorf("create jdbc connection: %w", err)
	}
	return identifier, nil
}

func (c *Crawler) waitReady(ctx context.Context, name string) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		out, err := c.client.GetCrawler(ctx, &glue.GetCrawlerInput{Name: aws.String(name)})
		if err != nil {
			return fmt.Errorf("get crawler: %w", err)
		}
		if out.Crawler != nil && out.Crawler.State == types.CrawlerStateReady {
			return nil
		}
	}
}

func buildTargets(kind, path, connection string) *types.CrawlerTargets {
	var conn *string
	if connection != "" {
		conn = aws.String(connection)
	}
	t := &types.CrawlerTargets{}
	switch kind {
	case TargetS3:
		t.S3Targets = []types.S3Target{{Path: aws.String(path), ConnectionName: conn}}
	case TargetJDBC:
		p := path
		if p == "" {
			p = "%"
		}
		t.JdbcTargets = []types.JdbcTarget{{ConnectionName: conn, Path: aws.String(p)}}
	case TargetMongoDB:
		t.MongoDBTargets = []types.MongoDBTarget{{ConnectionName: conn, Path: aws.String(path)}}
	case TargetDynamoDB:
		t.DynamoDBTargets = []types.DynamoDBTarget{{Path: aws.String(path)}}
	case TargetDelta:
		t.DeltaTargets = []types.DeltaTarget{{DeltaTables: []string{path}, ConnectionName: conn}}
	case TargetIceberg:
		t.IcebergTargets = []types.IcebergTarget{{Paths: []string{path}, ConnectionName: conn}}
	case TargetHudi:
		t.HudiTargets = []types.HudiTarget{{Paths: []string{path}, ConnectionName: conn}}
	}
	return t
}

func isAlreadyExists(err error) bool {
	var ae *types.AlreadyExistsException
	return errors.As(err, &ae)
}
