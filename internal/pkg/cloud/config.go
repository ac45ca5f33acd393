// Package cloud loads the AWS configuration shared by the object store,
// secrets, crawler and SES clients.
package cloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/ManuelReschke/saaskit/internal/pkg/env"
)

// Config holds the AWS credentials and region
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	EndpointURL     string // Optional, localstack or S3 compatible services
	Enabled         bool
}

// LoadConfig loads AWS configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AccessKeyID:     env.GetEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("AWS_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("AWS_REGION", "us-east-1"),
		EndpointURL:     env.GetEnv("AWS_ENDPOINT_URL", ""),
		Enabled:         env.GetEnvBool("AWS_ENABLED", true),
	}

	if cfg.Enabled && cfg.Region == "" {
		return nil, errors.New("AWS_REGION is required when AWS is enabled")
	}
	// Static keys are optional; without them the default chain (instance role, profile) is used.
	if (cfg.AccessKeyID == "") != (cfg.SecretAccessKey == "") {
		return nil, errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
	}
	return cfg, nil
}

// AWSConfig builds the SDK config used by every service client.
func (c *Config) AWSConfig(ctx context.Context) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.AccessKeyID,
			c.SecretAccessKey,
			"",
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if c.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(c.EndpointURL)
	}
	return awsCfg, nil
}
