package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/saaskit/internal/pkg/env"
)

// Config holds the avatar bucket configuration
type Config struct {
	BucketName string
	Region     string
	PublicURL  string // Optional CDN or S3 compatible base URL
	Enabled    bool
}

// LoadConfig loads object store configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		BucketName: env.GetEnv("AVATAR_BUCKET", ""),
		Region:     env.GetEnv("AWS_REGION", "us-east-1"),
		PublicURL:  strings.TrimRight(env.GetEnv("AVATAR_PUBLIC_URL", ""), "/"),
		Enabled:    env.GetEnvBool("AVATAR_UPLOAD_ENABLED", true),
	}
	if cfg.Enabled && cfg.BucketName == "" {
		return nil, errors.New("AVATAR_BUCKET is required when avatar uploads are enabled")
	}
	return cfg, nil
}

// ObjectURL returns the public URL of key.
func (c *Config) ObjectURL(key string) string {
	if c.PublicURL != "" {
		return c.PublicURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.BucketName, c.Region, key)
}
