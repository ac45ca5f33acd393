// Package objectstore puts public user assets into S3.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"
)

// S3API is the part of the S3 client the store uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Store wraps the S3 client for one bucket.
type Store struct {
	s3Client S3API
	config   *Config
}

func New(api S3API, cfg *Config) *Store {
	return &Store{s3Client: api, config: cfg}
}

// NewFromAWS builds the S3 client from the shared AWS config.
func NewFromAWS(awsCfg aws.Config, cfg *Config) *Store {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if awsCfg.BaseEndpoint != nil && *awsCfg.BaseEndpoint != "" {
			// S3-compatible services (localstack, minio) need path-style URLs
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})
	return New(client, cfg)
}

// Put uploads body under key and returns its public URL.
func (s *Store) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.config.BucketName),
		Key:          aws.String(key),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to bucket %s: %w", key, s.config.BucketName, err)
	}
	log.Debugf("[ObjectStore] uploaded %s (%d bytes)", key, len(body))
	return s.config.ObjectURL(key), nil
}

// Delete removes key. Missing objects are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s from bucket %s: %w", key, s.config.BucketName, err)
	}
	return nil
}

// Exists checks if key is present in the bucket
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		var nf *types.NotFound
		if errors.As(err, &nsk) || errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check %s in bucket %s: %w", key, s.config.BucketName, err)
	}
	return true, nil
}

// KeyFromURL maps a URL produced by Put back to its key, or "" for foreign URLs.
func (s *Store) KeyFromURL(url string) string {
	prefix := s.config.ObjectURL("")
	if len(url) <= len(prefix) || url[:len(prefix)] != prefix {
		return ""
	}
	return url[len(prefix):]
}
