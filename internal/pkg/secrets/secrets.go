// Package secrets keeps data source credentials in AWS Secrets Manager,
// one secret per data source identifier.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/ManuelReschke/saaskit/internal/pkg/env"
)

var ErrNotFound = errors.New("secret not found")

// Client is the subset of the Secrets Manager API used by Store.
type Client interface {
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	UpdateSecret(ctx context.Context, params *secretsmanager.UpdateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretOutput, error)
	DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
}

// Credentials is the JSON document stored as the secret string.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Store struct {
	client Client
	prefix string
}

func NewStore(client Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func NewStoreFromConfig(awsCfg aws.Config) *Store {
	return NewStore(secretsmanager.NewFromConfig(awsCfg), env.GetEnv("SECRETS_PREFIX", ""))
}

// Name is the secret name for an identifier.
func (s *Store) Name(identifier string) string {
	return s.prefix + identifier
}

// Create returns the ARN of the new secret.
func (s *Store) Create(ctx context.Context, identifier string, creds Credentials) (string, error) {
	raw, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}
	out, err := s.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(s.Name(identifier)),
		SecretString: aws.String(string(raw)),
	})
	if err != nil {
		return "", fmt.Errorf("create secret %s: %w", s.Name(identifier), err)
	}
	return aws.ToString(out.ARN), nil
}

func (s *Store) Get(ctx context.Context, identifier string) (*Credentials, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.Name(identifier)),
	})
	if err != nil {
		return nil, s.wrap("get", identifier, err)
	}
	var creds Credentials
	if err := json.Unmarshal([]byte(aws.ToString(out.SecretString)), &creds); err != nil {
		return nil, fmt.Errorf("decode secret %s: %w", s.Name(identifier), err)
	}
	return &creds, nil
}

func (s *Store) Update(ctx context.Context, identifier string, creds Credentials) error {
	raw, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	_, err = s.client.UpdateSecret(ctx, &secretsmanager.UpdateSecretInput{
		SecretId:     aws.String(s.Name(identifier)),
		SecretString: aws.String(string(raw)),
	})
	return s.wrap("update", identifier, err)
}

// Delete removes the secret immediately when withoutRecovery is set,
// otherwise it is scheduled with a recoveryDays window (7-30).
func (s *Store) Delete(ctx context.Context, identifier string, withoutRecovery bool, recoveryDays int64) error {
	in := &secretsmanager.DeleteSecretInput{SecretId: aws.String(s.Name(identifier))}
	if withoutRecovery {
		in.ForceDeleteWithoutRecovery = aws.Bool(true)
	} else {
		if recoveryDays < 7 {
			recoveryDays = 7
		}
		if recoveryDays > 30 {
			recoveryDays = 30
		}
		in.RecoveryWindowInDays = aws.Int64(recoveryDays)
	}
	_, err := s.client.DeleteSecret(ctx, in)
	return s.wrap("delete", identifier, err)
}

func (s *Store) wrap(op, identifier string, err error) error {
	if err == nil {
		return nil
	}
	var nf *types.ResourceNotFoundException
	if errors.As(err, &nf) {
		return fmt.Errorf("%s secret %s: %w", op, s.Name(identifier), ErrNotFound)
	}
	return fmt.Errorf("%s secret %s: %w", op, s.Name(identifier), err)
}
