package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	values  map[string]string
	deleted *secretsmanager.DeleteSecretInput
}

func newFakeClient() *fakeClient {
	return &fakeClient{values: map[string]string{}}
}

func (f *fakeClient) CreateSecret(ctx context.Context, in *secretsmanager.CreateSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	name := aws.ToString(in.Name)
	if _, ok := f.values[name]; ok {
		return nil, &types.ResourceExistsException{Message: aws.String("exists")}
	}
	f.values[name] = aws.ToString(in.SecretString)
	return &secretsmanager.CreateSecretOutput{ARN: aws.String("arn:aws:secretsmanager:eu-central-1:1:secret:" + name), Name: in.Name}, nil
}

func (f *fakeClient) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	v, ok := f.values[aws.ToString(in.SecretId)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("missing")}
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func (f *fakeClient) UpdateSecret(ctx context.Context, in *secretsmanager.UpdateSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretOutput, error) {
	name := aws.ToString(in.SecretId)
	if _, ok := f.values[name]; !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("missing")}
	}
	f.values[name] = aws.ToString(in.SecretString)
	return &secretsmanager.UpdateSecretOutput{}, nil
}

func (f *fakeClient) DeleteSecret(ctx context.Context, in *secretsmanager.DeleteSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error) {
	f.deleted = in
	delete(f.values, aws.ToString(in.SecretId))
	return &secretsmanager.DeleteSecretOutput{}, nil
}

func TestStoreRoundTrip(t *testing.T) {
	client := newFakeClient()
	store := NewStore(client, "saaskit/")
	ctx := context.Background()

	arn, err := store.Create(ctx, "1_2_mysql", Credentials{Username: "root", Password: "pw"})
	require.NoError(t, err)
	assert.Contains(t, arn, "saaskit/1_2_mysql")
	assert.JSONEq(t, `{"username":"root","password":"pw"}`, client.values["saaskit/1_2_mysql"])

	require.NoError(t, store.Update(ctx, "1_2_mysql", Credentials{Username: "root", Password: "new"}))

	creds, err := store.Get(ctx, "1_2_mysql")
	require.NoError(t, err)
	assert.Equal(t, "new", creds.Password)
}

func TestStoreNotFound(t *testing.T) {
	store := NewStore(newFakeClient(), "")

	_, err := store.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = store.Update(context.Background(), "missing", Credentials{})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStoreDeleteModes(t *testing.T) {
	client := newFakeClient()
	store := NewStore(client, "")

	require.NoError(t, store.Delete(context.Background(), "a", true, 0))
	assert.True(t, aws.ToBool(client.deleted.ForceDeleteWithoutRecovery))
	assert.Nil(t, client.deleted.RecoveryWindowInDays)

	require.NoError(t, store.Delete(context.Background(), "a", false, 3))
	assert.Nil(t, client.deleted.ForceDeleteWithoutRecovery)
	assert.Equal(t, int64(7), aws.ToInt64(client.deleted.RecoveryWindowInDays))
}
