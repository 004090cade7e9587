package config

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecrets struct {
	mu      sync.Mutex
	values  map[string]*secretsmanager.GetSecretValueOutput
	err     error
	queried []string
}

func (f *fakeSecrets) GetSecretValue(
	ctx context.Context,
	params *secretsmanager.GetSecretValueInput,
	optFns ...func(*secretsmanager.Options),
) (*secretsmanager.GetSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := aws.ToString(params.SecretId)
	f.queried = append(f.queried, id)
	if f.err != nil {
		return nil, f.err
	}
	out, ok := f.values[id]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "not found"}
	}
	return out, nil
}

func TestSecretsSource(t *testing.T) {
	api := &fakeSecrets{values: map[string]*secretsmanager.GetSecretValueOutput{
		"pgpoold/pool.reports.password": {SecretString: aws.String("s3cret")},
		"pgpoold/pool.binary.password":  {SecretBinary: []byte("raw")},
	}}
	src := NewSecretsSource(api, "pgpoold/")

	v, ok, err := src.Lookup("pool.reports.password")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "s3cret", v)

	v, ok, err = src.Lookup("pool.binary.password")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "raw", v)

	_, ok, err = src.Lookup("pool.missing.password")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = src.Lookup("pool.reports.address")
	require.NoError(t, err)
	assert.False(t, ok)

	// cached, including the miss
	_, _, _ = src.Lookup("pool.reports.password")
	_, _, _ = src.Lookup("pool.missing.password")
	assert.Equal(t, []string{
		"pgpoold/pool.reports.password",
		"pgpoold/pool.binary.password",
		"pgpoold/pool.missing.password",
	}, api.queried)
}

func TestSecretsSourceError(t *testing.T) {
	boom := errors.New("throttled")
	src := NewSecretsSource(&fakeSecrets{err: boom}, "")

	_, _, err := src.Lookup("pool.reports.password")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestSecretsSourceInChain(t *testing.T) {
	api := &fakeSecrets{values: map[string]*secretsmanager.GetSecretValueOutput{
		"pool.reports.password": {SecretString: aws.String("from-secrets")},
	}}
	spec := PoolSpec{Key: "reports", Address: "postgres://db/reports", User: "r", Password: "file"}

	src := Chain{MapSource{"pool.reports.user": "reporter"}, NewSecretsSource(api, "")}
	require.NoError(t, spec.ApplyProperties(src))

	assert.Equal(t, "reporter", spec.User)
	assert.Equal(t, "from-secrets", spec.Password)
}
