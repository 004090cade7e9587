package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
)

const (
	resourceNotFoundException = "ResourceNotFoundException"

	defaultSecretsTimeout = 10 * time.Second
)

// SecretsAPI is the subset of the Secrets Manager client used by SecretsSource.
type SecretsAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsSource resolves pool passwords from AWS Secrets Manager. Only keys ending
// in ".password" are looked up; the secret id is Prefix followed by the key, so
// "pool.reports.password" with prefix "pgpoold/" reads secret "pgpoold/pool.reports.password".
// Resolved values are cached for the lifetime of the source.
type SecretsSource struct {
	api     SecretsAPI
	prefix  string
	timeout time.Duration

	mu    sync.Mutex
	cache map[string]secretValue
}

type secretValue struct {
	value string
	found bool
}

// NewSecretsSource wraps an existing Secrets Manager client
func NewSecretsSource(api SecretsAPI, prefix string) *SecretsSource {
	return &SecretsSource{
		api:     api,
		prefix:  prefix,
		timeout: defaultSecretsTimeout,
		cache:   make(map[string]secretValue),
	}
}

// LoadSecretsSource builds a client from the default AWS configuration chain
func LoadSecretsSource(ctx context.Context, prefix string) (*SecretsSource, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSecretsSource(secretsmanager.NewFromConfig(cfg), prefix), nil
}

// SecretID returns the secret id consulted for key
func (s *SecretsSource) SecretID(key string) string {
	return s.prefix + key
}

func (s *SecretsSource) Lookup(key string) (string, bool, error) {
	if !strings.HasSuffix(key, ".password") {
		return "", false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.cache[key]; ok {
		return v.value, v.found, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	output, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.SecretID(key)),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == resourceNotFoundException {
			s.cache[key] = secretValue{}
			return "", false, nil
		}
		return "", false, fmt.Errorf("get secret %s: %w", s.SecretID(key), err)
	}

	var v secretValue
	switch {
	case output.SecretString != nil:
		v = secretValue{value: *output.SecretString, found: true}
	case output.SecretBinary != nil:
		v = secretValue{value: string(output.SecretBinary), found: true}
	}
	s.cache[key] = v
	return v.value, v.found, nil
}
