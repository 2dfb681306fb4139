package services

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Config holds deploy-time settings for the validator stack: where the
// update-pull-request function artifact lives and how the stack is named.
type Config struct {
	ArtifactBucket  string
	ArtifactKey     string
	StackNamePrefix string
}

// ParameterStore defines the interface for accessing configuration parameters
type ParameterStore interface {
	// GetParameter retrieves a single parameter by name
	GetParameter(ctx context.Context, name string) (string, error)

	// GetConfig loads the deploy configuration
	GetConfig(ctx context.Context) (*Config, error)
}

// SSMParameterStore implements ParameterStore using AWS Systems Manager
// Parameter Store. Values are cached for the lifetime of the store.
type SSMParameterStore struct {
	client *ssm.Client
	env    string
	mu     sync.RWMutex
	cache  map[string]string
}

// NewSSMParameterStore creates a new SSM-backed parameter store
func NewSSMParameterStore(client *ssm.Client, env string) *SSMParameterStore {
	return &SSMParameterStore{
		client: client,
		env:    env,
		cache:  make(map[string]string),
	}
}

// GetParameter retrieves a single parameter from SSM Parameter Store
func (s *SSMParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	if value, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return value, nil
	}
	s.mu.RUnlock()

	result, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: boolPtr(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get parameter %s: %w", name, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s not found", name)
	}

	value := *result.Parameter.Value

	s.mu.Lock()
	s.cache[name] = value
	s.mu.Unlock()

	return value, nil
}

// GetConfig loads the deploy configuration from Parameter Store
func (s *SSMParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	path := fmt.Sprintf("/%s/pr-validator", s.env)

	result, err := s.client.GetParametersByPath(ctx, &ssm.GetParametersByPathInput{
		Path:           &path,
		Recursive:      boolPtr(true),
		WithDecryption: boolPtr(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get parameters by path %s: %w", path, err)
	}

	params := make(map[string]string)
	for _, param := range result.Parameters {
		if param.Name != nil && param.Value != nil {
			params[*param.Name] = *param.Value
		}
	}

	s.mu.Lock()
	for k, v := range params {
		s.cache[k] = v
	}
	s.mu.Unlock()

	config := &Config{
		ArtifactBucket:  params[fmt.Sprintf("/%s/pr-validator/artifact-bucket", s.env)],
		ArtifactKey:     params[fmt.Sprintf("/%s/pr-validator/artifact-key", s.env)],
		StackNamePrefix: params[fmt.Sprintf("/%s/pr-validator/stack-name-prefix", s.env)],
	}
	applyDefaults(config)
	return config, nil
}

// EnvParameterStore implements ParameterStore using environment variables,
// for local development without an AWS connection.
type EnvParameterStore struct {
	env string
}

// NewEnvParameterStore creates a new environment variable-backed parameter store
func NewEnvParameterStore(env string) *EnvParameterStore {
	return &EnvParameterStore{
		env: env,
	}
}

// GetParameter retrieves a parameter from environment variables
func (e *EnvParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	return os.Getenv(name), nil
}

// GetConfig loads the deploy configuration from environment variables
func (e *EnvParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	config := &Config{
		ArtifactBucket:  os.Getenv("PR_VALIDATOR_ARTIFACT_BUCKET"),
		ArtifactKey:     os.Getenv("PR_VALIDATOR_ARTIFACT_KEY"),
		StackNamePrefix: os.Getenv("PR_VALIDATOR_STACK_NAME_PREFIX"),
	}
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.StackNamePrefix == "" {
		config.StackNamePrefix = "pr-validator"
	}
}

func boolPtr(b bool) *bool {
	return &b
}
