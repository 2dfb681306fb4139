package di

import (
	"context"
	"fmt"

	"go.uber.org/dig"
)

// Env names the deployment environment (dev, staging, prod) used to locate
// configuration parameters.
type Env string

// Option configures the dependency injection container.
type Option func(*options)

type options struct {
	env       Env
	providers []any
}

// WithEnv sets the deployment environment.
func WithEnv(env string) Option {
	return func(opts *options) {
		opts.env = Env(env)
	}
}

// WithProviders adds extra constructor functions to the container. Each
// provider declares its dependencies as parameters, which the container
// resolves.
func WithProviders(providers ...any) Option {
	return func(opts *options) {
		opts.providers = append(opts.providers, providers...)
	}
}

// New builds the dependency injection container with the standard AWS
// providers registered.
func New(ctx context.Context, opts ...Option) (*dig.Container, error) {
	settings := &options{env: "dev"}
	for _, opt := range opts {
		opt(settings)
	}

	container := dig.New()

	providers := []any{
		func() context.Context { return ctx },
		func() Env { return settings.env },
		ProvideAWSConfig,
		ProvideCloudFormation,
		ProvideS3,
		ProvideSTS,
		ProvideCodeBuild,
		ProvideSSMClient,
		ProvideParameterStore,
		ProvideDeployer,
	}
	providers = append(providers, settings.providers...)

	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return nil, fmt.Errorf("failed to register provider: %w", err)
		}
	}

	return container, nil
}
